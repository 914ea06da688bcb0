// buckets.go — операции с бакетами и мягкое удаление файлов.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/goartstore/micro-cdn/internal/domain/model"
	"github.com/bigkaa/goartstore/micro-cdn/internal/storage/catalogstore"
	"github.com/bigkaa/goartstore/micro-cdn/internal/storage/filestore"
)

// errNoChange — изменение каталога не требуется, сохранять нечего.
var errNoChange = errors.New("нет изменений")

// BucketService — создание и удаление бакетов, удаление файлов.
type BucketService struct {
	catalog *catalogstore.Store
	files   *filestore.FileStore
	logger  *slog.Logger
}

// NewBucketService создаёт сервис бакетов.
// files — хранилище содержимого с корнем <root>/buckets.
func NewBucketService(catalog *catalogstore.Store, files *filestore.FileStore, logger *slog.Logger) *BucketService {
	return &BucketService{
		catalog: catalog,
		files:   files,
		logger:  logger.With(slog.String("component", "bucket_service")),
	}
}

// CreateBucket создаёт бакет и его директорию.
// Идентификатор, занятый в том числе удалённым бакетом, — ErrAlreadyExists.
func (s *BucketService) CreateBucket(ctx context.Context, id string) (*model.Bucket, error) {
	bucket, err := model.NewBucket(id)
	if err != nil {
		return nil, err
	}

	_, err = s.catalog.Update(ctx, func(c *model.Catalog) error {
		if c.HasBucket(id) {
			return fmt.Errorf("%w: бакет %s", ErrAlreadyExists, id)
		}
		if err := s.files.MkdirAll(id); err != nil {
			return err
		}
		return c.AddBucket(bucket)
	})
	observe("create_bucket", err)
	if err != nil {
		if !errors.Is(err, ErrAlreadyExists) {
			s.logger.Error("Ошибка создания бакета",
				slog.String("bucket_id", id),
				slog.String("error", err.Error()),
			)
		}
		return nil, err
	}

	s.logger.Info("Бакет создан", slog.String("bucket_id", id))
	return bucket, nil
}

// DeleteBucket помечает бакет удалённым. Идемпотентно: отсутствующий
// или уже удалённый бакет — успех без изменений. Содержимое на диске остаётся.
func (s *BucketService) DeleteBucket(ctx context.Context, id string) error {
	_, err := s.catalog.Update(ctx, func(c *model.Catalog) error {
		b := c.Bucket(id)
		if b == nil || b.IsDeleted() {
			return errNoChange
		}
		b.MarkDeleted()
		return nil
	})
	if errors.Is(err, errNoChange) {
		s.logger.Info("Бакет уже удалён или не существует", slog.String("bucket_id", id))
		observe("delete_bucket", nil)
		return nil
	}
	observe("delete_bucket", err)
	if err != nil {
		s.logger.Error("Ошибка удаления бакета",
			slog.String("bucket_id", id),
			slog.String("error", err.Error()),
		)
		return err
	}

	s.logger.Info("Бакет помечен удалённым", slog.String("bucket_id", id))
	return nil
}

// DeleteFile помечает файл удалённым. Идемпотентно, включая
// отсутствующий или удалённый бакет.
func (s *BucketService) DeleteFile(ctx context.Context, bucketID, fileID string) error {
	_, err := s.catalog.Update(ctx, func(c *model.Catalog) error {
		b := c.ActiveBucket(bucketID)
		if b == nil {
			return errNoChange
		}
		f := b.ActiveFile(fileID)
		if f == nil {
			return errNoChange
		}
		f.MarkDeleted()
		return nil
	})
	if errors.Is(err, errNoChange) {
		s.logger.Info("Файл уже удалён или не существует",
			slog.String("bucket_id", bucketID),
			slog.String("file_id", fileID),
		)
		observe("delete_file", nil)
		return nil
	}
	observe("delete_file", err)
	if err != nil {
		s.logger.Error("Ошибка удаления файла",
			slog.String("bucket_id", bucketID),
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return err
	}

	s.logger.Info("Файл помечен удалённым",
		slog.String("bucket_id", bucketID),
		slog.String("file_id", fileID),
	)
	return nil
}
