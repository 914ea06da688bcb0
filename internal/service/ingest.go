// ingest.go — приём содержимого файлов в бакеты.
package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/bigkaa/goartstore/micro-cdn/internal/domain/media"
	"github.com/bigkaa/goartstore/micro-cdn/internal/domain/model"
	"github.com/bigkaa/goartstore/micro-cdn/internal/storage/catalogstore"
	"github.com/bigkaa/goartstore/micro-cdn/internal/storage/filestore"
)

// IngestService — сервис загрузки файлов в бакеты.
type IngestService struct {
	catalog *catalogstore.Store
	files   *filestore.FileStore
	logger  *slog.Logger
}

// NewIngestService создаёт сервис загрузки.
func NewIngestService(catalog *catalogstore.Store, files *filestore.FileStore, logger *slog.Logger) *IngestService {
	return &IngestService{
		catalog: catalog,
		files:   files,
		logger:  logger.With(slog.String("component", "ingest_service")),
	}
}

// Upload принимает поток содержимого с объявленным MIME-типом.
//
// Поток:
//  1. Бакет существует и не удалён
//  2. MIME-тип отображается в известное расширение
//  3. Выделение id файла в пространстве бакета
//  4. Запись содержимого (<id>.<random>.part → fsync → rename)
//  5. Фиксация метаданных в каталоге
//
// При ошибке записи метаданные не создаются; частичный файл остаётся
// на диске до очистки.
func (s *IngestService) Upload(ctx context.Context, bucketID, mimeType string, body io.Reader) (*model.File, error) {
	file, err := s.upload(ctx, bucketID, mimeType, body)
	observe("upload", err)
	return file, err
}

// UploadDataURI принимает содержимое в виде data:<mime>;base64,<data>.
func (s *IngestService) UploadDataURI(ctx context.Context, bucketID, uri string) (*model.File, error) {
	parsed, err := ParseDataURI(uri)
	if err != nil {
		observe("upload", err)
		return nil, err
	}
	file, err := s.upload(ctx, bucketID, parsed.MIMEType, bytes.NewReader(parsed.Data))
	observe("upload", err)
	return file, err
}

func (s *IngestService) upload(ctx context.Context, bucketID, mimeType string, body io.Reader) (*model.File, error) {
	// 1. Бакет
	catalog, err := s.catalog.Get(ctx)
	if err != nil {
		return nil, err
	}
	var bucket *model.Bucket
	if catalog != nil {
		bucket = catalog.ActiveBucket(bucketID)
	}
	if bucket == nil {
		return nil, fmt.Errorf("%w: бакет %s", ErrNotFound, bucketID)
	}

	// 2. MIME-тип → расширение
	if mimeType == "" {
		return nil, ErrMissingMIME
	}
	normalized, ok := media.NormalizeMIME(mimeType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMIME, mimeType)
	}
	ext, ok := media.ExtensionForMIME(normalized)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMIME, mimeType)
	}

	// 3. Идентификатор
	fileID := bucket.NewFileID(ext)
	key := bucketID + "/" + fileID

	// 4. Содержимое
	saved, err := s.files.Save(key, body)
	if err != nil {
		s.logger.Error("Ошибка сохранения файла",
			slog.String("bucket_id", bucketID),
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	ingestedBytesTotal.Add(float64(saved.Size))

	// 5. Метаданные
	file, err := model.NewFile(fileID, bucketID, ext, normalized)
	if err != nil {
		return nil, err
	}
	_, err = s.catalog.Update(ctx, func(c *model.Catalog) error {
		b := c.ActiveBucket(bucketID)
		if b == nil {
			// Бакет удалён во время загрузки
			return fmt.Errorf("%w: бакет %s", ErrNotFound, bucketID)
		}
		return b.AddFile(file)
	})
	if err != nil {
		s.logger.Error("Ошибка фиксации метаданных файла",
			slog.String("bucket_id", bucketID),
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.logger.Info("Файл загружен",
		slog.String("bucket_id", bucketID),
		slog.String("file_id", fileID),
		slog.String("mime_type", normalized),
		slog.Int64("size", saved.Size),
		slog.String("checksum", saved.Checksum),
	)
	return file, nil
}
