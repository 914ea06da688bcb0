// download.go — отдача содержимого файлов из бакетов.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/goartstore/micro-cdn/internal/storage/catalogstore"
	"github.com/bigkaa/goartstore/micro-cdn/internal/storage/filestore"
)

// DownloadService — сервис скачивания файлов из бакетов.
type DownloadService struct {
	catalog *catalogstore.Store
	files   *filestore.FileStore
	logger  *slog.Logger
}

// NewDownloadService создаёт сервис скачивания.
func NewDownloadService(catalog *catalogstore.Store, files *filestore.FileStore, logger *slog.Logger) *DownloadService {
	return &DownloadService{
		catalog: catalog,
		files:   files,
		logger:  logger.With(slog.String("component", "download_service")),
	}
}

// Stream возвращает содержимое файла. Удалённый или отсутствующий
// бакет/файл — ErrNotFound без обращения к диску.
// Блокировок каталога не удерживается: удаление во время отдачи
// не прерывает уже начатую передачу.
func (s *DownloadService) Stream(ctx context.Context, bucketID, fileID, rangeHeader string) (*Content, error) {
	catalog, err := s.catalog.Get(ctx)
	if err != nil {
		return nil, err
	}
	if catalog == nil {
		return nil, fmt.Errorf("%w: бакет %s", ErrNotFound, bucketID)
	}
	bucket := catalog.ActiveBucket(bucketID)
	if bucket == nil {
		return nil, fmt.Errorf("%w: бакет %s", ErrNotFound, bucketID)
	}
	file := bucket.ActiveFile(fileID)
	if file == nil {
		return nil, fmt.Errorf("%w: файл %s", ErrNotFound, fileID)
	}

	content, err := openContent(s.files, bucketID+"/"+fileID, file.MIMEType(), file.MediaType(), rangeHeader)
	observe("download", err)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			s.logger.Warn("Метаданные есть, содержимое отсутствует на диске",
				slog.String("bucket_id", bucketID),
				slog.String("file_id", fileID),
			)
		case errors.Is(err, ErrInvalidRange), errors.Is(err, ErrUnsatisfiableRange):
		default:
			s.logger.Error("Ошибка открытия файла",
				slog.String("bucket_id", bucketID),
				slog.String("file_id", fileID),
				slog.String("error", err.Error()),
			)
		}
		return nil, err
	}

	s.logger.Debug("Начата отдача файла",
		slog.String("bucket_id", bucketID),
		slog.String("file_id", fileID),
		slog.Int("status", content.Status),
		slog.Int64("length", content.Length),
	)
	return content, nil
}
