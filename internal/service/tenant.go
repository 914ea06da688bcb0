// tenant.go — файлы тенантов с адресацией по пути.
//
// Тенант определяется location из токена. Клиент сам выбирает путь
// файла, поэтому перед записью и при фиксации проверяется, что
// активной записи с тем же путём нет.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/bigkaa/goartstore/micro-cdn/internal/domain/media"
	"github.com/bigkaa/goartstore/micro-cdn/internal/storage/filestore"
	"github.com/bigkaa/goartstore/micro-cdn/internal/storage/tenantdb"
)

// TenantFilesDir — каталог содержимого внутри <location>/<cdnFolder>.
const TenantFilesDir = "files"

var tenantPathPattern = regexp.MustCompile(`^[-_A-Za-z0-9/\.]+$`)

// NormalizeTenantPath приводит путь из URL к виду "a/b/c.txt".
// Пустые сегменты, "." и ".." отклоняются. Суффикс .part
// зарезервирован под незавершённые записи.
func NormalizeTenantPath(raw string) (string, error) {
	p := strings.TrimPrefix(raw, "/")
	if p == "" || !tenantPathPattern.MatchString(p) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, raw)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, raw)
		}
	}
	if strings.HasSuffix(p, filestore.PartialSuffix) {
		return "", fmt.Errorf("%w: суффикс %s зарезервирован", ErrInvalidPath, filestore.PartialSuffix)
	}
	return p, nil
}

// TenantService — загрузка, отдача и удаление файлов тенантов.
type TenantService struct {
	registry *tenantdb.Registry
	logger   *slog.Logger

	// inflight — пути, по которым сейчас идёт загрузка (ключ: location + путь)
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewTenantService создаёт сервис файлов тенантов.
func NewTenantService(registry *tenantdb.Registry, logger *slog.Logger) *TenantService {
	return &TenantService{
		registry: registry,
		logger:   logger.With(slog.String("component", "tenant_service")),
		inflight: make(map[string]struct{}),
	}
}

// open возвращает репозиторий и хранилище содержимого тенанта.
func (s *TenantService) open(ctx context.Context, location string) (*tenantdb.Repository, *filestore.FileStore, error) {
	repo, err := s.registry.Open(ctx, location)
	if err != nil {
		return nil, nil, err
	}
	files, err := filestore.New(filepath.Join(repo.Dir(), TenantFilesDir))
	if err != nil {
		return nil, nil, err
	}
	return repo, files, nil
}

// Upload записывает содержимое по пути и создаёт запись.
// Активная запись с тем же путём — ErrAlreadyExists; удалённая
// запись восстанавливается.
func (s *TenantService) Upload(ctx context.Context, location, filePath string, body io.Reader) (*tenantdb.FileRecord, error) {
	rec, err := s.upload(ctx, location, filePath, body)
	observe("tenant_upload", err)
	return rec, err
}

func (s *TenantService) upload(ctx context.Context, location, filePath string, body io.Reader) (*tenantdb.FileRecord, error) {
	id, err := NormalizeTenantPath(filePath)
	if err != nil {
		return nil, err
	}

	repo, files, err := s.open(ctx, location)
	if err != nil {
		return nil, err
	}

	release, ok := s.reserve(repo.Location(), id)
	if !ok {
		return nil, fmt.Errorf("%w: %s (загрузка уже выполняется)", ErrAlreadyExists, id)
	}
	defer release()

	existing, err := repo.FindActive(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	}

	if err := checkTreeConflict(files, id); err != nil {
		return nil, err
	}

	saved, err := files.Save(id, body)
	if err != nil {
		s.logger.Error("Ошибка сохранения файла тенанта",
			slog.String("location", location),
			slog.String("file_id", id),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	ingestedBytesTotal.Add(float64(saved.Size))

	rec, err := repo.Insert(ctx, id)
	if err != nil {
		if errors.Is(err, tenantdb.ErrAlreadyExists) {
			// Конкурентная загрузка по тому же пути опередила
			return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, id)
		}
		s.logger.Error("Ошибка фиксации записи тенанта",
			slog.String("location", location),
			slog.String("file_id", id),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.logger.Info("Файл тенанта загружен",
		slog.String("location", location),
		slog.String("file_id", id),
		slog.Int64("size", saved.Size),
		slog.String("checksum", saved.Checksum),
	)
	return rec, nil
}

// reserve закрепляет путь за текущей загрузкой. Вторая загрузка по тому
// же пути, начатая до завершения первой, получает ok == false.
func (s *TenantService) reserve(location, id string) (release func(), ok bool) {
	key := location + "\x00" + id

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return nil, false
	}
	s.inflight[key] = struct{}{}

	return func() {
		s.mu.Lock()
		delete(s.inflight, key)
		s.mu.Unlock()
	}, true
}

// Stream возвращает содержимое файла тенанта. MIME-тип выводится из расширения.
func (s *TenantService) Stream(ctx context.Context, location, filePath, rangeHeader string) (*Content, error) {
	id, err := NormalizeTenantPath(filePath)
	if err != nil {
		return nil, err
	}

	repo, files, err := s.open(ctx, location)
	if err != nil {
		return nil, err
	}

	rec, err := repo.FindActive(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	ext := strings.TrimPrefix(path.Ext(id), ".")
	content, err := openContent(files, id, media.MIMEForExtension(ext), media.Classify(ext), rangeHeader)
	observe("tenant_download", err)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Warn("Запись есть, содержимое отсутствует на диске",
				slog.String("location", location),
				slog.String("file_id", id),
			)
		}
		return nil, err
	}

	s.logger.Debug("Начата отдача файла тенанта",
		slog.String("location", location),
		slog.String("file_id", id),
		slog.Int("status", content.Status),
	)
	return content, nil
}

// Delete помечает запись удалённой. Идемпотентно.
func (s *TenantService) Delete(ctx context.Context, location, filePath string) error {
	id, err := NormalizeTenantPath(filePath)
	if err != nil {
		return err
	}

	repo, err := s.registry.Open(ctx, location)
	if err != nil {
		return err
	}

	deleted, err := repo.MarkDeleted(ctx, id)
	observe("tenant_delete", err)
	if err != nil {
		s.logger.Error("Ошибка удаления файла тенанта",
			slog.String("location", location),
			slog.String("file_id", id),
			slog.String("error", err.Error()),
		)
		return err
	}

	if deleted {
		s.logger.Info("Файл тенанта помечен удалённым",
			slog.String("location", location),
			slog.String("file_id", id),
		)
	} else {
		s.logger.Info("Файл тенанта уже удалён или не существует",
			slog.String("location", location),
			slog.String("file_id", id),
		)
	}
	return nil
}

// checkTreeConflict отклоняет путь, который занят директорией
// или проходит через существующий файл.
func checkTreeConflict(files *filestore.FileStore, id string) error {
	full, err := files.FullPath(id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if info, err := os.Stat(full); err == nil && info.IsDir() {
		return fmt.Errorf("%w: путь %s занят директорией", ErrInvalidPath, id)
	}

	for dir := path.Dir(id); dir != "."; dir = path.Dir(dir) {
		if files.Exists(dir) {
			return fmt.Errorf("%w: %s является файлом", ErrInvalidPath, dir)
		}
	}
	return nil
}
