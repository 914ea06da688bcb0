// Пакет catalogstore — документное хранилище метаданных каталога.
//
// Весь каталог хранится одним JSON-документом <root>/data/catalog.json
// и кэшируется в памяти. Кэш и файл обновляются вместе: Get никогда
// не возвращает состояние старше последнего успешного Save.
//
// Изменения сериализуются через Update: функция изменения получает
// собственную копию каталога, а опубликованные снимки неизменяемы.
// Поэтому читатели не берут блокировку записи, а конкурентные
// изменения не теряют друг друга.
package catalogstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/bigkaa/goartstore/micro-cdn/internal/domain/model"
)

const (
	// DataDirName — поддиректория корня для документа каталога
	DataDirName = "data"
	// FileName — имя документа каталога
	FileName = "catalog.json"
)

// Store — хранилище каталога с кэшем в памяти.
type Store struct {
	path string

	// writeMu — единственная точка сериализации записи
	writeMu sync.Mutex

	mu     sync.RWMutex
	cached *model.Catalog

	logger *slog.Logger
}

// New создаёт хранилище каталога в корневой директории rootDir.
// Диск не затрагивается до первого обращения.
func New(rootDir string, logger *slog.Logger) *Store {
	return &Store{
		path:   filepath.Join(rootDir, DataDirName, FileName),
		logger: logger.With(slog.String("component", "catalogstore")),
	}
}

// Path возвращает путь к документу каталога.
func (s *Store) Path() string {
	return s.path
}

// Get возвращает текущий снимок каталога.
// Если документ не существует, возвращает (nil, nil): вызывающий
// код выполняет первичную инициализацию. Снимок нельзя изменять.
func (s *Store) Get(ctx context.Context) (*model.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	cached := s.cached
	s.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	catalog, err := s.read()
	if err != nil || catalog == nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Конкурентный Save мог опередить чтение — его состояние новее
	if s.cached != nil {
		return s.cached, nil
	}
	s.cached = catalog
	return catalog, nil
}

// Save атомарно записывает каталог и заменяет кэш.
// Переданный каталог становится опубликованным снимком и далее не должен изменяться.
// Прямой Save перезаписывает документ целиком (последний побеждает);
// изменения на основе текущего состояния выполняются через Update.
func (s *Store) Save(ctx context.Context, catalog *model.Catalog) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.save(catalog)
}

// Update применяет fn к копии текущего каталога и сохраняет результат.
// При отсутствии документа fn получает пустой каталог.
// Если fn вернула ошибку, ничего не сохраняется и ошибка возвращается как есть.
func (s *Store) Update(ctx context.Context, fn func(*model.Catalog) error) (*model.Catalog, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	var next *model.Catalog
	if current == nil {
		next = model.NewCatalog()
	} else {
		next = current.Clone()
	}

	if err := fn(next); err != nil {
		return nil, err
	}

	if err := s.save(next); err != nil {
		return nil, err
	}
	return next, nil
}

// Init загружает каталог и создаёт пустой документ при первом запуске.
func (s *Store) Init(ctx context.Context) (*model.Catalog, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	catalog, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	if catalog != nil {
		stats := catalog.Stats()
		s.logger.Info("Каталог загружен",
			slog.String("path", s.path),
			slog.Int("buckets", stats.Buckets),
			slog.Int("files", stats.Files),
		)
		return catalog, nil
	}

	catalog = model.NewCatalog()
	if err := s.save(catalog); err != nil {
		return nil, err
	}
	s.logger.Info("Создан пустой каталог", slog.String("path", s.path))
	return catalog, nil
}

// Invalidate сбрасывает кэш: следующий Get перечитает документ.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

// read читает документ с диска. Отсутствие файла — (nil, nil).
func (s *Store) read() (*model.Catalog, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения каталога %s: %w", s.path, err)
	}

	catalog := model.NewCatalog()
	if err := json.Unmarshal(data, catalog); err != nil {
		return nil, fmt.Errorf("ошибка десериализации каталога %s: %w", s.path, err)
	}
	return catalog, nil
}

// save записывает документ и обновляет кэш. Вызывается под writeMu.
func (s *Store) save(catalog *model.Catalog) error {
	data, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации каталога: %w", err)
	}

	if err := writeAtomic(s.path, data); err != nil {
		s.logger.Error("Ошибка записи каталога",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		return err
	}

	s.mu.Lock()
	s.cached = catalog
	s.mu.Unlock()
	return nil
}

// writeAtomic записывает данные по пути path.
// Паттерн: temp файл → fsync → atomic rename. Директория создаётся при необходимости.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
	}

	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}
