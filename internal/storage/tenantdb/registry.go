// Пакет tenantdb — строковое хранилище метаданных тенантов.
//
// Каждый тенант (location из токена) получает собственную базу
// SQLite <location>/<cdnFolder>/micro-cdn.db с таблицей files.
// Базы открываются лениво при первом обращении и живут до
// остановки процесса. Вытеснения нет: число тенантов на процесс
// ожидается небольшим, рост реестра не ограничен.
package tenantdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	_ "modernc.org/sqlite"
)

// DBFileName — имя файла базы тенанта.
const DBFileName = "micro-cdn.db"

// ErrInvalidLocation — location тенанта пуст или не является абсолютным путём.
var ErrInvalidLocation = errors.New("некорректный location тенанта")

var tenantDatabasesOpen = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "cdn_tenant_databases_open",
	Help: "Количество открытых баз тенантов.",
})

// Options — параметры реестра.
type Options struct {
	// FolderName — имя каталога CDN внутри location тенанта
	FolderName string
	// CacheSize — размер кэша строк на тенанта; 0 отключает кэш
	CacheSize int
	// CacheTTL — время жизни записи в кэше
	CacheTTL time.Duration
}

// Registry — реестр баз тенантов, ключ — location.
type Registry struct {
	opts Options

	mu    sync.RWMutex
	repos map[string]*Repository

	logger *slog.Logger
	now    func() time.Time
}

// NewRegistry создаёт пустой реестр.
func NewRegistry(opts Options, logger *slog.Logger) *Registry {
	return &Registry{
		opts:   opts,
		repos:  make(map[string]*Repository),
		logger: logger.With(slog.String("component", "tenantdb")),
		now:    time.Now,
	}
}

// Open возвращает репозиторий тенанта, открывая базу при первом обращении.
// Блокировка записи берётся только на шаг "открыть, если нет".
func (r *Registry) Open(ctx context.Context, location string) (*Repository, error) {
	key, err := normalizeLocation(location)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	repo, ok := r.repos[key]
	r.mu.RUnlock()
	if ok {
		return repo, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if repo, ok := r.repos[key]; ok {
		return repo, nil
	}

	repo, err = r.open(ctx, key)
	if err != nil {
		return nil, err
	}
	r.repos[key] = repo
	tenantDatabasesOpen.Inc()
	return repo, nil
}

// Locations возвращает location уже открытых тенантов.
func (r *Registry) Locations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.repos))
	for loc := range r.repos {
		out = append(out, loc)
	}
	sort.Strings(out)
	return out
}

// Close закрывает все открытые базы.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for loc, repo := range r.repos {
		if err := repo.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", loc, err))
		}
		delete(r.repos, loc)
		tenantDatabasesOpen.Dec()
	}
	return errors.Join(errs...)
}

func (r *Registry) open(ctx context.Context, location string) (*Repository, error) {
	dir := filepath.Join(location, r.opts.FolderName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать каталог тенанта %s: %w", dir, err)
	}

	dbPath := filepath.Join(dir, DBFileName)
	if err := Migrate(dbPath, r.logger); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия базы %s: %w", dbPath, err)
	}
	// Одна запись за раз: SQLite не допускает параллельных писателей
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка настройки базы %s: %w", dbPath, err)
	}

	repo := &Repository{
		db:       db,
		location: location,
		dir:      dir,
		now:      r.now,
	}
	if r.opts.CacheSize > 0 {
		repo.cache = expirable.NewLRU[string, *FileRecord](r.opts.CacheSize, nil, r.opts.CacheTTL)
	}

	r.logger.Info("База тенанта открыта",
		slog.String("location", location),
		slog.String("db", dbPath),
	)
	return repo, nil
}

// normalizeLocation проверяет location и приводит его к каноническому виду.
func normalizeLocation(location string) (string, error) {
	if location == "" || !filepath.IsAbs(location) {
		return "", fmt.Errorf("%w: %q", ErrInvalidLocation, location)
	}
	return filepath.Clean(location), nil
}
