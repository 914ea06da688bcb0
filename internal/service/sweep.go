// sweep.go — внеполосная очистка содержимого удалённых файлов.
//
// Очистка физически удаляет:
//  1. Директории бакетов, помеченных удалёнными
//  2. Содержимое файлов, помеченных удалёнными (бакеты и тенанты)
//  3. Частичные загрузки (*.part) старше PartialTTL
//
// Метаданные не изменяются: флаги удаления остаются, записи не удаляются.
// Запускается тикером (CDN_SWEEP_INTERVAL) или однократно из cdn-maintenance.
package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/micro-cdn/internal/storage/catalogstore"
	"github.com/bigkaa/goartstore/micro-cdn/internal/storage/filestore"
	"github.com/bigkaa/goartstore/micro-cdn/internal/storage/tenantdb"
)

// Prometheus метрики очистки
var (
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cdn_sweep_runs_total",
		Help: "Общее количество запусков очистки",
	})

	sweepRemovedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdn_sweep_removed_total",
		Help: "Общее количество объектов, удалённых очисткой",
	}, []string{"kind"})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cdn_sweep_duration_seconds",
		Help:    "Длительность выполнения очистки в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// SweepResult — результат одного запуска очистки.
type SweepResult struct {
	// RemovedBuckets — удалено директорий бакетов
	RemovedBuckets int `json:"removedBuckets"`
	// RemovedFiles — удалено файлов содержимого
	RemovedFiles int `json:"removedFiles"`
	// RemovedPartials — удалено частичных загрузок
	RemovedPartials int `json:"removedPartials"`
	// Errors — количество ошибок
	Errors int `json:"errors"`
	// Duration — длительность выполнения
	Duration time.Duration `json:"duration"`
}

// SweepOptions — параметры очистки.
type SweepOptions struct {
	// Interval — период фонового запуска
	Interval time.Duration
	// PartialTTL — возраст, после которого частичная загрузка считается брошенной
	PartialTTL time.Duration
	// Locations — дополнительные location тенантов (помимо открытых в реестре)
	Locations []string
}

// SweepService — сервис очистки содержимого.
type SweepService struct {
	catalog  *catalogstore.Store
	buckets  *filestore.FileStore
	registry *tenantdb.Registry
	opts     SweepOptions
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweepService создаёт сервис очистки. registry может быть nil.
func NewSweepService(
	catalog *catalogstore.Store,
	buckets *filestore.FileStore,
	registry *tenantdb.Registry,
	opts SweepOptions,
	logger *slog.Logger,
) *SweepService {
	return &SweepService{
		catalog:  catalog,
		buckets:  buckets,
		registry: registry,
		opts:     opts,
		logger:   logger.With(slog.String("component", "sweep")),
		now:      time.Now,
	}
}

// Start запускает фоновую горутину очистки с периодическим тикером.
func (s *SweepService) Start(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(sweepCtx)

	s.logger.Info("Очистка запущена",
		slog.String("interval", s.opts.Interval.String()),
	)
}

// Stop останавливает фоновую очистку и дожидается завершения текущего прохода.
func (s *SweepService) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.logger.Info("Очистка остановлена")
}

func (s *SweepService) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один проход очистки.
// Потокобезопасен: параллельные вызовы выполняются последовательно.
func (s *SweepService) RunOnce(ctx context.Context) *SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result := &SweepResult{}

	s.sweepCatalog(ctx, result)
	s.sweepPartials(s.buckets, "", result)

	for _, loc := range s.locations() {
		if ctx.Err() != nil {
			break
		}
		s.sweepTenant(ctx, loc, result)
	}

	result.Duration = time.Since(start)

	sweepRunsTotal.Inc()
	sweepRemovedTotal.WithLabelValues("bucket").Add(float64(result.RemovedBuckets))
	sweepRemovedTotal.WithLabelValues("file").Add(float64(result.RemovedFiles))
	sweepRemovedTotal.WithLabelValues("partial").Add(float64(result.RemovedPartials))
	sweepDurationSeconds.Observe(result.Duration.Seconds())

	s.logger.Info("Очистка завершена",
		slog.Int("buckets", result.RemovedBuckets),
		slog.Int("files", result.RemovedFiles),
		slog.Int("partials", result.RemovedPartials),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)
	return result
}

// sweepCatalog удаляет содержимое удалённых бакетов и файлов.
func (s *SweepService) sweepCatalog(ctx context.Context, result *SweepResult) {
	catalog, err := s.catalog.Get(ctx)
	if err != nil {
		s.logger.Error("Очистка: ошибка чтения каталога", slog.String("error", err.Error()))
		result.Errors++
		return
	}
	if catalog == nil {
		return
	}

	for _, b := range catalog.Buckets() {
		if b.IsDeleted() {
			fullPath, _ := s.buckets.FullPath(b.ID())
			if !dirExists(fullPath) {
				continue
			}
			if err := s.buckets.RemoveAll(b.ID()); err != nil {
				s.logger.Error("Очистка: ошибка удаления бакета",
					slog.String("bucket_id", b.ID()),
					slog.String("error", err.Error()),
				)
				result.Errors++
				continue
			}
			s.logger.Debug("Очистка: бакет удалён", slog.String("bucket_id", b.ID()))
			result.RemovedBuckets++
			continue
		}

		for _, f := range b.Files() {
			if !f.IsDeleted() {
				continue
			}
			key := b.ID() + "/" + f.ID()
			if !s.buckets.Exists(key) {
				continue
			}
			if err := s.buckets.Remove(key); err != nil {
				s.logger.Error("Очистка: ошибка удаления файла",
					slog.String("bucket_id", b.ID()),
					slog.String("file_id", f.ID()),
					slog.String("error", err.Error()),
				)
				result.Errors++
				continue
			}
			s.logger.Debug("Очистка: файл удалён",
				slog.String("bucket_id", b.ID()),
				slog.String("file_id", f.ID()),
			)
			result.RemovedFiles++
		}
	}
}

// sweepTenant удаляет содержимое удалённых записей тенанта.
func (s *SweepService) sweepTenant(ctx context.Context, location string, result *SweepResult) {
	repo, err := s.registry.Open(ctx, location)
	if err != nil {
		s.logger.Error("Очистка: ошибка открытия базы тенанта",
			slog.String("location", location),
			slog.String("error", err.Error()),
		)
		result.Errors++
		return
	}
	files, err := filestore.New(filepath.Join(repo.Dir(), TenantFilesDir))
	if err != nil {
		s.logger.Error("Очистка: ошибка открытия каталога тенанта",
			slog.String("location", location),
			slog.String("error", err.Error()),
		)
		result.Errors++
		return
	}

	deleted, err := repo.ListDeleted(ctx)
	if err != nil {
		s.logger.Error("Очистка: ошибка выборки удалённых записей",
			slog.String("location", location),
			slog.String("error", err.Error()),
		)
		result.Errors++
		return
	}

	for _, rec := range deleted {
		// Запись могла быть восстановлена повторной загрузкой
		current, err := repo.Find(ctx, rec.ID)
		if err != nil || current == nil || !current.Deleted() {
			continue
		}
		if !removableTenantContent(files, current) {
			continue
		}
		if err := files.Remove(rec.ID); err != nil {
			s.logger.Error("Очистка: ошибка удаления файла тенанта",
				slog.String("location", location),
				slog.String("file_id", rec.ID),
				slog.String("error", err.Error()),
			)
			result.Errors++
			continue
		}
		result.RemovedFiles++
	}

	s.sweepPartials(files, location, result)
}

// removableTenantContent сообщает, что содержимое записано не позже
// мягкого удаления записи. Более новое содержимое принадлежит повторной
// загрузке, которая ещё не успела восстановить запись.
func removableTenantContent(files *filestore.FileStore, rec *tenantdb.FileRecord) bool {
	if rec.DeletedTs == nil {
		return false
	}
	info, err := files.Stat(rec.ID)
	if err != nil {
		return false
	}
	return info.ModTime().UnixMilli() <= *rec.DeletedTs
}

// sweepPartials удаляет частичные загрузки старше PartialTTL.
func (s *SweepService) sweepPartials(files *filestore.FileStore, location string, result *SweepResult) {
	cutoff := s.now().Add(-s.opts.PartialTTL)

	err := files.Walk(func(e filestore.Entry) error {
		if !e.Partial() || e.Info.ModTime().After(cutoff) {
			return nil
		}
		if err := files.Remove(e.Key); err != nil {
			s.logger.Error("Очистка: ошибка удаления частичной загрузки",
				slog.String("location", location),
				slog.String("path", e.Key),
				slog.String("error", err.Error()),
			)
			result.Errors++
			return nil
		}
		s.logger.Debug("Очистка: частичная загрузка удалена",
			slog.String("location", location),
			slog.String("path", e.Key),
		)
		result.RemovedPartials++
		return nil
	})
	if err != nil {
		s.logger.Error("Очистка: ошибка обхода файлов",
			slog.String("location", location),
			slog.String("error", err.Error()),
		)
		result.Errors++
	}
}

// locations объединяет открытые в реестре и заданные явно location.
func (s *SweepService) locations() []string {
	if s.registry == nil {
		return nil
	}
	return mergeLocations(s.registry.Locations(), s.opts.Locations)
}

// mergeLocations объединяет списки location без повторов, сохраняя порядок.
func mergeLocations(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, loc := range list {
			if loc == "" {
				continue
			}
			clean := filepath.Clean(loc)
			if seen[clean] {
				continue
			}
			seen[clean] = true
			out = append(out, clean)
		}
	}
	return out
}

func dirExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
