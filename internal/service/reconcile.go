// reconcile.go — сверка метаданных с содержимым на диске.
//
// Reconciliation сравнивает:
//   - Активные файлы каталога и тенантов с файлами на диске
//   - Файлы на диске с записями метаданных
//
// Обнаруживает проблемы:
//   - missing_content: активная запись, но содержимого нет на диске
//   - orphaned_content: файл на диске без записи метаданных
//   - partial_upload: незавершённая загрузка (*.part)
//
// Сверка только сообщает о проблемах и ничего не исправляет.
// Запускается по запросу: POST /cdn/maintenance/reconcile или cdn-maintenance reconcile.
package service

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/micro-cdn/internal/storage/catalogstore"
	"github.com/bigkaa/goartstore/micro-cdn/internal/storage/filestore"
	"github.com/bigkaa/goartstore/micro-cdn/internal/storage/tenantdb"
)

// Prometheus метрики Reconciliation
var (
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cdn_reconcile_runs_total",
		Help: "Общее количество запусков reconciliation",
	})

	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdn_reconcile_issues_total",
		Help: "Общее количество проблем, обнаруженных reconciliation",
	}, []string{"type"})

	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cdn_reconcile_duration_seconds",
		Help:    "Длительность выполнения reconciliation в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})
)

// IssueType — тип расхождения.
type IssueType string

const (
	IssueMissingContent  IssueType = "missing_content"
	IssueOrphanedContent IssueType = "orphaned_content"
	IssuePartialUpload   IssueType = "partial_upload"
)

// ReconcileIssue — найденное расхождение.
type ReconcileIssue struct {
	Type IssueType `json:"type"`
	// Namespace — id бакета или location тенанта
	Namespace string `json:"namespace"`
	// FileID — id файла (если известен)
	FileID string `json:"fileId,omitempty"`
	// Path — ключ файла на диске относительно корня хранилища
	Path        string `json:"path,omitempty"`
	Description string `json:"description"`
}

// ReconcileSummary — счётчики по типам.
type ReconcileSummary struct {
	Ok              int `json:"ok"`
	MissingContent  int `json:"missingContent"`
	OrphanedContent int `json:"orphanedContent"`
	PartialUploads  int `json:"partialUploads"`
}

// ReconcileReport — результат сверки.
type ReconcileReport struct {
	StartedAt    time.Time        `json:"startedAt"`
	CompletedAt  time.Time        `json:"completedAt"`
	FilesChecked int              `json:"filesChecked"`
	Issues       []ReconcileIssue `json:"issues"`
	Summary      ReconcileSummary `json:"summary"`
}

// ReconcileService — сервис сверки хранилища.
type ReconcileService struct {
	catalog   *catalogstore.Store
	buckets   *filestore.FileStore
	registry  *tenantdb.Registry
	locations []string
	logger    *slog.Logger

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool
}

// NewReconcileService создаёт сервис сверки. registry может быть nil.
// locations — дополнительные location тенантов помимо открытых в реестре.
func NewReconcileService(
	catalog *catalogstore.Store,
	buckets *filestore.FileStore,
	registry *tenantdb.Registry,
	locations []string,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		catalog:   catalog,
		buckets:   buckets,
		registry:  registry,
		locations: locations,
		logger:    logger.With(slog.String("component", "reconcile")),
	}
}

// IsInProgress возвращает true, если сверка выполняется.
func (rs *ReconcileService) IsInProgress() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.inProcess
}

// RunOnce выполняет одну сверку.
// Если сверка уже выполняется, возвращает ErrReconcileInProgress.
func (rs *ReconcileService) RunOnce(ctx context.Context) (*ReconcileReport, error) {
	rs.mu.Lock()
	if rs.inProcess {
		rs.mu.Unlock()
		rs.logger.Warn("Reconciliation уже выполняется, пропуск")
		return nil, ErrReconcileInProgress
	}
	rs.inProcess = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.inProcess = false
		rs.mu.Unlock()
	}()

	report := &ReconcileReport{StartedAt: time.Now().UTC(), Issues: []ReconcileIssue{}}
	rs.logger.Info("Reconciliation начата")

	if err := rs.reconcileCatalog(ctx, report); err != nil {
		return nil, err
	}

	if rs.registry != nil {
		for _, loc := range mergeLocations(rs.registry.Locations(), rs.locations) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := rs.reconcileTenant(ctx, loc, report); err != nil {
				return nil, err
			}
		}
	}

	report.CompletedAt = time.Now().UTC()

	for _, issue := range report.Issues {
		switch issue.Type {
		case IssueMissingContent:
			report.Summary.MissingContent++
		case IssueOrphanedContent:
			report.Summary.OrphanedContent++
		case IssuePartialUpload:
			report.Summary.PartialUploads++
		}
		reconcileIssuesTotal.WithLabelValues(string(issue.Type)).Inc()
	}
	report.Summary.Ok = report.FilesChecked - report.Summary.MissingContent
	if report.Summary.Ok < 0 {
		report.Summary.Ok = 0
	}

	duration := report.CompletedAt.Sub(report.StartedAt)
	reconcileRunsTotal.Inc()
	reconcileDurationSeconds.Observe(duration.Seconds())

	rs.logger.Info("Reconciliation завершена",
		slog.Int("files_checked", report.FilesChecked),
		slog.Int("issues", len(report.Issues)),
		slog.Int("ok", report.Summary.Ok),
		slog.Duration("duration", duration),
	)
	return report, nil
}

// reconcileCatalog сверяет каталог бакетов с <root>/buckets.
func (rs *ReconcileService) reconcileCatalog(ctx context.Context, report *ReconcileReport) error {
	catalog, err := rs.catalog.Get(ctx)
	if err != nil {
		return err
	}

	// Все ключи, известные каталогу (включая удалённые)
	known := make(map[string]bool)

	if catalog != nil {
		for _, b := range catalog.Buckets() {
			for _, f := range b.Files() {
				key := b.ID() + "/" + f.ID()
				known[key] = true

				if b.IsDeleted() || f.IsDeleted() {
					continue
				}
				report.FilesChecked++
				if !rs.buckets.Exists(key) {
					report.Issues = append(report.Issues, ReconcileIssue{
						Type:        IssueMissingContent,
						Namespace:   b.ID(),
						FileID:      f.ID(),
						Path:        key,
						Description: "Активный файл каталога без содержимого на диске",
					})
				}
			}
		}
	}

	return rs.buckets.Walk(func(e filestore.Entry) error {
		if e.Partial() {
			report.Issues = append(report.Issues, ReconcileIssue{
				Type:        IssuePartialUpload,
				Namespace:   bucketOfKey(e.Key),
				Path:        e.Key,
				Description: "Незавершённая загрузка",
			})
			return nil
		}
		if !known[e.Key] {
			report.Issues = append(report.Issues, ReconcileIssue{
				Type:        IssueOrphanedContent,
				Namespace:   bucketOfKey(e.Key),
				Path:        e.Key,
				Description: "Файл на диске без записи в каталоге",
			})
		}
		return nil
	})
}

// reconcileTenant сверяет записи тенанта с <location>/<cdnFolder>/files.
func (rs *ReconcileService) reconcileTenant(ctx context.Context, location string, report *ReconcileReport) error {
	repo, err := rs.registry.Open(ctx, location)
	if err != nil {
		return err
	}
	files, err := filestore.New(filepath.Join(repo.Dir(), TenantFilesDir))
	if err != nil {
		return err
	}

	records, err := repo.List(ctx)
	if err != nil {
		return err
	}

	known := make(map[string]bool, len(records))
	for _, rec := range records {
		known[rec.ID] = true
		if rec.Deleted() {
			continue
		}
		report.FilesChecked++
		if !files.Exists(rec.ID) {
			report.Issues = append(report.Issues, ReconcileIssue{
				Type:        IssueMissingContent,
				Namespace:   location,
				FileID:      rec.ID,
				Path:        rec.ID,
				Description: "Активная запись тенанта без содержимого на диске",
			})
		}
	}

	return files.Walk(func(e filestore.Entry) error {
		switch {
		case e.Partial():
			report.Issues = append(report.Issues, ReconcileIssue{
				Type:        IssuePartialUpload,
				Namespace:   location,
				Path:        e.Key,
				Description: "Незавершённая загрузка",
			})
		case !known[e.Key]:
			report.Issues = append(report.Issues, ReconcileIssue{
				Type:        IssueOrphanedContent,
				Namespace:   location,
				Path:        e.Key,
				Description: "Файл на диске без записи тенанта",
			})
		}
		return nil
	})
}

// bucketOfKey возвращает id бакета из ключа "<bucketId>/<fileId>".
func bucketOfKey(key string) string {
	bucket, _, _ := strings.Cut(key, "/")
	return bucket
}
