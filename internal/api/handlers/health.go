// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	apierrors "github.com/bigkaa/goartstore/micro-cdn/internal/api/errors"
	"github.com/bigkaa/goartstore/micro-cdn/internal/config"
	"github.com/bigkaa/goartstore/micro-cdn/internal/domain/model"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// CatalogReader — чтение каталога бакетов.
type CatalogReader interface {
	Get(ctx context.Context) (*model.Catalog, error)
}

// DependencyHealth — состояние внешних зависимостей (JWKS).
type DependencyHealth interface {
	Health() map[string]bool
}

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	service string
	// rootDir — корень хранилища (проверка записи)
	rootDir string
	catalog CatalogReader
	deps    DependencyHealth
}

// NewHealthHandler создаёт обработчик health endpoints.
// deps может быть nil: JWKS не настроен.
func NewHealthHandler(service, rootDir string, catalog CatalogReader, deps DependencyHealth) *HealthHandler {
	return &HealthHandler{
		service: service,
		rootDir: rootDir,
		catalog: catalog,
		deps:    deps,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	apierrors.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   config.Version,
		"service":   h.service,
	})
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет: корень хранилища доступен на запись, каталог читается.
// Недоступность JWKS переводит статус в degraded без 503.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	fsCheck := h.checkFilesystem()
	if fsCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	catalogCheck := h.checkCatalog(r.Context())
	if catalogCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	checks := map[string]any{
		"filesystem": fsCheck,
		"catalog":    catalogCheck,
	}

	if h.deps != nil {
		for name, healthy := range h.deps.Health() {
			if healthy {
				checks[name] = map[string]any{"status": "ok"}
				continue
			}
			checks[name] = map[string]any{"status": statusFail}
			if overallStatus != statusFail {
				overallStatus = "degraded"
			}
		}
	}

	apierrors.WriteJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   config.Version,
		"service":   h.service,
		"checks":    checks,
	})
}

// checkFilesystem проверяет доступность корня хранилища на запись.
func (h *HealthHandler) checkFilesystem() map[string]any {
	if h.rootDir == "" {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	testFile := filepath.Join(h.rootDir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Корень хранилища недоступен для записи: " + err.Error(),
		}
	}
	_ = os.Remove(testFile)

	return map[string]any{
		"status": "ok",
	}
}

// checkCatalog проверяет, что документ каталога существует и читается.
func (h *HealthHandler) checkCatalog(ctx context.Context) map[string]any {
	if h.catalog == nil {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	catalog, err := h.catalog.Get(ctx)
	if err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Каталог не читается: " + err.Error(),
		}
	}
	if catalog == nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Каталог не инициализирован",
		}
	}

	return map[string]any{
		"status": "ok",
	}
}
