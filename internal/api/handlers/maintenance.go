// maintenance.go — обработчик POST /cdn/maintenance/reconcile.
// Делегирует сверку в ReconcileService.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/micro-cdn/internal/api/errors"
	"github.com/bigkaa/goartstore/micro-cdn/internal/service"
)

// ReconcileRunner — интерфейс для запуска сверки.
// Позволяет тестировать handler без полного ReconcileService.
type ReconcileRunner interface {
	// RunOnce выполняет один цикл сверки.
	// Параллельный запуск — service.ErrReconcileInProgress.
	RunOnce(ctx context.Context) (*service.ReconcileReport, error)
}

// MaintenanceHandler — обработчик endpoints обслуживания.
type MaintenanceHandler struct {
	reconciler ReconcileRunner
	logger     *slog.Logger
}

// NewMaintenanceHandler создаёт обработчик maintenance endpoints.
func NewMaintenanceHandler(reconciler ReconcileRunner, logger *slog.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{
		reconciler: reconciler,
		logger:     logger.With(slog.String("component", "maintenance_handler")),
	}
}

// Reconcile обрабатывает POST /cdn/maintenance/reconcile.
// Запускает синхронный цикл сверки и возвращает отчёт.
// Если сверка уже выполняется — 409 RECONCILE_IN_PROGRESS.
func (h *MaintenanceHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.RunOnce(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	apierrors.WriteJSON(w, http.StatusOK, report)
}
