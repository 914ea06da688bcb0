// system.go — обработчик GET /cdn/info (информация об экземпляре micro-cdn).
// Публичный endpoint (без аутентификации) для мониторинга.
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/micro-cdn/internal/api/errors"
	"github.com/bigkaa/goartstore/micro-cdn/internal/config"
	"github.com/bigkaa/goartstore/micro-cdn/internal/storage/filestore"
)

// DiskUsageProvider — ёмкость файловой системы корня хранилища.
type DiskUsageProvider interface {
	DiskUsage() (filestore.DiskUsage, error)
}

// TenantLister — список открытых тенантов.
type TenantLister interface {
	Locations() []string
}

// CatalogInfo — счётчики каталога бакетов.
type CatalogInfo struct {
	Buckets        int `json:"buckets"`
	DeletedBuckets int `json:"deletedBuckets"`
	Files          int `json:"files"`
	DeletedFiles   int `json:"deletedFiles"`
}

// InfoResponse — ответ GET /cdn/info.
type InfoResponse struct {
	Service  string               `json:"service"`
	Version  string               `json:"version"`
	Status   string               `json:"status"`
	Catalog  CatalogInfo          `json:"catalog"`
	Tenants  int                  `json:"tenants"`
	Capacity *filestore.DiskUsage `json:"capacity,omitempty"`
}

// SystemHandler — обработчик системных endpoints.
type SystemHandler struct {
	service string
	catalog CatalogReader
	disk    DiskUsageProvider
	tenants TenantLister
	logger  *slog.Logger
}

// NewSystemHandler создаёт обработчик системных endpoints.
// disk и tenants могут быть nil.
func NewSystemHandler(
	service string,
	catalog CatalogReader,
	disk DiskUsageProvider,
	tenants TenantLister,
	logger *slog.Logger,
) *SystemHandler {
	return &SystemHandler{
		service: service,
		catalog: catalog,
		disk:    disk,
		tenants: tenants,
		logger:  logger.With(slog.String("component", "system_handler")),
	}
}

// GetInfo обрабатывает GET /cdn/info.
func (h *SystemHandler) GetInfo(w http.ResponseWriter, r *http.Request) {
	resp := InfoResponse{
		Service: h.service,
		Version: config.Version,
		Status:  "online",
	}

	catalog, err := h.catalog.Get(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if catalog == nil {
		resp.Status = "maintenance"
	} else {
		stats := catalog.Stats()
		resp.Catalog = CatalogInfo{
			Buckets:        stats.Buckets,
			DeletedBuckets: stats.DeletedBuckets,
			Files:          stats.Files,
			DeletedFiles:   stats.DeletedFiles,
		}
	}

	if h.tenants != nil {
		resp.Tenants = len(h.tenants.Locations())
	}

	if h.disk != nil {
		usage, err := h.disk.DiskUsage()
		if err != nil {
			h.logger.Warn("Не удалось получить ёмкость диска",
				slog.String("error", err.Error()),
			)
		} else {
			resp.Capacity = &usage
		}
	}

	apierrors.WriteJSON(w, http.StatusOK, resp)
}
