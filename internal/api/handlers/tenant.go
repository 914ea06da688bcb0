// tenant.go — HTTP handlers файлов тенантов: /cdn/files/*.
// Тенант — location из JWT; путь файла — остаток URL.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/micro-cdn/internal/api/errors"
	"github.com/bigkaa/goartstore/micro-cdn/internal/api/middleware"
	"github.com/bigkaa/goartstore/micro-cdn/internal/service"
)

// TenantFilesHandler — обработчик файлов тенантов.
type TenantFilesHandler struct {
	tenants       *service.TenantService
	maxUploadSize int64
	logger        *slog.Logger
}

// NewTenantFilesHandler создаёт обработчик файлов тенантов.
func NewTenantFilesHandler(tenants *service.TenantService, maxUploadSize int64, logger *slog.Logger) *TenantFilesHandler {
	return &TenantFilesHandler{
		tenants:       tenants,
		maxUploadSize: maxUploadSize,
		logger:        logger.With(slog.String("component", "tenant_files_handler")),
	}
}

// GetFile обрабатывает GET /cdn/files/*.
func (h *TenantFilesHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	location := middleware.LocationFromContext(r.Context())
	filePath := chi.URLParam(r, "*")

	content, err := h.tenants.Stream(r.Context(), location, filePath, r.Header.Get("Range"))
	if err != nil {
		writeServiceError(w, r, h.logger, err,
			slog.String("location", location),
			slog.String("file_id", filePath),
		)
		return
	}

	writeContent(w, r, h.logger, content,
		slog.String("location", location),
		slog.String("file_id", filePath),
	)
}

// UploadFile обрабатывает POST /cdn/files/*. Тело — содержимое файла.
func (h *TenantFilesHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	location := middleware.LocationFromContext(r.Context())
	filePath := chi.URLParam(r, "*")
	body := http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	rec, err := h.tenants.Upload(r.Context(), location, filePath, body)
	if err != nil {
		if errors.Is(err, service.ErrAlreadyExists) {
			apierrors.AlreadyExists(w, filePath)
			return
		}
		writeServiceError(w, r, h.logger, err,
			slog.String("location", location),
			slog.String("file_id", filePath),
		)
		return
	}

	apierrors.WriteData(w, http.StatusCreated, rec)
}

// DeleteFile обрабатывает DELETE /cdn/files/*. Идемпотентно: 204.
func (h *TenantFilesHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	location := middleware.LocationFromContext(r.Context())
	filePath := chi.URLParam(r, "*")

	if err := h.tenants.Delete(r.Context(), location, filePath); err != nil {
		writeServiceError(w, r, h.logger, err,
			slog.String("location", location),
			slog.String("file_id", filePath),
		)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
