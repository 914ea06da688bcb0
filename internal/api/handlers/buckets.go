// buckets.go — HTTP handlers бакетов и файлов в бакетах.
// POST/DELETE /cdn/buckets, POST/GET/DELETE /cdn/buckets/{bucketId}/files.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/micro-cdn/internal/api/errors"
	"github.com/bigkaa/goartstore/micro-cdn/internal/domain/media"
	"github.com/bigkaa/goartstore/micro-cdn/internal/domain/model"
	"github.com/bigkaa/goartstore/micro-cdn/internal/service"
)

// createBucketRequest — тело POST /cdn/buckets: {"data": {"id": "..."}}.
type createBucketRequest struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// uploadDataURIRequest — тело POST .../files/base64: {"data": {"content": "data:..."}}.
type uploadDataURIRequest struct {
	Data struct {
		Content string `json:"content"`
	} `json:"data"`
}

// BucketResponse — бакет в ответе API.
type BucketResponse struct {
	ID               string `json:"id"`
	MarkedToDeletion bool   `json:"markedToDeletion"`
}

// FileResponse — файл бакета в ответе API.
type FileResponse struct {
	ID               string     `json:"id"`
	BucketID         string     `json:"bucketId"`
	Extension        string     `json:"extension"`
	MIMEType         string     `json:"mimeType"`
	MarkedToDeletion bool       `json:"markedToDeletion"`
	MediaType        media.Type `json:"mediaType"`
}

func toFileResponse(f *model.File) FileResponse {
	return FileResponse{
		ID:               f.ID(),
		BucketID:         f.BucketID(),
		Extension:        f.Extension(),
		MIMEType:         f.MIMEType(),
		MarkedToDeletion: f.IsDeleted(),
		MediaType:        f.MediaType(),
	}
}

// BucketsHandler — обработчик endpoints бакетов.
type BucketsHandler struct {
	buckets        *service.BucketService
	ingest         *service.IngestService
	download       *service.DownloadService
	maxUploadSize  int64
	maxDataURISize int64
	logger         *slog.Logger
}

// NewBucketsHandler создаёт обработчик бакетов.
// maxUploadSize и maxDataURISize — лимиты тела запроса в байтах.
func NewBucketsHandler(
	buckets *service.BucketService,
	ingest *service.IngestService,
	download *service.DownloadService,
	maxUploadSize, maxDataURISize int64,
	logger *slog.Logger,
) *BucketsHandler {
	return &BucketsHandler{
		buckets:        buckets,
		ingest:         ingest,
		download:       download,
		maxUploadSize:  maxUploadSize,
		maxDataURISize: maxDataURISize,
		logger:         logger.With(slog.String("component", "buckets_handler")),
	}
}

// ValidateBucketID — middleware для маршрутов /cdn/buckets/{bucketId}:
// некорректный идентификатор отклоняется до обращения к сервисам.
func ValidateBucketID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bucketID := chi.URLParam(r, "bucketId")
		if err := model.ValidateBucketID(bucketID); err != nil {
			apierrors.InvalidBucketID(w, bucketID)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CreateBucket обрабатывает POST /cdn/buckets.
func (h *BucketsHandler) CreateBucket(w http.ResponseWriter, r *http.Request) {
	var req createBucketRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}
	if req.Data.ID == "" {
		apierrors.ValidationError(w, "Поле data.id обязательно",
			apierrors.Detail{Code: apierrors.CodeValidationError, Message: "Поле обязательно", Field: "data.id"})
		return
	}
	if err := model.ValidateBucketID(req.Data.ID); err != nil {
		apierrors.InvalidBucketID(w, req.Data.ID)
		return
	}

	bucket, err := h.buckets.CreateBucket(r.Context(), req.Data.ID)
	if err != nil {
		if errors.Is(err, service.ErrAlreadyExists) {
			apierrors.BucketAlreadyExists(w, req.Data.ID)
			return
		}
		writeServiceError(w, r, h.logger, err, slog.String("bucket_id", req.Data.ID))
		return
	}

	apierrors.WriteData(w, http.StatusCreated, BucketResponse{ID: bucket.ID(), MarkedToDeletion: bucket.IsDeleted()})
}

// DeleteBucket обрабатывает DELETE /cdn/buckets/{bucketId}.
// Идемпотентно: 200 и для отсутствующего бакета.
func (h *BucketsHandler) DeleteBucket(w http.ResponseWriter, r *http.Request) {
	bucketID := chi.URLParam(r, "bucketId")
	if err := h.buckets.DeleteBucket(r.Context(), bucketID); err != nil {
		writeServiceError(w, r, h.logger, err, slog.String("bucket_id", bucketID))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// UploadFile обрабатывает POST /cdn/buckets/{bucketId}/files.
// Тело запроса — содержимое файла, MIME-тип — из Content-Type.
func (h *BucketsHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	bucketID := chi.URLParam(r, "bucketId")
	body := http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	file, err := h.ingest.Upload(r.Context(), bucketID, r.Header.Get("Content-Type"), body)
	if err != nil {
		writeServiceError(w, r, h.logger, err, slog.String("bucket_id", bucketID))
		return
	}

	apierrors.WriteData(w, http.StatusCreated, toFileResponse(file))
}

// UploadDataURI обрабатывает POST /cdn/buckets/{bucketId}/files/base64.
func (h *BucketsHandler) UploadDataURI(w http.ResponseWriter, r *http.Request) {
	bucketID := chi.URLParam(r, "bucketId")

	var req uploadDataURIRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxDataURISize)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeServiceError(w, r, h.logger, err)
			return
		}
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}
	if req.Data.Content == "" {
		apierrors.ValidationError(w, "Поле data.content обязательно",
			apierrors.Detail{Code: apierrors.CodeValidationError, Message: "Поле обязательно", Field: "data.content"})
		return
	}

	file, err := h.ingest.UploadDataURI(r.Context(), bucketID, req.Data.Content)
	if err != nil {
		if errors.Is(err, service.ErrInvalidMIME) {
			mimeType := ""
			if parsed, perr := service.ParseDataURI(req.Data.Content); perr == nil {
				mimeType = parsed.MIMEType
			}
			apierrors.InvalidMIMEType(w, mimeType)
			return
		}
		writeServiceError(w, r, h.logger, err, slog.String("bucket_id", bucketID))
		return
	}

	apierrors.WriteData(w, http.StatusCreated, toFileResponse(file))
}

// DownloadFile обрабатывает GET /cdn/buckets/{bucketId}/files/{fileId}.
// Для видео поддерживает Range (206).
func (h *BucketsHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	bucketID := chi.URLParam(r, "bucketId")
	fileID := chi.URLParam(r, "fileId")

	content, err := h.download.Stream(r.Context(), bucketID, fileID, r.Header.Get("Range"))
	if err != nil {
		writeServiceError(w, r, h.logger, err,
			slog.String("bucket_id", bucketID),
			slog.String("file_id", fileID),
		)
		return
	}

	writeContent(w, r, h.logger, content,
		slog.String("bucket_id", bucketID),
		slog.String("file_id", fileID),
	)
}

// DeleteFile обрабатывает DELETE /cdn/buckets/{bucketId}/files/{fileId}.
// Идемпотентно: 204 и для отсутствующего файла.
func (h *BucketsHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	bucketID := chi.URLParam(r, "bucketId")
	fileID := chi.URLParam(r, "fileId")

	if err := h.buckets.DeleteFile(r.Context(), bucketID, fileID); err != nil {
		writeServiceError(w, r, h.logger, err,
			slog.String("bucket_id", bucketID),
			slog.String("file_id", fileID),
		)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
