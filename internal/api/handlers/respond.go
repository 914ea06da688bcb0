// respond.go — сопоставление ошибок сервисов с HTTP-ответами
// и потоковая отдача содержимого.
package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/micro-cdn/internal/api/errors"
	"github.com/bigkaa/goartstore/micro-cdn/internal/api/middleware"
	"github.com/bigkaa/goartstore/micro-cdn/internal/domain/model"
	"github.com/bigkaa/goartstore/micro-cdn/internal/service"
	"github.com/bigkaa/goartstore/micro-cdn/internal/storage/tenantdb"
)

// writeServiceError записывает ответ для ошибки сервисного слоя.
// Неожиданные ошибки логируются и отдаются как 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, attrs ...slog.Attr) {
	var tooLarge *http.MaxBytesError
	var unsatisfiable *service.UnsatisfiableRangeError

	switch {
	case errors.As(err, &tooLarge):
		apierrors.FileTooLarge(w, "Размер содержимого превышает "+strconv.FormatInt(tooLarge.Limit, 10)+" байт")
	case errors.As(err, &unsatisfiable):
		w.Header().Set("Content-Range", "bytes */"+strconv.FormatInt(unsatisfiable.Total, 10))
		apierrors.InvalidRange(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Ресурс не найден")
	case errors.Is(err, service.ErrAlreadyExists):
		apierrors.AlreadyExists(w, chi.URLParam(r, "*"))
	case errors.Is(err, service.ErrMissingMIME):
		apierrors.MissingContentType(w)
	case errors.Is(err, service.ErrInvalidMIME):
		apierrors.InvalidMIMEType(w, r.Header.Get("Content-Type"))
	case errors.Is(err, service.ErrInvalidRange),
		errors.Is(err, service.ErrInvalidPayload),
		errors.Is(err, service.ErrInvalidPath),
		errors.Is(err, model.ErrInvalidID):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, tenantdb.ErrInvalidLocation):
		apierrors.Forbidden(w, "Некорректный location в токене")
	case errors.Is(err, service.ErrReconcileInProgress):
		apierrors.ReconcileInProgress(w, "Сверка уже выполняется")
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		// Клиент ушёл, отвечать некому
		logger.LogAttrs(r.Context(), slog.LevelDebug, "Запрос отменён клиентом", attrs...)
	default:
		logAttrs := append([]slog.Attr{
			slog.String("error", err.Error()),
			slog.String("corr_id", middleware.CorrelationIDFromContext(r.Context())),
		}, attrs...)
		logger.LogAttrs(r.Context(), slog.LevelError, "Внутренняя ошибка", logAttrs...)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

// writeContent отдаёт подготовленное содержимое и закрывает его.
//
// Если чтение с диска обрывается после отправки заголовков, соединение
// разрывается (http.ErrAbortHandler): клиент не получает усечённый
// ответ с видимостью успеха.
func writeContent(w http.ResponseWriter, r *http.Request, logger *slog.Logger, content *service.Content, attrs ...slog.Attr) {
	defer content.Body.Close()

	for k, v := range content.Header {
		w.Header()[k] = v
	}
	w.WriteHeader(content.Status)

	if r.Method == http.MethodHead {
		return
	}

	n, err := io.Copy(w, content.Body)
	if err == nil && n == content.Length {
		return
	}
	if r.Context().Err() != nil {
		logger.LogAttrs(r.Context(), slog.LevelDebug, "Отдача прервана клиентом", attrs...)
		return
	}

	logAttrs := append([]slog.Attr{
		slog.Int64("sent", n),
		slog.Int64("expected", content.Length),
		slog.String("corr_id", middleware.CorrelationIDFromContext(r.Context())),
	}, attrs...)
	if err != nil {
		logAttrs = append(logAttrs, slog.String("error", err.Error()))
	}
	logger.LogAttrs(r.Context(), slog.LevelError, "Ошибка чтения файла во время отдачи", logAttrs...)
	panic(http.ErrAbortHandler)
}
