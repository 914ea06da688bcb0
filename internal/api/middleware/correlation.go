package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// HeaderCorrelationID — заголовок сквозного идентификатора запроса.
const HeaderCorrelationID = "X-Corr-Id"

// ContextKeyCorrelationID — ключ correlation id в контексте запроса.
const ContextKeyCorrelationID contextKey = "corr_id"

// CorrelationID принимает X-Corr-Id клиента или выдаёт новый UUID
// и возвращает его в ответе. Должен стоять до RequestLogger.
func CorrelationID(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			corrID := strings.TrimSpace(r.Header.Get(HeaderCorrelationID))
			if corrID == "" {
				corrID = uuid.NewString()
				logger.LogAttrs(r.Context(), slog.LevelWarn, "Запрос без correlation id",
					slog.String("corr_id", corrID),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
			}

			w.Header().Set(HeaderCorrelationID, corrID)
			ctx := context.WithValue(r.Context(), ContextKeyCorrelationID, corrID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CorrelationIDFromContext извлекает correlation id из контекста запроса.
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ContextKeyCorrelationID).(string)
	return id
}
