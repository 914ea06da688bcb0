// metrics.go — Prometheus HTTP метрики micro-cdn.
// Регистрирует метрики: cdn_http_requests_total, cdn_http_request_duration_seconds.
// Бизнес-метрики (cdn_operations_total, cdn_sweep_* и др.) регистрируются
// в сервисном слое.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cdn_http_requests_total",
			Help: "Общее количество HTTP-запросов к micro-cdn",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cdn_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к micro-cdn в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// httpResponseBytes — отданные байты (включая потоковую отдачу файлов).
	httpResponseBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cdn_http_response_bytes_total",
			Help: "Общее количество байт, отданных в HTTP-ответах",
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Лейбл path — шаблон маршрута chi ({bucketId}, {fileId}, *), чтобы
// идентификаторы не раздували кардинальность.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			path := routePattern(r)
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
			httpResponseBytes.WithLabelValues(r.Method, path).Add(float64(wrapped.written))
		})
	}
}

// routePattern возвращает шаблон маршрута, заполненный chi после обработки.
// Для несовпавших маршрутов — "unmatched".
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
