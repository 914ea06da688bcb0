// Пакет server — HTTP-сервер micro-cdn: маршруты chi, TLS и graceful shutdown.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apierrors "github.com/bigkaa/goartstore/micro-cdn/internal/api/errors"
	"github.com/bigkaa/goartstore/micro-cdn/internal/api/handlers"
	"github.com/bigkaa/goartstore/micro-cdn/internal/api/middleware"
	"github.com/bigkaa/goartstore/micro-cdn/internal/config"
)

// ScopeMaintenance — scope JWT для endpoints обслуживания.
const ScopeMaintenance = "cdn:maintenance"

// Handlers — обработчики, монтируемые в роутер.
// Tenants и Maintenance монтируются только вместе с Auth.
type Handlers struct {
	Buckets     *handlers.BucketsHandler
	Tenants     *handlers.TenantFilesHandler
	Health      *handlers.HealthHandler
	System      *handlers.SystemHandler
	Maintenance *handlers.MaintenanceHandler
	// Auth — JWT middleware; nil, если ключи не настроены
	Auth *middleware.JWTAuth
	// CORS — middleware CORS; nil, если CORS выключен
	CORS func(http.Handler) http.Handler
}

// CORS возвращает CORS middleware для списка origins.
// "*" в списке разрешает любой origin: он возвращается в
// Access-Control-Allow-Origin как есть, чтобы работали credentials.
func CORS(origins []string) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods:   []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Range", middleware.HeaderCorrelationID},
		ExposedHeaders:   []string{"Content-Range", "Accept-Ranges", "Content-Length", middleware.HeaderCorrelationID},
		AllowCredentials: true,
		MaxAge:           300,
	}

	allowAll := false
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		opts.AllowOriginFunc = func(*http.Request, string) bool { return true }
	} else {
		opts.AllowedOrigins = origins
	}
	return cors.Handler(opts)
}

// NewRouter собирает chi-роутер со всеми маршрутами и middleware.
func NewRouter(h Handlers, logger *slog.Logger) http.Handler {
	router := chi.NewRouter()

	// NotFound и MethodNotAllowed задаются до монтирования подроутеров
	router.NotFound(apierrors.ResourceNotFound)
	router.MethodNotAllowed(apierrors.MethodNotAllowed)

	router.Use(chimw.Recoverer)
	router.Use(middleware.CorrelationID(logger))
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())
	if h.CORS != nil {
		router.Use(h.CORS)
	}

	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/cdn/info", h.System.GetInfo)

	router.Route("/cdn/buckets", func(r chi.Router) {
		r.Post("/", h.Buckets.CreateBucket)

		r.Route("/{bucketId}", func(r chi.Router) {
			r.Use(handlers.ValidateBucketID)

			r.Delete("/", h.Buckets.DeleteBucket)
			r.Post("/files", h.Buckets.UploadFile)
			r.Post("/files/base64", h.Buckets.UploadDataURI)
			r.Get("/files/{fileId}", h.Buckets.DownloadFile)
			r.Head("/files/{fileId}", h.Buckets.DownloadFile)
			r.Delete("/files/{fileId}", h.Buckets.DeleteFile)
		})
	})

	if h.Auth == nil {
		logger.Warn("JWT не настроен: маршруты /cdn/files и /cdn/maintenance отключены")
		return router
	}

	if h.Tenants != nil {
		router.Route("/cdn/files", func(r chi.Router) {
			r.Use(h.Auth.Middleware())
			r.Use(middleware.RequireLocation())

			r.Get("/*", h.Tenants.GetFile)
			r.Head("/*", h.Tenants.GetFile)
			r.Post("/*", h.Tenants.UploadFile)
			r.Delete("/*", h.Tenants.DeleteFile)
		})
	}

	if h.Maintenance != nil {
		router.With(
			h.Auth.Middleware(),
			middleware.RequireScope(ScopeMaintenance),
		).Post("/cdn/maintenance/reconcile", h.Maintenance.Reconcile)
	}

	return router
}

// Server — HTTP-сервер micro-cdn.
type Server struct {
	httpServer      *http.Server
	logger          *slog.Logger
	tlsCert         string
	tlsKey          string
	shutdownTimeout time.Duration
}

// New создаёт HTTP-сервер с готовым роутером.
// WriteTimeout не задаётся: отдача видео может длиться сколько угодно.
func New(cfg *config.Config, logger *slog.Logger, handler http.Handler) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       cfg.HTTPReadTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	if cfg.TLSEnabled() {
		srv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return &Server{
		httpServer:      srv,
		logger:          logger.With(slog.String("component", "http_server")),
		tlsCert:         cfg.TLSCert,
		tlsKey:          cfg.TLSKey,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM)
// или отмены ctx. Затем выполняется graceful shutdown с таймаутом.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
			slog.Bool("tls", s.tlsCert != ""),
		)

		var err error
		if s.tlsCert != "" && s.tlsKey != "" {
			err = s.httpServer.ListenAndServeTLS(s.tlsCert, s.tlsKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("Контекст сервера отменён")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...",
		slog.Duration("timeout", s.shutdownTimeout),
	)
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
