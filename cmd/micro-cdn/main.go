// Точка входа micro-cdn — сервиса хранения и раздачи медиа-файлов.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/bigkaa/goartstore/micro-cdn/internal/api/handlers"
	"github.com/bigkaa/goartstore/micro-cdn/internal/api/middleware"
	"github.com/bigkaa/goartstore/micro-cdn/internal/config"
	"github.com/bigkaa/goartstore/micro-cdn/internal/server"
	"github.com/bigkaa/goartstore/micro-cdn/internal/service"
	"github.com/bigkaa/goartstore/micro-cdn/internal/storage/catalogstore"
	"github.com/bigkaa/goartstore/micro-cdn/internal/storage/filestore"
	"github.com/bigkaa/goartstore/micro-cdn/internal/storage/tenantdb"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	logger := config.SetupLogger(cfg)
	logger.Info("micro-cdn запускается",
		slog.String("version", config.Version),
		slog.String("root_path", cfg.RootPath),
		slog.Int("port", cfg.Port),
		slog.Bool("auth", cfg.AuthEnabled()),
	)

	ctx := context.Background()

	// --- Инициализация компонентов ---

	// 1. Каталог бакетов (catalog.json)
	catalog := catalogstore.New(cfg.RootPath, logger)
	if _, err := catalog.Init(ctx); err != nil {
		logger.Error("Ошибка инициализации каталога", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Файловое хранилище бакетов
	files, err := filestore.New(filepath.Join(cfg.RootPath, filestore.BucketsDir))
	if err != nil {
		logger.Error("Ошибка инициализации FileStore", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 3. Реестр баз тенантов (открываются лениво по location из JWT)
	registry := tenantdb.NewRegistry(tenantdb.Options{
		FolderName: cfg.FolderName,
		CacheSize:  cfg.RowCacheSize,
		CacheTTL:   cfg.RowCacheTTL,
	}, logger)

	// 4. Сервисы
	bucketSvc := service.NewBucketService(catalog, files, logger)
	ingestSvc := service.NewIngestService(catalog, files, logger)
	downloadSvc := service.NewDownloadService(catalog, files, logger)
	tenantSvc := service.NewTenantService(registry, logger)
	reconcileSvc := service.NewReconcileService(catalog, files, registry, nil, logger)

	// 5. Фоновые процессы

	// 5.1 Очистка содержимого удалённых файлов
	var sweepSvc *service.SweepService
	if cfg.SweepInterval > 0 {
		sweepSvc = service.NewSweepService(catalog, files, registry, service.SweepOptions{
			Interval:   cfg.SweepInterval,
			PartialTTL: cfg.PartialUploadTTL,
		}, logger)
		sweepSvc.Start(ctx)
	} else {
		logger.Info("Фоновая очистка отключена (CDN_SWEEP_INTERVAL=0)")
	}

	// 5.2 topologymetrics — мониторинг JWKS endpoint
	var dephealthSvc *service.DephealthService
	var deps handlers.DependencyHealth
	if cfg.JWKSUrl != "" {
		dephealthSvc, err = service.NewDephealthService(
			cfg.ServiceName,
			cfg.DephealthGroup,
			"jwks",
			cfg.JWKSUrl,
			cfg.DephealthCheckInterval,
			true,
			logger,
		)
		if err != nil {
			logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
				slog.String("error", err.Error()),
			)
			dephealthSvc = nil
		} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
			dephealthSvc = nil
		} else {
			deps = dephealthSvc
			logger.Info("topologymetrics запущен",
				slog.String("jwks_url", cfg.JWKSUrl),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 6. JWT middleware (маршруты тенантов и обслуживания)
	var jwtAuth *middleware.JWTAuth
	if cfg.AuthEnabled() {
		jwtAuth, err = middleware.NewJWTAuth(middleware.JWTAuthConfig{
			PublicKey:       cfg.TokenPublicKey,
			JWKSURL:         cfg.JWKSUrl,
			CACertPath:      cfg.JWKSCACert,
			ClientTimeout:   cfg.JWKSClientTimeout,
			RefreshInterval: cfg.JWKSRefreshInterval,
			JWTLeeway:       cfg.JWTLeeway,
		}, logger)
		if err != nil {
			logger.Error("Ошибка настройки JWT", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// CORS для браузерных клиентов
	var corsMiddleware func(http.Handler) http.Handler
	if len(cfg.CORSAllowedOrigins) > 0 {
		corsMiddleware = server.CORS(cfg.CORSAllowedOrigins)
		logger.Info("CORS включён", slog.Any("origins", cfg.CORSAllowedOrigins))
	} else {
		logger.Info("CORS выключен")
	}

	// 7. Handlers и роутер
	router := server.NewRouter(server.Handlers{
		Buckets:     handlers.NewBucketsHandler(bucketSvc, ingestSvc, downloadSvc, cfg.MaxUploadSize, cfg.MaxDataURISize, logger),
		Tenants:     handlers.NewTenantFilesHandler(tenantSvc, cfg.MaxUploadSize, logger),
		Health:      handlers.NewHealthHandler(cfg.ServiceName, cfg.RootPath, catalog, deps),
		System:      handlers.NewSystemHandler(cfg.ServiceName, catalog, files, registry, logger),
		Maintenance: handlers.NewMaintenanceHandler(reconcileSvc, logger),
		Auth:        jwtAuth,
		CORS:        corsMiddleware,
	}, logger)

	// 8. Запуск HTTP-сервера
	srv := server.New(cfg, logger, router)
	runErr := srv.Run(ctx)

	// --- Graceful shutdown фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")

	if sweepSvc != nil {
		sweepSvc.Stop()
	}
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	if err := registry.Close(); err != nil {
		logger.Warn("Ошибка закрытия баз тенантов", slog.String("error", err.Error()))
	}

	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
	logger.Info("micro-cdn остановлен")
}
