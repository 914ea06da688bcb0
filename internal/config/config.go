// Пакет config — загрузка и валидация конфигурации micro-cdn
// из переменных окружения и необязательного файла .env.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации micro-cdn.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Корень хранилища: catalog.json и каталоги бакетов
	RootPath string
	// Имя служебного каталога внутри location тенанта
	FolderName string
	// Путь к TLS сертификату (опционально)
	TLSCert string
	// Путь к TLS приватному ключу (опционально)
	TLSKey string
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Максимальный размер тела загрузки в байтах
	MaxUploadSize int64
	// Максимальный размер JSON с data URI в байтах
	MaxDataURISize int64

	// Публичный RSA-ключ проверки JWT (PEM или base64url PEM)
	TokenPublicKey string
	// URL JWKS endpoint (если публичный ключ не задан)
	JWKSUrl string
	// Путь к CA-сертификату JWKS endpoint (опционально)
	JWKSCACert string
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение часов при проверке JWT
	JWTLeeway time.Duration

	// Размер кэша строк тенантов (0 — кэш выключен)
	RowCacheSize int
	// Время жизни записи кэша строк
	RowCacheTTL time.Duration

	// Интервал фоновой очистки (0 — выключена)
	SweepInterval time.Duration
	// Возраст, после которого незавершённая загрузка (.part) удаляется
	PartialUploadTTL time.Duration

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
	// Таймаут чтения запроса (включая тело)
	HTTPReadTimeout time.Duration
	// Таймаут простоя keep-alive соединения
	HTTPIdleTimeout time.Duration

	// Разрешённые CORS origins; "*" — любой origin, пустой список — CORS выключен
	CORSAllowedOrigins []string

	// Имя сервиса в графе topologymetrics
	ServiceName string
	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
}

// AuthEnabled сообщает, настроена ли проверка JWT (маршруты тенантов и обслуживания).
func (c *Config) AuthEnabled() bool {
	return c.TokenPublicKey != "" || c.JWKSUrl != ""
}

// TLSEnabled сообщает, заданы ли сертификат и ключ.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
// Файл .env в рабочем каталоге читается, если существует;
// уже заданные переменные окружения имеют приоритет.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("загрузка .env: %w", err)
		}
	}

	cfg := &Config{}

	// CDN_PORT — порт HTTP-сервера (по умолчанию 8080)
	port, err := getEnvInt("CDN_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("CDN_PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("CDN_PORT: значение %d вне допустимого диапазона 1-65535", port)
	}
	cfg.Port = port

	// CDN_ROOT_PATH — обязательный
	cfg.RootPath, err = getEnvRequired("CDN_ROOT_PATH")
	if err != nil {
		return nil, err
	}

	// CDN_FOLDER_NAME — служебный каталог тенанта (по умолчанию micro-cdn)
	cfg.FolderName = getEnvDefault("CDN_FOLDER_NAME", "micro-cdn")
	if strings.ContainsAny(cfg.FolderName, `/\`) || cfg.FolderName == "." || cfg.FolderName == ".." {
		return nil, fmt.Errorf("CDN_FOLDER_NAME: недопустимое значение %q", cfg.FolderName)
	}

	// CDN_TLS_CERT / CDN_TLS_KEY — оба или ни одного
	cfg.TLSCert = getEnvDefault("CDN_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("CDN_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, errors.New("CDN_TLS_CERT и CDN_TLS_KEY задаются только вместе")
	}

	// CDN_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("CDN_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("CDN_LOG_LEVEL: %w", err)
	}

	// CDN_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("CDN_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("CDN_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// CDN_MAX_UPLOAD_SIZE — лимит тела загрузки (по умолчанию 1 GiB)
	cfg.MaxUploadSize, err = getEnvPositiveInt64("CDN_MAX_UPLOAD_SIZE", 1<<30)
	if err != nil {
		return nil, err
	}

	// CDN_MAX_DATA_URI_SIZE — лимит JSON с data URI (по умолчанию 32 MiB)
	cfg.MaxDataURISize, err = getEnvPositiveInt64("CDN_MAX_DATA_URI_SIZE", 32<<20)
	if err != nil {
		return nil, err
	}

	// CDN_TOKEN_PUBLIC_KEY / CDN_JWKS_URL — источники ключей JWT (опционально).
	// Без них маршруты тенантов и обслуживания не монтируются.
	cfg.TokenPublicKey = getEnvDefault("CDN_TOKEN_PUBLIC_KEY", "")
	cfg.JWKSUrl = getEnvDefault("CDN_JWKS_URL", "")
	cfg.JWKSCACert = getEnvDefault("CDN_JWKS_CA_CERT", "")

	cfg.JWKSClientTimeout, err = getEnvDuration("CDN_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CDN_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDuration("CDN_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CDN_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWTLeeway, err = getEnvDuration("CDN_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CDN_JWT_LEEWAY: %w", err)
	}

	// CDN_ROW_CACHE_SIZE — кэш строк тенантов (по умолчанию 1024, 0 — выключен)
	cfg.RowCacheSize, err = getEnvInt("CDN_ROW_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("CDN_ROW_CACHE_SIZE: %w", err)
	}
	if cfg.RowCacheSize < 0 {
		return nil, fmt.Errorf("CDN_ROW_CACHE_SIZE: значение не может быть отрицательным")
	}
	cfg.RowCacheTTL, err = getEnvDuration("CDN_ROW_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CDN_ROW_CACHE_TTL: %w", err)
	}

	// CDN_SWEEP_INTERVAL — интервал очистки (по умолчанию 0, выключена)
	cfg.SweepInterval, err = getEnvDuration("CDN_SWEEP_INTERVAL", 0)
	if err != nil {
		return nil, fmt.Errorf("CDN_SWEEP_INTERVAL: %w", err)
	}
	if cfg.SweepInterval < 0 {
		return nil, fmt.Errorf("CDN_SWEEP_INTERVAL: значение не может быть отрицательным")
	}
	cfg.PartialUploadTTL, err = getEnvDuration("CDN_PARTIAL_UPLOAD_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("CDN_PARTIAL_UPLOAD_TTL: %w", err)
	}

	// CDN_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 10s)
	cfg.ShutdownTimeout, err = getEnvDuration("CDN_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CDN_SHUTDOWN_TIMEOUT: %w", err)
	}

	// CDN_HTTP_READ_TIMEOUT — 0 означает без ограничения (долгие загрузки)
	cfg.HTTPReadTimeout, err = getEnvDuration("CDN_HTTP_READ_TIMEOUT", 0)
	if err != nil {
		return nil, fmt.Errorf("CDN_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("CDN_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CDN_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// CDN_CORS_ALLOWED_ORIGINS — список через запятую (по умолчанию "*"), "none" выключает CORS
	cfg.CORSAllowedOrigins = parseOrigins(getEnvDefault("CDN_CORS_ALLOWED_ORIGINS", "*"))

	cfg.ServiceName = getEnvDefault("CDN_SERVICE_NAME", "micro-cdn")
	cfg.DephealthGroup = getEnvDefault("CDN_DEPHEALTH_GROUP", "micro-cdn")
	cfg.DephealthCheckInterval, err = getEnvDuration("CDN_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CDN_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// parseOrigins разбирает список origins через запятую.
// Значение "none" означает пустой список.
func parseOrigins(val string) []string {
	if strings.EqualFold(strings.TrimSpace(val), "none") {
		return nil
	}
	var origins []string
	for _, o := range strings.Split(val, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvPositiveInt64 возвращает положительное int64 значение или значение по умолчанию.
func getEnvPositiveInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: некорректное целое число: %q", key, val)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s: значение должно быть положительным, получено %d", key, n)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
