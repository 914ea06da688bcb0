// cdn-maintenance — разовое обслуживание хранилища micro-cdn вне HTTP-сервиса.
//
// Использование:
//
//	cdn-maintenance sweep     --root /data [--tenant /srv/t1 ...] [--partial-ttl 24h]
//	cdn-maintenance reconcile --root /data [--tenant /srv/t1 ...]
//
// sweep удаляет содержимое мягко удалённых файлов и бакетов и брошенные
// частичные загрузки; метаданные не меняются. reconcile печатает отчёт о
// расхождениях метаданных и диска в JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bigkaa/goartstore/micro-cdn/internal/service"
	"github.com/bigkaa/goartstore/micro-cdn/internal/storage/catalogstore"
	"github.com/bigkaa/goartstore/micro-cdn/internal/storage/filestore"
	"github.com/bigkaa/goartstore/micro-cdn/internal/storage/tenantdb"
)

// options — разобранные флаги командной строки.
type options struct {
	command    string
	root       string
	tenants    []string
	folder     string
	partialTTL time.Duration
	logLevel   string
}

// errUsage — некорректные аргументы, справка уже напечатана.
var errUsage = errors.New("некорректные аргументы")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run выполняет команду и возвращает код выхода.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "Ошибка: %v\n", err)
		}
		return 2
	}

	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(opts.logLevel)); err != nil {
		fmt.Fprintf(stderr, "Ошибка: некорректный --log-level %q\n", opts.logLevel)
		return 2
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	catalog := catalogstore.New(opts.root, logger)
	files, err := filestore.New(filepath.Join(opts.root, filestore.BucketsDir))
	if err != nil {
		logger.Error("Ошибка инициализации FileStore", slog.String("error", err.Error()))
		return 1
	}
	registry := tenantdb.NewRegistry(tenantdb.Options{FolderName: opts.folder}, logger)
	defer func() {
		if err := registry.Close(); err != nil {
			logger.Warn("Ошибка закрытия баз тенантов", slog.String("error", err.Error()))
		}
	}()

	var result any
	exitCode := 0
	switch opts.command {
	case "sweep":
		sweep := service.NewSweepService(catalog, files, registry, service.SweepOptions{
			PartialTTL: opts.partialTTL,
			Locations:  opts.tenants,
		}, logger)
		res := sweep.RunOnce(ctx)
		if res.Errors > 0 {
			exitCode = 1
		}
		result = res
	case "reconcile":
		reconcile := service.NewReconcileService(catalog, files, registry, opts.tenants, logger)
		report, err := reconcile.RunOnce(ctx)
		if err != nil {
			logger.Error("Ошибка сверки", slog.String("error", err.Error()))
			return 1
		}
		result = report
	}

	if err := writeJSON(stdout, result); err != nil {
		logger.Error("Ошибка вывода результата", slog.String("error", err.Error()))
		return 1
	}
	return exitCode
}

// parseArgs разбирает подкоманду и флаги.
func parseArgs(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}

	flagSet := pflag.NewFlagSet("cdn-maintenance", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&opts.root, "root", os.Getenv("CDN_ROOT_PATH"), "корень хранилища (по умолчанию $CDN_ROOT_PATH)")
	flagSet.StringArrayVar(&opts.tenants, "tenant", nil, "location тенанта (можно повторять)")
	flagSet.StringVar(&opts.folder, "folder", envDefault("CDN_FOLDER_NAME", "micro-cdn"), "служебный каталог внутри location тенанта")
	flagSet.DurationVar(&opts.partialTTL, "partial-ttl", 24*time.Hour, "возраст брошенной частичной загрузки (sweep)")
	flagSet.StringVar(&opts.logLevel, "log-level", "info", "уровень логирования: debug, info, warn, error")
	flagSet.Usage = func() { printHelp(flagSet) }

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}

	rest := flagSet.Args()
	if len(rest) != 1 {
		printHelp(flagSet)
		return nil, errUsage
	}
	opts.command = rest[0]
	if opts.command != "sweep" && opts.command != "reconcile" {
		return nil, fmt.Errorf("неизвестная команда %q, допустимые: sweep, reconcile", opts.command)
	}
	if opts.root == "" {
		return nil, errors.New("не задан --root (или CDN_ROOT_PATH)")
	}
	for _, loc := range opts.tenants {
		if !filepath.IsAbs(loc) {
			return nil, fmt.Errorf("location тенанта должен быть абсолютным путём: %q", loc)
		}
	}
	return opts, nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(flagSet.Output(), `cdn-maintenance — обслуживание хранилища micro-cdn.

Использование:
  cdn-maintenance <sweep|reconcile> [флаги]

Команды:
  sweep      удалить содержимое удалённых файлов и брошенные .part
  reconcile  сверить метаданные с диском и напечатать отчёт

Флаги:
%s`, flagSet.FlagUsages())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
