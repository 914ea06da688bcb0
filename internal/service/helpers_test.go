package service

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/micro-cdn/internal/storage/catalogstore"
	"github.com/bigkaa/goartstore/micro-cdn/internal/storage/filestore"
	"github.com/bigkaa/goartstore/micro-cdn/internal/storage/tenantdb"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testEnv — сервисы над временным корнем.
type testEnv struct {
	root     string
	catalog  *catalogstore.Store
	files    *filestore.FileStore
	registry *tenantdb.Registry

	buckets  *BucketService
	ingest   *IngestService
	download *DownloadService
	tenants  *TenantService
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	root := t.TempDir()
	logger := testLogger()

	catalog := catalogstore.New(root, logger)
	if _, err := catalog.Init(context.Background()); err != nil {
		t.Fatalf("Ошибка инициализации каталога: %v", err)
	}
	files, err := filestore.New(filepath.Join(root, "buckets"))
	if err != nil {
		t.Fatalf("Ошибка создания FileStore: %v", err)
	}
	registry := tenantdb.NewRegistry(tenantdb.Options{
		FolderName: "micro-cdn",
		CacheSize:  64,
		CacheTTL:   time.Minute,
	}, logger)
	t.Cleanup(func() { _ = registry.Close() })

	return &testEnv{
		root:     root,
		catalog:  catalog,
		files:    files,
		registry: registry,
		buckets:  NewBucketService(catalog, files, logger),
		ingest:   NewIngestService(catalog, files, logger),
		download: NewDownloadService(catalog, files, logger),
		tenants:  NewTenantService(registry, logger),
	}
}

// readContent читает и закрывает тело ответа.
func readContent(t *testing.T, c *Content) []byte {
	t.Helper()
	defer c.Body.Close()
	data, err := io.ReadAll(c.Body)
	if err != nil {
		t.Fatalf("Ошибка чтения содержимого: %v", err)
	}
	return data
}

// failingReader отдаёт часть данных и затем ошибку.
type failingReader struct {
	data []byte
	done bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.ErrUnexpectedEOF
	}
	r.done = true
	return copy(p, r.data), nil
}

func videoPayload(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}
