package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/micro-cdn/internal/api/middleware"
	"github.com/bigkaa/goartstore/micro-cdn/internal/service"
	"github.com/bigkaa/goartstore/micro-cdn/internal/storage/catalogstore"
	"github.com/bigkaa/goartstore/micro-cdn/internal/storage/filestore"
	"github.com/bigkaa/goartstore/micro-cdn/internal/storage/tenantdb"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testEnv — хранилища и сервисы над временным корнем.
type testEnv struct {
	root     string
	catalog  *catalogstore.Store
	files    *filestore.FileStore
	registry *tenantdb.Registry

	buckets  *service.BucketService
	ingest   *service.IngestService
	download *service.DownloadService
	tenants  *service.TenantService
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
		buckets:  service.NewBucketService(catalog, files, logger),
		ingest:   service.NewIngestService(catalog, files, logger),
		download: service.NewDownloadService(catalog, files, logger),
		tenants:  service.NewTenantService(registry, logger),
	}
}

// bucketsRouter монтирует BucketsHandler так же, как сервер.
func (e *testEnv) bucketsRouter(maxUpload, maxDataURI int64) http.Handler {
	h := NewBucketsHandler(e.buckets, e.ingest, e.download, maxUpload, maxDataURI, testLogger())

	r := chi.NewRouter()
	r.Post("/cdn/buckets", h.CreateBucket)
	r.Route("/cdn/buckets/{bucketId}", func(r chi.Router) {
		r.Use(ValidateBucketID)
		r.Delete("/", h.DeleteBucket)
		r.Post("/files", h.UploadFile)
		r.Post("/files/base64", h.UploadDataURI)
		r.Get("/files/{fileId}", h.DownloadFile)
		r.Delete("/files/{fileId}", h.DeleteFile)
	})
	return r
}

// withLocation подставляет location в контекст, как JWT middleware.
func withLocation(location string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), middleware.ContextKeyLocation, location)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// errorCode извлекает error.code из тела ответа.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Тело ответа не JSON: %v (%q)", err, rec.Body.String())
	}
	return body.Error.Code
}

// decodeData разбирает {"data": ...} в out.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	body := struct {
		Data any `json:"data"`
	}{Data: out}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Тело ответа не JSON: %v (%q)", err, rec.Body.String())
	}
}

func videoPayload(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}
