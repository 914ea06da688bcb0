package handlers

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
)

// tenantRouter монтирует TenantFilesHandler с фиксированным location.
func (e *testEnv) tenantRouter(location string, maxUpload int64) http.Handler {
	h := NewTenantFilesHandler(e.tenants, maxUpload, testLogger())

	r := chi.NewRouter()
	r.Route("/cdn/files", func(r chi.Router) {
		r.Get("/*", h.GetFile)
		r.Post("/*", h.UploadFile)
		r.Delete("/*", h.DeleteFile)
	})
	return withLocation(location, r)
}

func TestTenantFiles_Lifecycle(t *testing.T) {
	env := setupTestEnv(t)
	h := env.tenantRouter(t.TempDir(), 1<<20)

	rec := doRequest(h, http.MethodPost, "/cdn/files/docs/readme.txt", []byte("hello"), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Загрузка: ожидался 201, получен %d (%s)", rec.Code, rec.Body.String())
	}
	var row struct {
		ID        string `json:"id"`
		IsDeleted string `json:"isDeleted"`
	}
	decodeData(t, rec, &row)
	if row.ID != "docs/readme.txt" || row.IsDeleted != "false" {
		t.Errorf("Запись: получено %+v", row)
	}

	rec = doRequest(h, http.MethodPost, "/cdn/files/docs/readme.txt", []byte("again"), nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Повторная загрузка: ожидался 422, получен %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "ALREADY_EXISTS" {
		t.Errorf("Код: ожидался ALREADY_EXISTS, получен %s", code)
	}

	rec = doRequest(h, http.MethodGet, "/cdn/files/docs/readme.txt", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Скачивание: ожидался 200, получен %d", rec.Code)
	}
	if rec.Body.String() != "hello" {
		t.Errorf("Содержимое: получено %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" && ct != "text/plain" {
		t.Errorf("Content-Type: получен %q", ct)
	}

	rec = doRequest(h, http.MethodDelete, "/cdn/files/docs/readme.txt", nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Удаление: ожидался 204, получен %d", rec.Code)
	}
	rec = doRequest(h, http.MethodDelete, "/cdn/files/docs/readme.txt", nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("Повторное удаление: ожидался 204, получен %d", rec.Code)
	}
	rec = doRequest(h, http.MethodGet, "/cdn/files/docs/readme.txt", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Удалённый файл: ожидался 404, получен %d", rec.Code)
	}

	// Повторная загрузка после удаления восстанавливает запись
	rec = doRequest(h, http.MethodPost, "/cdn/files/docs/readme.txt", []byte("v2"), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Загрузка после удаления: ожидался 201, получен %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestTenantFiles_VideoRange(t *testing.T) {
	env := setupTestEnv(t)
	h := env.tenantRouter(t.TempDir(), 1<<20)

	payload := videoPayload(1000)
	rec := doRequest(h, http.MethodPost, "/cdn/files/clips/intro.mp4", payload, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Загрузка: ожидался 201, получен %d", rec.Code)
	}

	rec = doRequest(h, http.MethodGet, "/cdn/files/clips/intro.mp4", nil,
		map[string]string{"Range": "bytes=-10"})
	if rec.Code != http.StatusPartialContent {
		t.Fatalf("Ожидался 206, получен %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 990-999/1000" {
		t.Errorf("Content-Range: получен %q", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), payload[990:]) {
		t.Error("Тело диапазона отличается")
	}
}

func TestTenantFiles_Errors(t *testing.T) {
	env := setupTestEnv(t)

	tests := []struct {
		name       string
		location   string
		method     string
		target     string
		wantStatus int
		wantCode   string
	}{
		{"сегмент .", t.TempDir(), http.MethodPost, "/cdn/files/a/./b.txt", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"суффикс .part", t.TempDir(), http.MethodPost, "/cdn/files/a.txt.part", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"нет файла", t.TempDir(), http.MethodGet, "/cdn/files/none.txt", http.StatusNotFound, "NOT_FOUND"},
		{"относительный location", "relative/dir", http.MethodGet, "/cdn/files/a.txt", http.StatusForbidden, "FORBIDDEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := env.tenantRouter(tt.location, 1<<20)
			rec := doRequest(h, tt.method, tt.target, []byte("x"), nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("Ожидался %d, получен %d (%s)", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if code := errorCode(t, rec); code != tt.wantCode {
				t.Errorf("Код: ожидался %s, получен %s", tt.wantCode, code)
			}
		})
	}
}

func TestTenantFiles_Isolation(t *testing.T) {
	env := setupTestEnv(t)
	a := env.tenantRouter(t.TempDir(), 1<<20)
	b := env.tenantRouter(t.TempDir(), 1<<20)

	rec := doRequest(a, http.MethodPost, "/cdn/files/shared.txt", []byte("a"), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Загрузка: ожидался 201, получен %d", rec.Code)
	}
	rec = doRequest(b, http.MethodGet, "/cdn/files/shared.txt", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Другой тенант: ожидался 404, получен %d", rec.Code)
	}
}
