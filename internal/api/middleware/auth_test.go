package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// testKeyID — идентификатор ключа для тестов.
const testKeyID = "test-key"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// generateTestKey генерирует RSA ключ для тестов.
func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// generateTestToken генерирует JWT токен для тестов.
func generateTestToken(t *testing.T, key *rsa.PrivateKey, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// buildJWKSetJSON строит JWKS JSON из RSA публичного ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}

	data, _ := json.Marshal(jwks)
	return data
}

// publicKeyPEM кодирует публичный ключ в PEM (PKIX).
func publicKeyPEM(t *testing.T, pub *rsa.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatal(err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

// newTestJWTAuth создаёт JWTAuth на JWKS с RSA ключом для тестов.
func newTestJWTAuth(t *testing.T, key *rsa.PrivateKey) *JWTAuth {
	t.Helper()
	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(&key.PublicKey, testKeyID))
	if err != nil {
		t.Fatalf("не удалось создать keyfunc из JWKS JSON: %v", err)
	}
	return NewJWTAuthWithKeyfunc(kf, 5*time.Second, testLogger())
}

func tenantClaims(location string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "tenant-user",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			NotBefore: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Location:    location,
		ScopeString: "cdn:read cdn:write",
		ScopeArray:  []string{"cdn:maintenance"},
	}
}

// TestJWTAuth_ValidToken проверяет валидный JWT и claims в контексте.
func TestJWTAuth_ValidToken(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)

	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sub := SubjectFromContext(r.Context()); sub != "tenant-user" {
			t.Errorf("ожидался sub=tenant-user, получен %s", sub)
		}
		if loc := LocationFromContext(r.Context()); loc != "/srv/tenants/a" {
			t.Errorf("ожидался location=/srv/tenants/a, получен %s", loc)
		}
		scopes := ScopesFromContext(r.Context())
		if len(scopes) != 3 || scopes[0] != "cdn:read" || scopes[2] != "cdn:maintenance" {
			t.Errorf("неожиданные scopes: %v", scopes)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/cdn/files/a.txt", nil)
	req.Header.Set("Authorization", "Bearer "+generateTestToken(t, key, tenantClaims("/srv/tenants/a")))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ожидался статус 200, получен %d, тело: %s", rec.Code, rec.Body.String())
	}
}

// TestJWTAuth_StaticPublicKey проверяет ключ из CDN_TOKEN_PUBLIC_KEY в обоих форматах.
func TestJWTAuth_StaticPublicKey(t *testing.T) {
	key := generateTestKey(t)
	pemKey := publicKeyPEM(t, &key.PublicKey)

	tests := []struct {
		name  string
		value string
	}{
		{"pem", pemKey},
		{"base64url", base64.RawURLEncoding.EncodeToString([]byte(pemKey))},
		{"base64url с паддингом", base64.URLEncoding.EncodeToString([]byte(pemKey))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth, err := NewJWTAuth(JWTAuthConfig{PublicKey: tt.value, JWTLeeway: time.Second}, testLogger())
			if err != nil {
				t.Fatalf("NewJWTAuth: %v", err)
			}
			handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+generateTestToken(t, key, tenantClaims("/srv/a")))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusNoContent {
				t.Errorf("ожидался статус 204, получен %d", rec.Code)
			}
		})
	}
}

func TestNewJWTAuth_Errors(t *testing.T) {
	if _, err := NewJWTAuth(JWTAuthConfig{}, testLogger()); err == nil {
		t.Error("ожидалась ошибка без источника ключей")
	}
	if _, err := NewJWTAuth(JWTAuthConfig{PublicKey: "not a key"}, testLogger()); err == nil {
		t.Error("ожидалась ошибка для некорректного ключа")
	}
	if (JWTAuthConfig{}).Enabled() {
		t.Error("Enabled для пустой конфигурации")
	}
	if !(JWTAuthConfig{JWKSURL: "http://localhost/jwks"}).Enabled() {
		t.Error("не Enabled при заданном JWKS URL")
	}
}

// TestJWTAuth_WrongKey проверяет токен, подписанный другим ключом.
func TestJWTAuth_WrongKey(t *testing.T) {
	key := generateTestKey(t)
	other := generateTestKey(t)
	auth := NewJWTAuthWithPublicKey(&key.PublicKey, 0, testLogger())

	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+generateTestToken(t, other, tenantClaims("/srv/a")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", rec.Code)
	}
}

// TestJWTAuth_MissingToken проверяет отсутствие Authorization header.
func TestJWTAuth_MissingToken(t *testing.T) {
	auth := newTestJWTAuth(t, generateTestKey(t))
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	req := httptest.NewRequest(http.MethodGet, "/cdn/files/a.txt", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", rec.Code)
	}
}

// TestJWTAuth_ExpiredToken проверяет просроченный токен.
func TestJWTAuth_ExpiredToken(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	claims := tenantClaims("/srv/a")
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	claims.IssuedAt = jwt.NewNumericDate(time.Now().Add(-2 * time.Hour))
	claims.NotBefore = nil

	req := httptest.NewRequest(http.MethodGet, "/cdn/files/a.txt", nil)
	req.Header.Set("Authorization", "Bearer "+generateTestToken(t, key, claims))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", rec.Code)
	}
}

// TestJWTAuth_InvalidFormat проверяет некорректный формат Authorization.
func TestJWTAuth_InvalidFormat(t *testing.T) {
	auth := newTestJWTAuth(t, generateTestKey(t))
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	tests := []struct {
		name   string
		header string
	}{
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"no bearer prefix", "token123"},
		{"empty bearer", "Bearer "},
		{"garbage token", "Bearer abc.def.ghi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/cdn/files/a.txt", nil)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("ожидался статус 401, получен %d", rec.Code)
			}
		})
	}
}

// TestRequireScope_HasScope проверяет наличие нужного scope.
func TestRequireScope_HasScope(t *testing.T) {
	handler := RequireScope("cdn:maintenance")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	ctx := context.WithValue(context.Background(), ContextKeyScopes, []string{"cdn:read", "cdn:maintenance"})
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ожидался статус 200, получен %d", rec.Code)
	}
}

// TestRequireScope_MissingScope проверяет отсутствие нужного scope.
func TestRequireScope_MissingScope(t *testing.T) {
	handler := RequireScope("cdn:maintenance")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	ctx := context.WithValue(context.Background(), ContextKeyScopes, []string{"cdn:read"})
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("ожидался статус 403, получен %d", rec.Code)
	}
}

// TestRequireScope_NoScopes проверяет отсутствие scopes в контексте.
func TestRequireScope_NoScopes(t *testing.T) {
	handler := RequireScope("cdn:read")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("ожидался статус 403, получен %d", rec.Code)
	}
}

func TestRequireLocation(t *testing.T) {
	handler := RequireLocation()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("без location: ожидался статус 403, получен %d", rec.Code)
	}

	ctx := context.WithValue(context.Background(), ContextKeyLocation, "/srv/a")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
	if rec.Code != http.StatusOK {
		t.Errorf("с location: ожидался статус 200, получен %d", rec.Code)
	}
}

func TestContextAccessors_Empty(t *testing.T) {
	ctx := context.Background()
	if sub := SubjectFromContext(ctx); sub != "" {
		t.Errorf("ожидалась пустая строка, получено %q", sub)
	}
	if loc := LocationFromContext(ctx); loc != "" {
		t.Errorf("ожидалась пустая строка, получено %q", loc)
	}
	if scopes := ScopesFromContext(ctx); scopes != nil {
		t.Errorf("ожидался nil, получено %v", scopes)
	}
}

// TestNewJWTAuth_JWKSEndpoint проверяет загрузку ключей с JWKS endpoint.
func TestNewJWTAuth_JWKSEndpoint(t *testing.T) {
	key := generateTestKey(t)
	jwks := buildJWKSetJSON(&key.PublicKey, testKeyID)

	jwksServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(jwks)
	}))
	defer jwksServer.Close()

	auth, err := NewJWTAuth(JWTAuthConfig{
		JWKSURL:         jwksServer.URL + "/jwks",
		ClientTimeout:   5 * time.Second,
		RefreshInterval: time.Hour,
		JWTLeeway:       5 * time.Second,
	}, testLogger())
	if err != nil {
		t.Fatalf("NewJWTAuth вернул ошибку: %v", err)
	}

	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/cdn/files/a.txt", nil)
	req.Header.Set("Authorization", "Bearer "+generateTestToken(t, key, tenantClaims("/srv/tenants/a")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ожидался статус 200, получен %d, тело: %s", rec.Code, rec.Body.String())
	}
}
