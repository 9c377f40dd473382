package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims() Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "nurse-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TenantID:    "hospital_a",
		Permissions: []string{PermBedsAssign},
	}
}

func runJWT(t *testing.T, header string) (*httptest.ResponseRecorder, *Caller, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen *Caller
	handler := func(c echo.Context) error {
		caller, err := CallerFrom(c)
		if err != nil {
			return err
		}
		seen = &caller
		return c.String(http.StatusOK, "ok")
	}

	err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(handler)(c)
	return rec, seen, err
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with status %d", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, _, err := runJWT(t, "")
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runJWT(t, tt.header)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	token := createTestToken(t, validClaims(), testSigningKey)
	rec, caller, err := runJWT(t, "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if caller == nil || caller.TenantID != "hospital_a" || caller.UserID != "nurse-1" {
		t.Fatalf("unexpected caller: %+v", caller)
	}
	if !caller.Has(PermBedsAssign) || caller.Has(PermAuditView) {
		t.Errorf("unexpected permissions: %v", caller.Permissions)
	}
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	token := createTestToken(t, validClaims(), []byte("another-key"))
	_, _, err := runJWT(t, "Bearer "+token)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_Expired(t *testing.T) {
	claims := validClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	_, _, err := runJWT(t, "Bearer "+createTestToken(t, claims, testSigningKey))
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_MissingTenantFailsClosed(t *testing.T) {
	claims := validClaims()
	claims.TenantID = ""
	_, _, err := runJWT(t, "Bearer "+createTestToken(t, claims, testSigningKey))
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_TenantNeverFromRequest(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?tenant_id=hospital_b", nil)
	req.Header.Set("X-Tenant-ID", "hospital_b")
	req.Header.Set("Authorization", "Bearer "+createTestToken(t, validClaims(), testSigningKey))
	c := e.NewContext(req, httptest.NewRecorder())

	var tenant string
	handler := func(c echo.Context) error {
		caller, _ := CallerFrom(c)
		tenant = caller.TenantID
		return nil
	}
	if err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tenant != "hospital_a" {
		t.Errorf("expected tenant from token, got %q", tenant)
	}
}

func TestDevAuthMiddleware_Defaults(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	var caller Caller
	handler := func(c echo.Context) error {
		caller, _ = CallerFrom(c)
		return nil
	}
	if err := DevAuthMiddleware("default", nil)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if caller.TenantID != "default" || caller.UserID != "dev-user" {
		t.Errorf("unexpected dev caller: %+v", caller)
	}
	if !caller.Has(PermAuditView) {
		t.Error("expected dev caller to hold every permission")
	}
}

func TestDevAuthMiddleware_VerifiesProvidedToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	c := e.NewContext(req, httptest.NewRecorder())

	handler := func(c echo.Context) error { return nil }
	verify := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})
	err := DevAuthMiddleware("default", verify)(handler)(c)
	expectStatus(t, err, http.StatusUnauthorized)
}
