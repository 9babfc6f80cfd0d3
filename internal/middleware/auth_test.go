package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kudos/kudos-api/internal/pkg/jwt"
)

func TestAuthMiddlewareAllowsValidAccessToken(t *testing.T) {
	jwtSvc := jwt.NewService("secret", time.Minute)
	userID := uuid.New()
	companyID := uuid.New()
	token, err := jwtSvc.GenerateAccessToken(jwt.Subject{
		UserID:    userID,
		CompanyID: companyID,
		Role:      "company_admin",
		Name:      "Dana",
	})
	if err != nil {
		t.Fatalf("token gen failed: %v", err)
	}

	var gotUser, gotCompany uuid.UUID
	var gotRole, gotName string
	protected := Auth(jwtSvc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = GetUserID(r.Context())
		gotCompany = GetCompanyID(r.Context())
		gotRole = GetRole(r.Context())
		gotName = GetName(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	protected.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if gotUser != userID || gotCompany != companyID {
		t.Fatalf("identity not propagated: user=%s company=%s", gotUser, gotCompany)
	}
	if gotRole != "company_admin" || gotName != "Dana" {
		t.Fatalf("unexpected role/name: %q %q", gotRole, gotName)
	}
}

func TestAuthMiddlewareRejectsMissingHeader(t *testing.T) {
	jwtSvc := jwt.NewService("secret", time.Minute)
	protected := Auth(jwtSvc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	}))

	w := httptest.NewRecorder()
	protected.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuthMiddlewareRejectsForeignSignature(t *testing.T) {
	other := jwt.NewService("other-secret", time.Minute)
	token, err := other.GenerateAccessToken(jwt.Subject{UserID: uuid.New(), Role: "employee"})
	if err != nil {
		t.Fatalf("token gen failed: %v", err)
	}

	protected := Auth(jwt.NewService("secret", time.Minute))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	protected.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequestIDPropagatesHeader(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if seen != "req-123" {
		t.Fatalf("expected request id in context, got %q", seen)
	}
	if w.Header().Get("X-Request-ID") != "req-123" {
		t.Fatalf("expected request id echoed in response header")
	}
}
