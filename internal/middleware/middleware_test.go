package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRecoverReturns500(t *testing.T) {
	h := RequestID(Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/redemptions", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "INTERNAL_ERROR") {
		t.Fatalf("expected error envelope, got %s", w.Body.String())
	}
}

func TestStatusRecorderKeepsFirstStatus(t *testing.T) {
	var rec *statusRecorder
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec = w.(*statusRecorder)
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"success":false}`))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.status != http.StatusConflict || rec.bytes != len(`{"success":false}`) {
		t.Fatalf("unexpected capture: status=%d bytes=%d", rec.status, rec.bytes)
	}
}

func TestCORSWildcardDropsCredentials(t *testing.T) {
	h := CORSHandler([]string{"*"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://example.test")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Fatalf("credentials must not be allowed with a wildcard origin")
	}
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("expected origin to be allowed")
	}
}
