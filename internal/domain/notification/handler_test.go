package notification

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kudos/kudos-api/internal/middleware"
	"github.com/kudos/kudos-api/internal/pkg/jwt"
)

func TestListReturnsOnlyCallerNotifications(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo, nil)
	me, other := uuid.New(), uuid.New()
	require.NoError(t, svc.Send(context.Background(), Message{AccountID: me, Type: TypePointsGranted, Title: "Points added", Body: "+50 points"}))
	require.NoError(t, svc.Send(context.Background(), Message{AccountID: other, Type: TypePointsGranted, Title: "Points added"}))

	jwtSvc := jwt.NewService("secret", time.Minute)
	router := chi.NewRouter()
	router.Mount("/notifications", NewHandler(svc).Routes(middleware.Auth(jwtSvc)))

	token, err := jwtSvc.GenerateAccessToken(jwt.Subject{UserID: me, Role: "employee"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"body":"+50 points"`)
	assert.Equal(t, 1, strings.Count(w.Body.String(), `"title":"Points added"`))

	req = httptest.NewRequest(http.MethodPost, "/notifications/read-all", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"updated":1`)

	req = httptest.NewRequest(http.MethodGet, "/notifications/unread", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"unread":0`)
}
