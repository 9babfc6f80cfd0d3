package notification

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kudos/kudos-api/internal/middleware"
	"github.com/kudos/kudos-api/internal/pkg/logger"
	"github.com/kudos/kudos-api/internal/pkg/response"
)

// Response is the API shape of a notification
type Response struct {
	ID        uuid.UUID `json:"id"`
	Type      Type      `json:"type"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// Handler serves the caller's notification inbox
type Handler struct {
	service *Service
}

// NewHandler creates notification handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts /notifications
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/", h.List)
	r.Get("/unread", h.Unread)
	r.Post("/read-all", h.MarkAllRead)
	return r
}

// List handles GET /notifications
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	items, err := h.service.List(r.Context(), userID, limit, offset)
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("Failed to list notifications")
		response.InternalError(w)
		return
	}

	out := make([]Response, 0, len(items))
	for _, n := range items {
		out = append(out, Response{
			ID:        n.ID,
			Type:      n.Type,
			Title:     n.Title,
			Body:      n.BodyText(),
			IsRead:    n.IsRead,
			CreatedAt: n.CreatedAt,
		})
	}
	response.OK(w, out)
}

// Unread handles GET /notifications/unread
func (h *Handler) Unread(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.UnreadCount(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("Failed to count unread notifications")
		response.InternalError(w)
		return
	}
	response.OK(w, map[string]int{"unread": n})
}

// MarkAllRead handles POST /notifications/read-all
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.MarkAllRead(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("Failed to mark notifications read")
		response.InternalError(w)
		return
	}
	response.OK(w, map[string]int64{"updated": n})
}
