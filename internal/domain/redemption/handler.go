package redemption

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kudos/kudos-api/internal/domain/access"
	"github.com/kudos/kudos-api/internal/domain/ledger"
	"github.com/kudos/kudos-api/internal/pkg/logger"
	"github.com/kudos/kudos-api/internal/pkg/response"
	"github.com/kudos/kudos-api/internal/pkg/validator"
)

// RedeemRequest is the body of POST /redemptions
type RedeemRequest struct {
	Lines []Line `json:"lines" validate:"dive"`
}

// OrderRequest is the body of POST /orders
type OrderRequest struct {
	Lines    []Line          `json:"lines" validate:"dive"`
	Shipping json.RawMessage `json:"shipping"`
}

// Handler serves cart checkout and order creation
type Handler struct {
	service *Service
}

// NewHandler creates redemption handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts /redemptions
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.With(access.Require(access.PermRedeem)).Post("/", h.Redeem)
	return r
}

// OrderRoutes mounts /orders
func (h *Handler) OrderRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.With(access.Require(access.PermRedeem)).Post("/", h.CreateOrder)
	return r
}

// Redeem handles POST /redemptions
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	receipt, err := h.service.Redeem(r.Context(), access.ActorFromContext(r.Context()), req.Lines)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	response.Created(w, receipt)
}

// CreateOrder handles POST /orders
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	receipt, err := h.service.CreateOrder(r.Context(), access.ActorFromContext(r.Context()), req.Lines, req.Shipping)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	response.Created(w, receipt)
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrEmptyCart) {
		response.Error(w, http.StatusBadRequest, "EMPTY_CART", "Cart is empty")
		return
	}
	if ledger.RespondError(w, err) {
		return
	}
	logger.FromContext(r.Context()).Error().Err(err).Msg("Redemption failed")
	response.InternalError(w)
}
