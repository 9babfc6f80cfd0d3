package points

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kudos/kudos-api/internal/domain/access"
	"github.com/kudos/kudos-api/internal/domain/account"
	"github.com/kudos/kudos-api/internal/domain/ledger"
	"github.com/kudos/kudos-api/internal/pkg/logger"
	"github.com/kudos/kudos-api/internal/pkg/response"
	"github.com/kudos/kudos-api/internal/pkg/validator"
)

// Handler serves grants, compliments and history reads
type Handler struct {
	service *Service
	history *ledger.History
}

// NewHandler creates points handler
func NewHandler(service *Service, history *ledger.History) *Handler {
	return &Handler{service: service, history: history}
}

// Routes mounts /points routes
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.With(access.Require(access.PermGrantPoints)).Post("/grant", h.Grant)
	r.Get("/balance", h.Balance)
	r.Get("/transactions", h.MyTransactions)
	return r
}

// ComplimentRoutes mounts /compliments routes
func (h *Handler) ComplimentRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.With(access.Require(access.PermCompliment)).Post("/", h.Compliment)
	return r
}

// CompanyRoutes mounts /company routes
func (h *Handler) CompanyRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.With(access.Require(access.PermCompanyTransactions)).Get("/transactions", h.CompanyTransactions)
	return r
}

// Grant handles POST /points/grant
func (h *Handler) Grant(w http.ResponseWriter, r *http.Request) {
	var req GrantRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	actor := access.ActorFromContext(r.Context())
	rec, err := h.service.GrantPoints(r.Context(), actor, req.AccountID, req.Amount, req.Description)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	response.Created(w, rec)
}

// Compliment handles POST /compliments
func (h *Handler) Compliment(w http.ResponseWriter, r *http.Request) {
	var req ComplimentRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	actor := access.ActorFromContext(r.Context())
	rec, err := h.service.AwardCompliment(r.Context(), actor, req.ToAccountID, req.Message)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	response.Created(w, rec)
}

// Balance handles GET /points/balance
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	actor := access.ActorFromContext(r.Context())
	balance, err := h.history.Balance(r.Context(), actor.UserID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	response.OK(w, BalanceResponse{AccountID: actor.UserID, Balance: balance})
}

// MyTransactions handles GET /points/transactions
func (h *Handler) MyTransactions(w http.ResponseWriter, r *http.Request) {
	actor := access.ActorFromContext(r.Context())
	h.listTransactions(w, r, ledger.TransactionFilter{AccountID: &actor.UserID})
}

// CompanyTransactions handles GET /company/transactions
func (h *Handler) CompanyTransactions(w http.ResponseWriter, r *http.Request) {
	actor := access.ActorFromContext(r.Context())
	companyID := actor.CompanyID
	if raw := r.URL.Query().Get("company_id"); raw != "" && actor.Role == account.RoleSuperAdmin {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(w, "Invalid company_id")
			return
		}
		companyID = parsed
	}
	if companyID == uuid.Nil {
		response.BadRequest(w, "company_id is required")
		return
	}
	h.listTransactions(w, r, ledger.TransactionFilter{CompanyID: &companyID})
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request, filter ledger.TransactionFilter) {
	q, ok := parseHistoryQuery(w, r)
	if !ok {
		return
	}
	filter.Class = ledger.CauseClass(q.Class)
	filter.Limit = q.Limit
	filter.Offset = q.Offset
	filter.AsOfID = q.AsOf

	page, err := h.history.List(r.Context(), filter)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	response.WithMeta(w, page.Records, response.Meta{
		Limit:   page.Limit,
		Offset:  page.Offset,
		Count:   len(page.Records),
		HasNext: page.HasNext,
		AsOf:    page.AsOfID,
	})
}

func parseHistoryQuery(w http.ResponseWriter, r *http.Request) (HistoryQuery, bool) {
	q := HistoryQuery{Class: r.URL.Query().Get("class")}
	var err error
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if q.Limit, err = strconv.Atoi(raw); err != nil {
			response.BadRequest(w, "Invalid limit")
			return q, false
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if q.Offset, err = strconv.Atoi(raw); err != nil {
			response.BadRequest(w, "Invalid offset")
			return q, false
		}
	}
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		if q.AsOf, err = strconv.ParseInt(raw, 10, 64); err != nil {
			response.BadRequest(w, "Invalid as_of")
			return q, false
		}
	}
	if errs := validator.Validate(&q); errs != nil {
		response.ValidationError(w, errs)
		return q, false
	}
	return q, true
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrSelfCompliment), errors.Is(err, ErrNoCompany):
		response.BadRequest(w, err.Error())
		return
	case errors.Is(err, ErrOutOfScope):
		response.Forbidden(w, err.Error())
		return
	}

	if ledger.RespondError(w, err) {
		return
	}
	logger.FromContext(r.Context()).Error().Err(err).Msg("Points request failed")
	response.InternalError(w)
}
