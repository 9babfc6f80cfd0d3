package statement

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kudos/kudos-api/internal/domain/access"
	"github.com/kudos/kudos-api/internal/domain/account"
	"github.com/kudos/kudos-api/internal/domain/ledger"
	"github.com/kudos/kudos-api/internal/pkg/logger"
	"github.com/kudos/kudos-api/internal/pkg/response"
	"github.com/kudos/kudos-api/internal/pkg/validator"
)

// ExportRequest is the body of POST /company/statements
type ExportRequest struct {
	Class     string     `json:"class" validate:"cause_class"`
	CompanyID *uuid.UUID `json:"company_id"`
}

// Handler serves statement exports
type Handler struct {
	exporter *Exporter
}

// NewHandler creates statement handler
func NewHandler(exporter *Exporter) *Handler {
	return &Handler{exporter: exporter}
}

// Routes mounts /company/statements
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.With(access.Require(access.PermCompanyTransactions)).Post("/", h.Export)
	r.With(access.Require(access.PermCompanyTransactions)).Delete("/{companyID}/{name}", h.Remove)
	return r
}

// FileRoutes serves statements written by the local storage backend.
// Callers only see files under their own company.
func (h *Handler) FileRoutes(authMiddleware func(http.Handler) http.Handler, basePath string) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.With(access.Require(access.PermCompanyTransactions)).Get("/{companyID}/{name}", func(w http.ResponseWriter, r *http.Request) {
		companyID, name, ok := statementParams(w, r)
		if !ok {
			return
		}
		w.Header().Set("Content-Disposition", "attachment; filename=\""+name+"\"")
		http.ServeFile(w, r, filepath.Join(basePath, "statements", companyID.String(), name))
	})
	return r
}

// Remove handles DELETE /company/statements/{companyID}/{name}
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	companyID, name, ok := statementParams(w, r)
	if !ok {
		return
	}
	if err := h.exporter.Remove(r.Context(), companyID, name); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "Statement not found")
			return
		}
		logger.FromContext(r.Context()).Error().Err(err).Str("company_id", companyID.String()).Msg("Statement delete failed")
		response.InternalError(w)
		return
	}
	logger.FromContext(r.Context()).Info().
		Str("company_id", companyID.String()).
		Str("name", name).
		Msg("Statement deleted")
	w.WriteHeader(http.StatusNoContent)
}

// statementParams resolves the company and file name, rejecting other companies.
func statementParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, string, bool) {
	companyID, err := uuid.Parse(chi.URLParam(r, "companyID"))
	if err != nil {
		response.NotFound(w, "Statement not found")
		return uuid.Nil, "", false
	}
	actor := access.ActorFromContext(r.Context())
	if actor.Role != account.RoleSuperAdmin && companyID != actor.CompanyID {
		response.Forbidden(w, "Cannot access another company's statement")
		return uuid.Nil, "", false
	}
	name := chi.URLParam(r, "name")
	if !validName(name) {
		response.NotFound(w, "Statement not found")
		return uuid.Nil, "", false
	}
	return companyID, name, true
}

// Export handles POST /company/statements
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	actor := access.ActorFromContext(r.Context())
	companyID := actor.CompanyID
	if req.CompanyID != nil {
		if actor.Role != account.RoleSuperAdmin && *req.CompanyID != actor.CompanyID {
			response.Forbidden(w, "Cannot export another company's statement")
			return
		}
		companyID = *req.CompanyID
	}
	if companyID == uuid.Nil {
		response.BadRequest(w, "company_id is required")
		return
	}

	stmt, err := h.exporter.Export(r.Context(), companyID, ledger.CauseClass(req.Class))
	if err != nil {
		if errors.Is(err, ErrTooLarge) {
			response.Error(w, http.StatusRequestEntityTooLarge, "STATEMENT_TOO_LARGE", err.Error())
			return
		}
		if ledger.RespondError(w, err) {
			return
		}
		logger.FromContext(r.Context()).Error().Err(err).Str("company_id", companyID.String()).Msg("Statement export failed")
		response.InternalError(w)
		return
	}

	logger.FromContext(r.Context()).Info().
		Str("company_id", companyID.String()).
		Int("rows", stmt.Rows).
		Str("key", stmt.Key).
		Msg("Statement exported")
	response.Created(w, stmt)
}
