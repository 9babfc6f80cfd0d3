package access

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/kudos/kudos-api/internal/middleware"
	"github.com/kudos/kudos-api/internal/pkg/response"
)

// Require rejects requests whose role lacks perm
func Require(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !HasPermission(middleware.GetRole(r.Context()), perm) {
				response.Forbidden(w, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Actor is the authenticated caller as seen by domain services.
type Actor struct {
	UserID    uuid.UUID
	CompanyID uuid.UUID
	Role      string
	Name      string
}

// ActorFromContext builds the Actor placed in ctx by middleware.Auth.
func ActorFromContext(ctx context.Context) Actor {
	return Actor{
		UserID:    middleware.GetUserID(ctx),
		CompanyID: middleware.GetCompanyID(ctx),
		Role:      middleware.GetRole(ctx),
		Name:      middleware.GetName(ctx),
	}
}
