package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/kudos/kudos-api/internal/pkg/logger"
	"github.com/kudos/kudos-api/internal/pkg/response"
)

// Recover turns a handler panic into a 500. http.ErrAbortHandler is re-raised.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			logger.FromContext(r.Context()).Error().
				Str("panic", fmt.Sprint(rec)).
				Bytes("stack", debug.Stack()).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("request_id", GetRequestID(r.Context())).
				Msg("Panic recovered")

			response.InternalError(w)
		}()

		next.ServeHTTP(w, r)
	})
}
