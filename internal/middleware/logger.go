package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/kudos/kudos-api/internal/pkg/logger"
)

// Logger logs one line per request. 5xx responses log at error, 4xx at
// warn, health checks at debug.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		l := logger.FromContext(r.Context())
		var event *zerolog.Event
		switch {
		case rec.status >= http.StatusInternalServerError:
			event = l.Error()
		case rec.status >= http.StatusBadRequest:
			event = l.Warn()
		case r.URL.Path == "/health":
			event = l.Debug()
		default:
			event = l.Info()
		}

		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int("bytes", rec.bytes).
			Dur("duration", time.Since(start)).
			Str("ip", r.RemoteAddr).
			Msg("HTTP Request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}
