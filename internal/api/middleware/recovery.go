package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/craftline/tenantd/internal/api/response"
)

// Recovery turns handler panics into a 500. It runs inside Logger, so the
// request ID is already on the response headers and links the stack trace to
// the request log line.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic recovered",
					"error", err,
					"request_id", w.Header().Get("X-Request-ID"),
					"stack", string(debug.Stack()),
					"method", r.Method,
					"path", r.URL.Path,
				)
				response.Error(w, http.StatusInternalServerError,
					"INTERNAL_ERROR", "An unexpected error occurred", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
