// Package recovery converts handler panics into 500 responses. A panic in a
// gate must never take the process down with other requests in flight.
package recovery

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	request "sanctum/pkg/platform/middleware/request"
)

// Recovery recovers panics, logs them with the stack, and answers with a
// generic internal error. The panic value is never echoed to the client.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					ctx := r.Context()
					logger.ErrorContext(ctx, "panic recovered",
						"request_id", request.GetRequestID(ctx),
						"panic", rec,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"internal_error"}`))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
