// Package timeout bounds request handling time through the context. Services
// and stores honor ctx cancellation, so one deadline covers the whole call
// tree including audit writes.
package timeout

import (
	"context"
	"net/http"
	"time"
)

// Timeout attaches a deadline to the request context.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
