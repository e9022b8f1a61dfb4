// Package request provides request ID middleware. Every request carries an
// ID from the edge so audit entries, decision logs and error responses can be
// correlated after the fact.
package request

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"sanctum/pkg/requestcontext"
)

// Header carries the request ID between services.
const Header = "X-Request-ID"

// RequestID accepts an incoming request ID or generates one, stores it in the
// context and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(Header)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		w.Header().Set(Header, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return requestcontext.RequestID(ctx)
}
