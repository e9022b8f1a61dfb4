package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	request "sanctum/pkg/platform/middleware/request"
	"sanctum/pkg/platform/secrets"
)

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"admin token required"}`))
}

// RequireAdminToken guards the audit review surface with a shared token.
// Uses constant-time comparison to prevent timing attacks.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Admin-Token")
			if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", request.GetRequestID(ctx),
				)
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireHashedAdminToken is the deployment-grade variant: the configuration
// holds only a bcrypt hash of the token, never the plaintext.
func RequireHashedAdminToken(tokenHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Admin-Token")
			if token == "" || secrets.Verify(token, tokenHash) != nil {
				ctx := r.Context()
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", request.GetRequestID(ctx),
				)
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
