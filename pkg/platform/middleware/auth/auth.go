package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "sanctum/pkg/domain"
	request "sanctum/pkg/platform/middleware/request"
	"sanctum/pkg/requestcontext"
)

// TokenValidator defines the interface for validating bearer tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (*TherapistClaims, error)
}

// TherapistClaims represents the claims we expect from the token validator.
// AssignedClients carries the client IDs the therapist may act for beyond the
// contexts they own directly.
type TherapistClaims struct {
	TherapistID     string
	Role            string
	AssignedClients []string
	JTI             string
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireTherapist validates the bearer token and injects the therapist
// identity into the request context. Claims that do not parse into valid IDs
// are rejected; a caller with a malformed identity never reaches a gate.
func RequireTherapist(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok {
				ctx := r.Context()
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", request.GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				ctx := r.Context()
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", request.GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			therapistID, err := id.ParseTherapistID(claims.TherapistID)
			if err != nil {
				ctx := r.Context()
				logger.WarnContext(ctx, "unauthorized access - malformed therapist claim",
					"request_id", request.GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			assigned := make([]id.ClientID, 0, len(claims.AssignedClients))
			for _, raw := range claims.AssignedClients {
				clientID, err := id.ParseClientID(raw)
				if err != nil {
					ctx := r.Context()
					logger.WarnContext(ctx, "unauthorized access - malformed assigned client claim",
						"request_id", request.GetRequestID(ctx),
					)
					writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
					return
				}
				assigned = append(assigned, clientID)
			}

			ctx := requestcontext.WithTherapistID(r.Context(), therapistID)
			ctx = requestcontext.WithRole(ctx, claims.Role)
			ctx = requestcontext.WithAssignedClients(ctx, assigned)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
