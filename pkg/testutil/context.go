package testutil

import (
	"net/http"

	id "sanctum/pkg/domain"
	"sanctum/pkg/requestcontext"
)

// WithTherapist injects a therapist identity into the request context,
// simulating what the auth middleware does for authenticated requests.
// An invalid UUID is silently ignored so tests can also exercise the
// unauthenticated path.
func WithTherapist(req *http.Request, therapistID string) *http.Request {
	parsed, err := id.ParseTherapistID(therapistID)
	if err != nil {
		return req
	}
	ctx := requestcontext.WithTherapistID(req.Context(), parsed)
	ctx = requestcontext.WithRole(ctx, "therapist")
	return req.WithContext(ctx)
}

// WithAssignedClients adds assigned client IDs on top of the therapist
// identity. Invalid IDs are skipped.
func WithAssignedClients(req *http.Request, clientIDs ...string) *http.Request {
	assigned := make([]id.ClientID, 0, len(clientIDs))
	for _, raw := range clientIDs {
		clientID, err := id.ParseClientID(raw)
		if err != nil {
			continue
		}
		assigned = append(assigned, clientID)
	}
	return req.WithContext(requestcontext.WithAssignedClients(req.Context(), assigned))
}

// WithClientMetadata stamps the connection metadata the middleware would
// normally collect.
func WithClientMetadata(req *http.Request, ip, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, userAgent))
}
