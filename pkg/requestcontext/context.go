// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// This package defines context keys and getter/setter functions for values that are
// typically set by middleware but consumed by services. By keeping this package free
// of net/http dependencies, services can import only what they need without pulling
// in HTTP-related code.
//
// Usage in services (read values):
//
//	therapistID := requestcontext.TherapistID(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithTherapistID(ctx, therapistID)
//	ctx = requestcontext.WithRequestID(ctx, requestID)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithClientMetadata(ctx, "10.0.0.1", "test-agent")
package requestcontext

import (
	"context"
	"time"

	id "sanctum/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	therapistIDKey     struct{}
	roleKey            struct{}
	assignedClientsKey struct{}
	clientIPKey        struct{}
	userAgentKey       struct{}
	uaSummaryKey       struct{}
	requestIDKey       struct{}
	requestTimeKey     struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyTherapistID     = therapistIDKey{}
	ContextKeyRole            = roleKey{}
	ContextKeyAssignedClients = assignedClientsKey{}
	ContextKeyClientIP        = clientIPKey{}
	ContextKeyUserAgent       = userAgentKey{}
	ContextKeyUASummary       = uaSummaryKey{}
	ContextKeyRequestID       = requestIDKey{}
	ContextKeyRequestTime     = requestTimeKey{}
)

// -----------------------------------------------------------------------------
// Caller identity (therapist, role, assigned clients)
// -----------------------------------------------------------------------------

// TherapistID retrieves the authenticated therapist ID from the context.
// Returns the zero value (nil UUID) if not set.
func TherapistID(ctx context.Context) id.TherapistID {
	if therapistID, ok := ctx.Value(ContextKeyTherapistID).(id.TherapistID); ok {
		return therapistID
	}
	return id.TherapistID{}
}

// WithTherapistID injects a therapist ID into the context.
func WithTherapistID(ctx context.Context, therapistID id.TherapistID) context.Context {
	return context.WithValue(ctx, ContextKeyTherapistID, therapistID)
}

// Role retrieves the caller role claim ("therapist", "supervisor") from the context.
func Role(ctx context.Context) string {
	if role, ok := ctx.Value(ContextKeyRole).(string); ok {
		return role
	}
	return ""
}

// WithRole injects a role claim into the context.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, ContextKeyRole, role)
}

// AssignedClients retrieves the caller's assigned client set from the context.
// The slice is treated as read-only by consumers.
func AssignedClients(ctx context.Context) []id.ClientID {
	if clients, ok := ctx.Value(ContextKeyAssignedClients).([]id.ClientID); ok {
		return clients
	}
	return nil
}

// WithAssignedClients injects the assigned client set into the context.
func WithAssignedClients(ctx context.Context, clients []id.ClientID) context.Context {
	return context.WithValue(ctx, ContextKeyAssignedClients, clients)
}

// -----------------------------------------------------------------------------
// Client metadata (IP, User-Agent)
// -----------------------------------------------------------------------------

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the raw User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// UserAgentSummary retrieves the normalized User-Agent ("Chrome 120 (macOS)")
// from the context. Logs use the summary; audit entries keep the raw value.
func UserAgentSummary(ctx context.Context) string {
	if s, ok := ctx.Value(ContextKeyUASummary).(string); ok {
		return s
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClientIP, clientIP)
	ctx = context.WithValue(ctx, ContextKeyUserAgent, userAgent)
	return ctx
}

// WithUserAgentSummary injects a normalized User-Agent into a context.
func WithUserAgentSummary(ctx context.Context, summary string) context.Context {
	return context.WithValue(ctx, ContextKeyUASummary, summary)
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (for non-HTTP contexts like workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
// Useful for:
//   - Service unit tests that don't run the full HTTP middleware chain
//   - Workers that need consistent time within a batch operation
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
