// Package observability provides decision logging helpers shared by the
// gated modules. The audit trail is the authoritative record; these logs are
// the operational shadow of it, enriched with request-scoped metadata.
package observability

import (
	"context"
	"log/slog"

	"sanctum/pkg/attrs"
	"sanctum/pkg/requestcontext"
)

// LogDecision logs a boundary decision to the structured logger. It enriches
// the event with the request ID and User-Agent summary when present, and tags
// the record so log pipelines can separate decision logs from debug noise.
func LogDecision(ctx context.Context, logger *slog.Logger, event string, attrList ...any) {
	if logger == nil {
		return
	}

	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attrList = append(attrList, "request_id", requestID)
	}
	if ua := requestcontext.UserAgentSummary(ctx); ua != "" {
		attrList = append(attrList, "ua", ua)
	}
	if subject := attrs.First(attrList, "client_id", "couple_id", "therapist_id"); subject != "" {
		attrList = append(attrList, "subject", subject)
	}

	args := append(attrList, "event", event, "log_type", "audit")
	logger.InfoContext(ctx, event, args...)
}

// LogDenied logs a denied boundary decision at warning level with the same
// enrichment as LogDecision. Denials are signal, not noise.
func LogDenied(ctx context.Context, logger *slog.Logger, event, reason string, attrList ...any) {
	if logger == nil {
		return
	}

	attrList = append(attrList, "reason", reason)
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attrList = append(attrList, "request_id", requestID)
	}
	if subject := attrs.First(attrList, "client_id", "couple_id", "therapist_id"); subject != "" {
		attrList = append(attrList, "subject", subject)
	}

	args := append(attrList, "event", event, "log_type", "audit")
	logger.WarnContext(ctx, event, args...)
}
