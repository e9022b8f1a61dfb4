package sanitize

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
	"sanctum/pkg/platform/audit"
	"sanctum/pkg/platform/observability"
	"sanctum/pkg/requestcontext"
)

var tracer = otel.Tracer("sanctum/internal/sanitize")

const resourceTypeExternalQuery = "external_query"

// AnalyticsClient is the outbound query port. Satisfied by *analytics.Client.
type AnalyticsClient interface {
	Query(ctx context.Context, text string) (string, error)
}

// Auditor records gate decisions. Satisfied by *audit.Recorder.
type Auditor interface {
	Append(ctx context.Context, entry audit.Entry) (id.EntryID, error)
}

// Service runs sanitize-and-query: scan, decide, call out only on a clean
// scan, and write the one ledger entry that makes the decision final.
type Service struct {
	classifier *Classifier
	analytics  AnalyticsClient
	recorder   Auditor
	logger     *slog.Logger
	metrics    *Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the decision logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics attaches gate metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService constructs the anonymization gate service.
func NewService(classifier *Classifier, analytics AnalyticsClient, recorder Auditor, opts ...Option) *Service {
	s := &Service{
		classifier: classifier,
		analytics:  analytics,
		recorder:   recorder,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// SanitizeAndQuery gates one outbound query. A blocked text is not an error:
// the result carries Decision Blocked with the reason and span locations, and
// the call returns nil. An indeterminate scan blocks exactly like a positive
// match. Only a clean scan reaches the analytical service; if that call then
// fails, the operation errors but the recorded sanitize decision stays
// Allowed. Exactly one ledger entry is written per call and a failed ledger
// write outranks every other outcome.
func (s *Service) SanitizeAndQuery(ctx context.Context, text string) (*QueryResult, error) {
	start := time.Now()
	digest := textDigest(text)
	ctx, span := tracer.Start(ctx, "sanitize.query",
		trace.WithAttributes(attribute.String("query_digest", digest)))
	defer span.End()

	therapist := requestcontext.TherapistID(ctx)
	if therapist.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "sanitize requires an authenticated therapist")
	}
	if text == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "sanitize requires text")
	}

	spans, scanErr := s.classifier.Scan(ctx, text)
	if scanErr != nil {
		return s.finishBlocked(ctx, span, start, digest, ReasonDetectionFailure, nil, scanErr)
	}
	if len(spans) > 0 {
		return s.finishBlocked(ctx, span, start, digest, ReasonPHIDetected, spans, nil)
	}

	answer, queryErr := s.analytics.Query(ctx, text)
	if queryErr != nil {
		// The gate allowed the text; only the transport failed. The ledger
		// records the allow with the failure result.
		entryID, auditErr := s.record(ctx, audit.EventQueryAllowed, audit.ResultFailure, digest,
			allowedDetails(queryErr))
		if auditErr != nil {
			s.observe(ctx, span, start, "failed", auditErr)
			return nil, auditErr
		}
		s.observe(ctx, span, start, "failed", queryErr)
		return &QueryResult{Decision: DecisionAllowed, AuditEntryID: entryID}, queryErr
	}

	entryID, auditErr := s.record(ctx, audit.EventQueryAllowed, audit.ResultSuccess, digest, allowedDetails(nil))
	if auditErr != nil {
		s.observe(ctx, span, start, "failed", auditErr)
		return nil, auditErr
	}

	if s.metrics != nil {
		s.metrics.IncQuery(string(DecisionAllowed))
		s.metrics.ObserveDuration(time.Since(start).Seconds())
	}
	span.SetStatus(codes.Ok, "")
	observability.LogDecision(ctx, s.logger, "query_allowed",
		"query_digest", digest,
		"response_bytes", len(answer),
	)

	return &QueryResult{
		Decision:     DecisionAllowed,
		Text:         text,
		Response:     answer,
		AuditEntryID: entryID,
	}, nil
}

// finishBlocked records the block and shapes the result. A block is a
// successful gate decision; only a failed ledger write turns it into an
// error.
func (s *Service) finishBlocked(ctx context.Context, span trace.Span, start time.Time, digest, reason string, spans []DetectedSpan, cause error) (*QueryResult, error) {
	entryID, auditErr := s.record(ctx, audit.EventQueryBlocked, audit.ResultFailure, digest,
		blockedDetails(reason, spans))
	if auditErr != nil {
		s.observe(ctx, span, start, "failed", auditErr)
		return nil, auditErr
	}

	if s.metrics != nil {
		s.metrics.IncQuery(string(DecisionBlocked))
		s.metrics.IncDetections(spans)
		s.metrics.ObserveDuration(time.Since(start).Seconds())
	}
	if cause != nil {
		span.RecordError(cause)
	}
	span.SetStatus(codes.Error, reason)
	observability.LogDenied(ctx, s.logger, "query_blocked", reason,
		"query_digest", digest,
		"span_kinds", Kinds(spans),
	)

	return &QueryResult{
		Decision:     DecisionBlocked,
		Reason:       reason,
		Spans:        spans,
		AuditEntryID: entryID,
	}, nil
}

func (s *Service) record(ctx context.Context, event audit.EventType, result audit.Result, digest string, details map[string]any) (id.EntryID, error) {
	// The ledger write must survive caller cancellation. The recorder bounds
	// it with its own per-attempt timeouts.
	return s.recorder.Append(context.WithoutCancel(ctx), audit.Entry{
		EventType:    event,
		Actor:        requestcontext.TherapistID(ctx).String(),
		ResourceType: resourceTypeExternalQuery,
		ResourceID:   digest,
		Action:       audit.ActionSanitize,
		Result:       result,
		IPAddress:    requestcontext.ClientIP(ctx),
		UserAgent:    requestcontext.UserAgent(ctx),
		Details:      details,
	})
}

func (s *Service) observe(ctx context.Context, span trace.Span, start time.Time, outcome string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	if s.metrics != nil {
		s.metrics.IncQuery(outcome)
		s.metrics.ObserveDuration(time.Since(start).Seconds())
	}
	observability.LogDenied(ctx, s.logger, "query_failed", string(dErrors.CodeOf(err)))
}

// Ledger detail shapes. Kinds and offsets only; excerpts and the text itself
// never reach the ledger. The digest in ResourceID ties entries to a query
// without storing it.
func blockedDetails(reason string, spans []DetectedSpan) map[string]any {
	details := map[string]any{
		"decision": string(DecisionBlocked),
		"reason":   reason,
	}
	if len(spans) > 0 {
		details["span_kinds"] = Kinds(spans)
		details["spans"] = spanOffsets(spans)
	}
	return details
}

func allowedDetails(queryErr error) map[string]any {
	details := map[string]any{
		"decision": string(DecisionAllowed),
	}
	if queryErr != nil {
		details["reason"] = string(dErrors.CodeOf(queryErr))
	}
	return details
}

func spanOffsets(spans []DetectedSpan) []map[string]any {
	out := make([]map[string]any, len(spans))
	for i, s := range spans {
		out[i] = map[string]any{
			"kind":  string(s.Kind),
			"start": s.Start,
			"end":   s.End,
		}
	}
	return out
}

func textDigest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:8])
}
