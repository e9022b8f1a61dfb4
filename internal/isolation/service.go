package isolation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sanctum/internal/clientcontext"
	"sanctum/internal/policy"
	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
	"sanctum/pkg/platform/audit"
	"sanctum/pkg/platform/observability"
	"sanctum/pkg/platform/sentinel"
	"sanctum/pkg/requestcontext"
)

var tracer = otel.Tracer("sanctum/internal/isolation")

const resourceTypeClientContext = "client_context"

// Default read behavior; overridable per service via options.
const (
	defaultReadAttempts = 3
	defaultReadInitial  = 50 * time.Millisecond
	defaultReadMax      = 1 * time.Second
	defaultReadTimeout  = 2 * time.Second
)

// PolicyReader is the slice of the policy store the gate needs.
type PolicyReader interface {
	GetByID(ctx context.Context, policyID id.PolicyID) (*policy.WhitelistPolicy, error)
	GetActiveByName(ctx context.Context, name string) (*policy.WhitelistPolicy, error)
}

// Auditor records boundary decisions. Satisfied by *audit.Recorder.
type Auditor interface {
	Append(ctx context.Context, entry audit.Entry) (id.EntryID, error)
}

// Service runs authenticated extractions: resolve policy and context,
// authorize the caller, project, and write the ledger entry that makes the
// decision final.
type Service struct {
	contexts clientcontext.Store
	policies PolicyReader
	recorder Auditor
	logger   *slog.Logger
	metrics  *Metrics

	readAttempts uint64
	readInitial  time.Duration
	readMax      time.Duration
	readTimeout  time.Duration
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

// WithReadRetry tunes the bounded retry on transient context-store failures.
func WithReadRetry(maxAttempts int, initial, max time.Duration) Option {
	return func(s *Service) {
		if maxAttempts > 0 {
			s.readAttempts = uint64(maxAttempts)
		}
		if initial > 0 {
			s.readInitial = initial
		}
		if max > 0 {
			s.readMax = max
		}
	}
}

// WithReadTimeout bounds each context-store read attempt.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

// NewService constructs the extraction service.
func NewService(contexts clientcontext.Store, policies PolicyReader, recorder Auditor, opts ...Option) *Service {
	s := &Service{
		contexts:     contexts,
		policies:     policies,
		recorder:     recorder,
		logger:       slog.Default(),
		readAttempts: defaultReadAttempts,
		readInitial:  defaultReadInitial,
		readMax:      defaultReadMax,
		readTimeout:  defaultReadTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Extract projects one client context through a whitelist policy on behalf of
// the authenticated therapist. Exactly one audit entry is written per call,
// success or denial, and the entry must be durable before the outcome is
// final: a failed ledger write fails the whole call even when the projection
// succeeded.
//
// On a denied call the returned result is non-nil and carries the entry id of
// the recorded denial alongside the error, so transports can hand the caller
// both the refusal and its ledger reference.
func (s *Service) Extract(ctx context.Context, req ExtractRequest) (*ExtractResult, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "isolation.extract",
		trace.WithAttributes(attribute.String("client_id", req.ClientID.String())))
	defer span.End()

	therapist := requestcontext.TherapistID(ctx)
	if therapist.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "extract requires an authenticated therapist")
	}
	if req.ClientID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "extract requires a client id")
	}
	if req.PolicyID.IsNil() && req.PolicyName == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "extract requires a policy id or policy name")
	}

	view, pol, gateErr := s.gate(ctx, req)

	if gateErr != nil {
		entryID, auditErr := s.record(ctx, audit.EventExtractDenied, audit.ResultFailure, req.ClientID, denialDetails(req, pol, gateErr))
		s.observeFailure(ctx, span, start, req, pol, gateErr)
		if auditErr != nil {
			// The denial itself is not durably recorded; the ledger failure
			// outranks the domain error so the decision never looks final.
			return nil, auditErr
		}
		return &ExtractResult{AuditEntryID: entryID}, gateErr
	}

	entryID, auditErr := s.record(ctx, audit.EventContextExtracted, audit.ResultSuccess, req.ClientID, successDetails(view))
	if auditErr != nil {
		s.observeFailure(ctx, span, start, req, pol, auditErr)
		return nil, auditErr
	}

	if s.metrics != nil {
		s.metrics.IncExtraction(string(audit.ResultSuccess))
		s.metrics.ObserveDuration(time.Since(start).Seconds())
	}
	span.SetStatus(codes.Ok, "")
	observability.LogDecision(ctx, s.logger, "context_extracted",
		"client_id", view.ClientID.String(),
		"policy", view.PolicyName,
		"policy_version", view.PolicyVersion,
		"context_version", view.ContextVersion,
		"field_count", len(view.Fields),
	)

	return &ExtractResult{View: view, AuditEntryID: entryID}, nil
}

// gate runs the non-audit half of an extraction. The returned policy is
// non-nil as soon as lookup succeeded, even when a later step fails, so
// callers can attribute violations to a policy name.
func (s *Service) gate(ctx context.Context, req ExtractRequest) (*AbstractedView, *policy.WhitelistPolicy, error) {
	pol, err := s.lookupPolicy(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	cc, err := s.fetchContext(ctx, req.ClientID, req.ContextVersion)
	if err != nil {
		return nil, pol, err
	}

	if err := authorize(ctx, cc); err != nil {
		return nil, pol, err
	}

	view, err := Project(cc, pol, req.Fields)
	if err != nil {
		return nil, pol, err
	}
	return view, pol, nil
}

func (s *Service) lookupPolicy(ctx context.Context, req ExtractRequest) (*policy.WhitelistPolicy, error) {
	var (
		pol *policy.WhitelistPolicy
		err error
	)
	if !req.PolicyID.IsNil() {
		pol, err = s.policies.GetByID(ctx, req.PolicyID)
	} else {
		pol, err = s.policies.GetActiveByName(ctx, req.PolicyName)
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "policy not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "policy lookup failed")
	}
	return pol, nil
}

// fetchContext reads the context snapshot with bounded retries on transient
// store failures. Misses are never retried.
func (s *Service) fetchContext(ctx context.Context, clientID id.ClientID, version int64) (*clientcontext.ClientContext, error) {
	var cc *clientcontext.ClientContext

	op := func() error {
		readCtx, cancel := context.WithTimeout(ctx, s.readTimeout)
		defer cancel()

		found, err := s.contexts.GetContext(readCtx, clientID, version)
		if err != nil {
			if errors.Is(err, sentinel.ErrUnavailable) {
				return err
			}
			return backoff.Permanent(err)
		}
		cc = found
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.readInitial
	bo.MaxInterval = s.readMax

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, s.readAttempts-1), ctx))
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "client context not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "client context read failed")
	}
	return cc, nil
}

// authorize admits the owning therapist and therapists carrying the client in
// their assigned set. Everyone else is denied, supervisors included.
func authorize(ctx context.Context, cc *clientcontext.ClientContext) error {
	therapist := requestcontext.TherapistID(ctx)
	if therapist == cc.TherapistID {
		return nil
	}
	for _, assigned := range requestcontext.AssignedClients(ctx) {
		if assigned == cc.ClientID {
			return nil
		}
	}
	return dErrors.New(dErrors.CodeAuthorization, "therapist is not authorized for this client context")
}

func (s *Service) record(ctx context.Context, event audit.EventType, result audit.Result, clientID id.ClientID, details map[string]any) (id.EntryID, error) {
	// The ledger write must survive caller cancellation. The recorder bounds
	// it with its own per-attempt timeouts.
	return s.recorder.Append(context.WithoutCancel(ctx), audit.Entry{
		EventType:    event,
		Actor:        requestcontext.TherapistID(ctx).String(),
		ResourceType: resourceTypeClientContext,
		ResourceID:   clientID.String(),
		Action:       audit.ActionExtract,
		Result:       result,
		IPAddress:    requestcontext.ClientIP(ctx),
		UserAgent:    requestcontext.UserAgent(ctx),
		Details:      details,
	})
}

func (s *Service) observeFailure(ctx context.Context, span trace.Span, start time.Time, req ExtractRequest, pol *policy.WhitelistPolicy, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))

	if s.metrics != nil {
		s.metrics.IncExtraction(string(audit.ResultFailure))
		s.metrics.ObserveDuration(time.Since(start).Seconds())
		if dErrors.HasCode(err, dErrors.CodePolicyViolation) {
			s.metrics.IncViolation(policyLabel(req, pol))
		}
	}

	observability.LogDenied(ctx, s.logger, "extract_denied", string(dErrors.CodeOf(err)),
		"client_id", req.ClientID.String(),
		"policy", policyLabel(req, pol),
	)
}

// successDetails and denialDetails shape the ledger Details object. Field
// names, policy names, and versions only; never values.
func successDetails(view *AbstractedView) map[string]any {
	return map[string]any{
		"policy":          view.PolicyName,
		"policy_version":  view.PolicyVersion,
		"context_version": view.ContextVersion,
		"fields":          view.FieldNames(),
	}
}

func denialDetails(req ExtractRequest, pol *policy.WhitelistPolicy, err error) map[string]any {
	return map[string]any{
		"policy": policyLabel(req, pol),
		"reason": string(dErrors.CodeOf(err)),
	}
}

func policyLabel(req ExtractRequest, pol *policy.WhitelistPolicy) string {
	if pol != nil {
		return pol.Name
	}
	if req.PolicyName != "" {
		return req.PolicyName
	}
	if !req.PolicyID.IsNil() {
		return req.PolicyID.String()
	}
	return "unknown"
}
