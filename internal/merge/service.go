package merge

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
	"golang.org/x/sync/errgroup"

	"sanctum/internal/clientcontext"
	"sanctum/internal/isolation"
	"sanctum/internal/policy"
	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
	"sanctum/pkg/platform/audit"
	"sanctum/pkg/platform/observability"
	"sanctum/pkg/platform/sentinel"
	"sanctum/pkg/requestcontext"
)

var tracer = otel.Tracer("sanctum/internal/merge")

const resourceTypeCouple = "couple"

const (
	defaultReadAttempts = 3
	defaultReadInitial  = 50 * time.Millisecond
	defaultReadMax      = 1 * time.Second
	defaultReadTimeout  = 2 * time.Second
)

// PolicyReader is the slice of the policy store the engine needs.
type PolicyReader interface {
	GetByID(ctx context.Context, policyID id.PolicyID) (*policy.WhitelistPolicy, error)
	GetActiveByName(ctx context.Context, name string) (*policy.WhitelistPolicy, error)
}

// Auditor records merge outcomes. Satisfied by *audit.Recorder.
type Auditor interface {
	Append(ctx context.Context, entry audit.Entry) (id.EntryID, error)
}

// Engine runs couples merges. Invocations for the same couple are serialized;
// different couples run independently.
type Engine struct {
	contexts clientcontext.Store
	policies PolicyReader
	recorder Auditor
	locks    *keyedMutex
	logger   *slog.Logger
	metrics  *Metrics
	hook     TransitionHook

	couplesPolicy string

	readAttempts uint64
	readInitial  time.Duration
	readMax      time.Duration
	readTimeout  time.Duration
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the decision logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics attaches merge metrics.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTransitionHook observes every state transition. Hooks run inline under
// the couple lock.
func WithTransitionHook(hook TransitionHook) EngineOption {
	return func(e *Engine) {
		e.hook = hook
	}
}

// WithCouplesPolicy sets the policy name used when a request names none.
func WithCouplesPolicy(name string) EngineOption {
	return func(e *Engine) {
		if name != "" {
			e.couplesPolicy = name
		}
	}
}

// WithReadRetry tunes the bounded retry on transient store failures.
func WithReadRetry(maxAttempts int, initial, max time.Duration) EngineOption {
	return func(e *Engine) {
		if maxAttempts > 0 {
			e.readAttempts = uint64(maxAttempts)
		}
		if initial > 0 {
			e.readInitial = initial
		}
		if max > 0 {
			e.readMax = max
		}
	}
}

// WithReadTimeout bounds each store read attempt.
func WithReadTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.readTimeout = d
		}
	}
}

// NewEngine constructs the merge engine.
func NewEngine(contexts clientcontext.Store, policies PolicyReader, recorder Auditor, opts ...EngineOption) *Engine {
	e := &Engine{
		contexts:      contexts,
		policies:      policies,
		recorder:      recorder,
		locks:         newKeyedMutex(),
		logger:        slog.Default(),
		couplesPolicy: policy.SeedCouplesPolicyName,
		readAttempts:  defaultReadAttempts,
		readInitial:   defaultReadInitial,
		readMax:       defaultReadMax,
		readTimeout:   defaultReadTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Merge runs one couples merge on behalf of the authenticated therapist.
// Exactly one audit entry is written per invocation (merge_completed,
// merge_rejected, or merge_failed) and the outcome is final only once that
// entry is durable. On a rejected or failed merge the returned result is
// non-nil and carries the ledger entry id alongside the error.
//
// A caller whose context ends while waiting for the couple lock never starts
// an invocation and gets no entry.
func (e *Engine) Merge(ctx context.Context, req MergeRequest) (*MergeResult, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "merge.couple",
		trace.WithAttributes(attribute.String("couple_id", req.CoupleID.String())))
	defer span.End()

	therapist := requestcontext.TherapistID(ctx)
	if therapist.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "merge requires an authenticated therapist")
	}
	if req.CoupleID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "merge requires a couple id")
	}

	release, err := e.locks.lock(ctx, req.CoupleID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "merge gave up waiting for the couple lock")
	}
	defer release()

	inv := newInvocation(req.CoupleID, e.hook)
	view, pol, mergeErr := e.run(ctx, inv, req)

	if mergeErr != nil {
		terminal := terminalFor(mergeErr)
		event := audit.EventMergeRejected
		if terminal == StateFailed {
			event = audit.EventMergeFailed
		}

		entryID, auditErr := e.record(ctx, event, audit.ResultFailure, req.CoupleID, failureDetails(req, pol, inv, mergeErr, e.couplesPolicy))
		if auditErr != nil {
			terminal = StateFailed
			mergeErr = auditErr
		}
		e.observeFailure(ctx, span, start, terminal, req, pol, mergeErr)
		inv.to(terminal)
		if auditErr != nil {
			// Without a durable record the rejection never became final.
			return nil, mergeErr
		}
		return &MergeResult{AuditEntryID: entryID}, mergeErr
	}

	entryID, auditErr := e.record(ctx, audit.EventMergeCompleted, audit.ResultSuccess, req.CoupleID, successDetails(view))
	if auditErr != nil {
		e.observeFailure(ctx, span, start, StateFailed, req, pol, auditErr)
		inv.to(StateFailed)
		return nil, auditErr
	}

	inv.to(StateCompleted)
	if e.metrics != nil {
		e.metrics.IncMerge(StateCompleted)
		e.metrics.ObserveDuration(time.Since(start).Seconds())
	}
	span.SetStatus(codes.Ok, "")
	observability.LogDecision(ctx, e.logger, "merge_completed",
		"couple_id", view.CoupleID.String(),
		"policy", view.PolicyName,
		"policy_version", view.PolicyVersion,
		"field_count", len(view.Fields),
	)

	return &MergeResult{View: view, AuditEntryID: entryID}, nil
}

// run walks the invocation through its states up to Merging. The returned
// policy is non-nil as soon as lookup succeeded so failures can be attributed
// to a policy name.
func (e *Engine) run(ctx context.Context, inv *invocation, req MergeRequest) (*MergedFrameworkView, *policy.WhitelistPolicy, error) {
	link, err := e.fetchCoupleLink(ctx, req.CoupleID)
	if err != nil {
		return nil, nil, err
	}
	if requestcontext.TherapistID(ctx) != link.TherapistID {
		return nil, nil, dErrors.New(dErrors.CodeAuthorization, "therapist does not hold this couple")
	}

	ccA, ccB, err := e.fetchPartnerContexts(ctx, link)
	if err != nil {
		return nil, nil, err
	}
	// A stale link is turned away even when the caller owns it: both partner
	// contexts must still be held by the link's therapist.
	if ccA.TherapistID != link.TherapistID || ccB.TherapistID != link.TherapistID {
		return nil, nil, dErrors.New(dErrors.CodeAuthorization, "partner context is no longer held by the couple's therapist")
	}
	inv.to(StateAuthorized)

	pol, err := e.lookupPolicy(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	// Scope is checked before any extraction so a mis-referenced policy can
	// never see a single field.
	if pol.Scope != policy.ScopeCouples {
		return nil, pol, dErrors.Newf(dErrors.CodePolicyViolation, "merge requires a couples-scope policy, %q has scope %q", pol.Name, pol.Scope)
	}
	if !pol.Active {
		return nil, pol, dErrors.Newf(dErrors.CodePolicyViolation, "policy %q is inactive", pol.Name)
	}

	inv.to(StateExtractingA)
	viewA, err := isolation.Project(ccA, pol, nil)
	if err != nil {
		return nil, pol, err
	}
	if err := ctx.Err(); err != nil {
		return nil, pol, abortError(err)
	}

	inv.to(StateExtractingB)
	viewB, err := isolation.Project(ccB, pol, nil)
	if err != nil {
		return nil, pol, err
	}
	if err := ctx.Err(); err != nil {
		return nil, pol, abortError(err)
	}

	inv.to(StateMerging)
	return combine(req.CoupleID, viewA, viewB, requestcontext.Now(ctx)), pol, nil
}

func (e *Engine) fetchCoupleLink(ctx context.Context, coupleID id.CoupleID) (*clientcontext.CoupleLink, error) {
	var link *clientcontext.CoupleLink
	err := e.withRetry(ctx, func(readCtx context.Context) error {
		found, err := e.contexts.GetCoupleLink(readCtx, coupleID)
		if err != nil {
			return err
		}
		link = found
		return nil
	})
	// A missing link reads as an authorization failure so callers cannot
	// probe which couples exist.
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeAuthorization, "couple does not resolve for this therapist")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "couple link read failed")
	}
	return link, nil
}

// fetchPartnerContexts reads both partners' latest snapshots concurrently;
// the first failure cancels the other read.
func (e *Engine) fetchPartnerContexts(ctx context.Context, link *clientcontext.CoupleLink) (*clientcontext.ClientContext, *clientcontext.ClientContext, error) {
	g, gctx := errgroup.WithContext(ctx)

	var ccA, ccB *clientcontext.ClientContext
	g.Go(func() error {
		cc, err := e.fetchContext(gctx, link.PartnerA)
		if err != nil {
			return err
		}
		ccA = cc
		return nil
	})
	g.Go(func() error {
		cc, err := e.fetchContext(gctx, link.PartnerB)
		if err != nil {
			return err
		}
		ccB = cc
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return ccA, ccB, nil
}

func (e *Engine) fetchContext(ctx context.Context, clientID id.ClientID) (*clientcontext.ClientContext, error) {
	var cc *clientcontext.ClientContext
	err := e.withRetry(ctx, func(readCtx context.Context) error {
		found, err := e.contexts.GetContext(readCtx, clientID, clientcontext.LatestVersion)
		if err != nil {
			return err
		}
		cc = found
		return nil
	})
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeAuthorization, "partner context does not resolve for this couple")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "partner context read failed")
	}
	return cc, nil
}

// withRetry runs one store read with bounded backoff on transient failures.
// Misses are never retried.
func (e *Engine) withRetry(ctx context.Context, read func(context.Context) error) error {
	op := func() error {
		readCtx, cancel := context.WithTimeout(ctx, e.readTimeout)
		defer cancel()

		if err := read(readCtx); err != nil {
			if errors.Is(err, sentinel.ErrUnavailable) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.readInitial
	bo.MaxInterval = e.readMax

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, e.readAttempts-1), ctx))
}

func (e *Engine) lookupPolicy(ctx context.Context, req MergeRequest) (*policy.WhitelistPolicy, error) {
	var (
		pol *policy.WhitelistPolicy
		err error
	)
	switch {
	case !req.PolicyID.IsNil():
		pol, err = e.policies.GetByID(ctx, req.PolicyID)
	case req.PolicyName != "":
		pol, err = e.policies.GetActiveByName(ctx, req.PolicyName)
	default:
		pol, err = e.policies.GetActiveByName(ctx, e.couplesPolicy)
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "merge policy not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "merge policy lookup failed")
	}
	return pol, nil
}

// terminalFor classifies an invocation error: caller-addressable refusals end
// Rejected, everything infrastructural ends Failed.
func terminalFor(err error) State {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeAuthorization, dErrors.CodePolicyViolation, dErrors.CodeNotFound:
		return StateRejected
	default:
		return StateFailed
	}
}

func abortError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "merge aborted by deadline")
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, "merge aborted")
}

func (e *Engine) record(ctx context.Context, event audit.EventType, result audit.Result, coupleID id.CoupleID, details map[string]any) (id.EntryID, error) {
	// The ledger write must survive caller cancellation. The recorder bounds
	// it with its own per-attempt timeouts.
	return e.recorder.Append(context.WithoutCancel(ctx), audit.Entry{
		EventType:    event,
		Actor:        requestcontext.TherapistID(ctx).String(),
		ResourceType: resourceTypeCouple,
		ResourceID:   coupleID.String(),
		Action:       audit.ActionMerge,
		Result:       result,
		IPAddress:    requestcontext.ClientIP(ctx),
		UserAgent:    requestcontext.UserAgent(ctx),
		Details:      details,
	})
}

func (e *Engine) observeFailure(ctx context.Context, span trace.Span, start time.Time, terminal State, req MergeRequest, pol *policy.WhitelistPolicy, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))

	if e.metrics != nil {
		e.metrics.IncMerge(terminal)
		e.metrics.ObserveDuration(time.Since(start).Seconds())
	}

	event := "merge_rejected"
	if terminal == StateFailed {
		event = "merge_failed"
	}
	observability.LogDenied(ctx, e.logger, event, string(dErrors.CodeOf(err)),
		"couple_id", req.CoupleID.String(),
		"policy", mergePolicyLabel(req, pol, ""),
	)
}

// successDetails and failureDetails shape the ledger Details object. Names,
// versions, and codes only; never field values.
func successDetails(view *MergedFrameworkView) map[string]any {
	return map[string]any{
		"policy":                  view.PolicyName,
		"policy_version":          view.PolicyVersion,
		"source_context_versions": view.SourceContextVersions,
		"fields":                  view.FieldNames(),
	}
}

func failureDetails(req MergeRequest, pol *policy.WhitelistPolicy, inv *invocation, err error, defaultPolicy string) map[string]any {
	return map[string]any{
		"policy": mergePolicyLabel(req, pol, defaultPolicy),
		"reason": string(dErrors.CodeOf(err)),
		"state":  string(inv.state),
	}
}

func mergePolicyLabel(req MergeRequest, pol *policy.WhitelistPolicy, defaultPolicy string) string {
	switch {
	case pol != nil:
		return pol.Name
	case req.PolicyName != "":
		return req.PolicyName
	case !req.PolicyID.IsNil():
		return req.PolicyID.String()
	case defaultPolicy != "":
		return defaultPolicy
	}
	return "unknown"
}
