package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
)

const (
	defaultMaxAttempts     = 3
	defaultInitialInterval = 50 * time.Millisecond
	defaultMaxInterval     = 500 * time.Millisecond
	defaultWriteTimeout    = 5 * time.Second
)

// Recorder is the single write path into the ledger. It assigns entry
// identity exactly once, keeps per-process timestamps strictly monotonic and
// retries transient store failures with exponential backoff. Once retries are
// exhausted the caller receives CodeAuditWriteFailure and must fail the
// operation that produced the entry.
type Recorder struct {
	store           Store
	logger          *slog.Logger
	metrics         *Metrics
	maxAttempts     uint64
	initialInterval time.Duration
	maxInterval     time.Duration
	writeTimeout    time.Duration
	now             func() time.Time

	mu   sync.Mutex
	last time.Time
}

// Option configures the Recorder.
type Option func(*Recorder)

// WithLogger sets a logger for retry warnings and write-failure reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// WithRetry bounds the write attempts and the backoff interval range.
func WithRetry(maxAttempts int, initial, max time.Duration) Option {
	return func(r *Recorder) {
		if maxAttempts > 0 {
			r.maxAttempts = uint64(maxAttempts)
		}
		if initial > 0 {
			r.initialInterval = initial
		}
		if max > 0 {
			r.maxInterval = max
		}
	}
}

// WithWriteTimeout bounds each individual store attempt. Zero disables the
// per-attempt timeout and leaves only the caller's context.
func WithWriteTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		r.writeTimeout = d
	}
}

// WithClock overrides the wall clock. Monotonic ordering still holds if the
// supplied clock repeats or steps backwards.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder creates a fail-closed recorder over the given store.
func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:           store,
		maxAttempts:     defaultMaxAttempts,
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
		writeTimeout:    defaultWriteTimeout,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Append durably records one entry and returns its assigned ID.
//
// The entry ID and timestamp are fixed before the first write attempt, so
// every retry carries the same identity and idempotent stores collapse them
// into one logical row. An entry that already carries an ID or timestamp
// keeps them, which lets a caller re-drive its own ambiguous failure.
func (r *Recorder) Append(ctx context.Context, entry Entry) (id.EntryID, error) {
	if err := entry.Validate(); err != nil {
		return id.EntryID{}, err
	}
	if entry.ID.IsNil() {
		entry.ID = id.EntryID(uuid.New())
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = r.nextTimestamp()
	}

	start := time.Now()
	attempts := 0
	op := func() error {
		attempts++
		wctx := ctx
		if r.writeTimeout > 0 {
			var cancel context.CancelFunc
			wctx, cancel = context.WithTimeout(ctx, r.writeTimeout)
			defer cancel()
		}
		return r.store.Append(wctx, entry)
	}
	notify := func(err error, next time.Duration) {
		if r.metrics != nil {
			r.metrics.IncRetries()
		}
		if r.logger != nil {
			r.logger.WarnContext(ctx, "audit write failed, retrying",
				"entry_id", entry.ID,
				"event_type", entry.EventType,
				"retry_in", next,
				"error", err,
			)
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.initialInterval
	bo.MaxInterval = r.maxInterval
	bo.MaxElapsedTime = 0

	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(bo, r.maxAttempts-1), ctx), notify)
	if err != nil {
		if r.metrics != nil {
			r.metrics.IncAppend(string(ResultFailure))
		}
		if r.logger != nil {
			r.logger.ErrorContext(ctx, "CRITICAL: audit entry was not durably recorded",
				"entry_id", entry.ID,
				"event_type", entry.EventType,
				"actor", entry.Actor,
				"attempts", attempts,
				"error", err,
			)
		}
		return id.EntryID{}, dErrors.Wrap(err, dErrors.CodeAuditWriteFailure, "audit entry was not durably recorded")
	}

	if r.metrics != nil {
		r.metrics.IncAppend(string(ResultSuccess))
		r.metrics.ObserveWrite(time.Since(start).Seconds())
	}
	return entry.ID, nil
}

// nextTimestamp returns a strictly increasing per-process time. Two entries
// assigned in the same nanosecond, or across a wall-clock step backwards,
// still order correctly.
func (r *Recorder) nextTimestamp() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if !now.After(r.last) {
		now = r.last.Add(time.Nanosecond)
	}
	r.last = now
	return now
}

// ListByResource returns every entry recorded against one resource, oldest
// first. Compliance review only.
func (r *Recorder) ListByResource(ctx context.Context, resourceType, resourceID string) ([]Entry, error) {
	return r.store.ListByResource(ctx, resourceType, resourceID)
}

// ListByActor returns every entry recorded for one acting therapist, oldest
// first.
func (r *Recorder) ListByActor(ctx context.Context, actor string) ([]Entry, error) {
	return r.store.ListByActor(ctx, actor)
}

// ListRange returns entries with from <= Timestamp < to, oldest first,
// capped at limit when limit is positive.
func (r *Recorder) ListRange(ctx context.Context, from, to time.Time, limit int) ([]Entry, error) {
	return r.store.ListRange(ctx, from, to, limit)
}
