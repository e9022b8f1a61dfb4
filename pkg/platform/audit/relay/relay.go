// Package relay drains the ledger outbox into Kafka.
//
// Entries are durably recorded before any outbox row exists, so the relay is
// an availability concern only: falling behind delays compliance copies but
// never loses or blocks a gated operation.
package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	auditpg "sanctum/pkg/platform/audit/store/postgres"
)

const (
	defaultInterval  = 2 * time.Second
	defaultBatchSize = 100
)

// Outbox is the pending-row view of the postgres ledger store.
type Outbox interface {
	ListUnpublished(ctx context.Context, limit int) ([]auditpg.OutboxRow, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// Publisher is satisfied by the platform Kafka publisher.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Worker polls the outbox and publishes pending rows in order. A Listener
// can cut poll latency by waking it when a row lands.
type Worker struct {
	outbox    Outbox
	publisher Publisher
	topic     string
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *Metrics
	wake      chan struct{}
}

// Option configures the Worker.
type Option func(*Worker)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithBatchSize bounds rows fetched per outbox query.
func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithLogger sets a logger for drain failures.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// NewWorker creates a relay worker publishing to the given topic.
func NewWorker(outbox Outbox, publisher Publisher, topic string, opts ...Option) *Worker {
	w := &Worker{
		outbox:    outbox,
		publisher: publisher,
		topic:     topic,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Wake schedules an immediate drain. Safe from any goroutine; a wake-up that
// arrives mid-drain coalesces into one extra pass.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run drains until the context is done. Drain failures are logged and
// retried on the next tick rather than terminating the worker.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.drain(ctx); err != nil && ctx.Err() == nil {
			if w.metrics != nil {
				w.metrics.IncErrors()
			}
			if w.logger != nil {
				w.logger.WarnContext(ctx, "outbox drain failed, will retry", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-w.wake:
		}
	}
}

// drain publishes pending rows oldest-first until the outbox is empty.
// Publishing and marking are not atomic, so a crash between them re-publishes
// rows; the consumer materializes idempotently on entry ID.
func (w *Worker) drain(ctx context.Context) error {
	for {
		rows, err := w.outbox.ListUnpublished(ctx, w.batchSize)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		published := make([]uuid.UUID, 0, len(rows))
		for _, row := range rows {
			key := []byte(row.EntryID.String())
			if err := w.publisher.Publish(ctx, w.topic, key, row.Payload); err != nil {
				if markErr := w.outbox.MarkPublished(ctx, published); markErr != nil && w.logger != nil {
					w.logger.WarnContext(ctx, "failed to mark partially drained batch", "error", markErr)
				}
				return err
			}
			published = append(published, row.ID)
			if w.metrics != nil {
				w.metrics.IncRelayed()
			}
		}

		if err := w.outbox.MarkPublished(ctx, published); err != nil {
			return err
		}
		if len(rows) < w.batchSize {
			return nil
		}
	}
}
