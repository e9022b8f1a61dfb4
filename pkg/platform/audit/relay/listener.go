package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

const reconnectDelay = time.Second

// Listener holds a dedicated connection LISTENing on the outbox notify
// channel and wakes the worker as soon as a row lands. Purely a latency
// accelerator: the worker's poll ticker alone is sufficient for delivery.
type Listener struct {
	dsn     string
	channel string
	wake    func()
	logger  *slog.Logger
}

// NewListener creates a listener on the given pg_notify channel. wake is
// invoked once per notification and must not block.
func NewListener(dsn, channel string, wake func(), logger *slog.Logger) *Listener {
	return &Listener{
		dsn:     dsn,
		channel: channel,
		wake:    wake,
		logger:  logger,
	}
}

// Run listens until the context is done, reconnecting after connection
// failures.
func (l *Listener) Run(ctx context.Context) error {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if l.logger != nil {
			l.logger.WarnContext(ctx, "outbox listener disconnected, reconnecting",
				"channel", l.channel,
				"error", err,
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	// The channel name is a package constant, not user input.
	if _, err := conn.Exec(ctx, "LISTEN "+l.channel); err != nil {
		return err
	}

	for {
		if _, err := conn.WaitForNotification(ctx); err != nil {
			return err
		}
		l.wake()
	}
}
