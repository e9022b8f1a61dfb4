// Package postgres implements the ledger store with a transactional outbox.
// The entry row and its outbox row commit atomically; the relay worker drains
// the outbox into Kafka afterwards. The synchronous fail-closed guarantee is
// carried entirely by the entry insert, never by Kafka.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "sanctum/pkg/domain"
	"sanctum/pkg/platform/audit"
	txcontext "sanctum/pkg/platform/tx"
)

// Schema is the idempotent DDL for the ledger tables. Applied by the test
// container manager and, when automigration is enabled, at boot. The store
// API exposes no update or delete on audit_entries.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	id            UUID PRIMARY KEY,
	ts            TIMESTAMPTZ NOT NULL,
	event_type    TEXT NOT NULL,
	user_id       TEXT NOT NULL,
	resource_type TEXT NOT NULL DEFAULT '',
	resource_id   TEXT NOT NULL DEFAULT '',
	action        TEXT NOT NULL,
	result        TEXT NOT NULL,
	ip_address    TEXT NOT NULL DEFAULT '',
	user_agent    TEXT NOT NULL DEFAULT '',
	details       JSONB
);

CREATE INDEX IF NOT EXISTS audit_entries_resource_idx ON audit_entries (resource_type, resource_id, ts);
CREATE INDEX IF NOT EXISTS audit_entries_actor_idx ON audit_entries (user_id, ts);
CREATE INDEX IF NOT EXISTS audit_entries_ts_idx ON audit_entries (ts);

CREATE TABLE IF NOT EXISTS audit_outbox (
	id           UUID PRIMARY KEY,
	entry_id     UUID NOT NULL,
	event_type   TEXT NOT NULL,
	payload      JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS audit_outbox_unpublished_idx ON audit_outbox (created_at) WHERE published_at IS NULL;

CREATE TABLE IF NOT EXISTS audit_compliance (
	id            UUID PRIMARY KEY,
	ts            TIMESTAMPTZ NOT NULL,
	event_type    TEXT NOT NULL,
	user_id       TEXT NOT NULL,
	resource_type TEXT NOT NULL DEFAULT '',
	resource_id   TEXT NOT NULL DEFAULT '',
	action        TEXT NOT NULL,
	result        TEXT NOT NULL,
	ip_address    TEXT NOT NULL DEFAULT '',
	user_agent    TEXT NOT NULL DEFAULT '',
	details       JSONB
);
`

// NotifyChannel is the pg_notify channel signalled for every new outbox row.
const NotifyChannel = "audit_outbox"

// Store implements audit.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append writes the entry and its outbox row in one transaction and signals
// the relay via pg_notify. Idempotent on entry ID: a retry that finds the
// entry already present inserts nothing, so neither table can double up.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	var details []byte
	if entry.Details != nil {
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
	}

	return txcontext.Run(ctx, s.db, func(ctx context.Context, _ *sql.Tx) error {
		res, err := s.execer(ctx).ExecContext(ctx, `
			INSERT INTO audit_entries (
				id, ts, event_type, user_id, resource_type, resource_id,
				action, result, ip_address, user_agent, details
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO NOTHING
		`,
			uuid.UUID(entry.ID),
			entry.Timestamp,
			string(entry.EventType),
			entry.Actor,
			entry.ResourceType,
			entry.ResourceID,
			string(entry.Action),
			string(entry.Result),
			entry.IPAddress,
			entry.UserAgent,
			details,
		)
		if err != nil {
			return fmt.Errorf("insert audit entry: %w", err)
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert audit entry: %w", err)
		}
		if inserted == 0 {
			// An earlier attempt already recorded this entry.
			return nil
		}

		outboxID := uuid.New()
		_, err = s.execer(ctx).ExecContext(ctx, `
			INSERT INTO audit_outbox (id, entry_id, event_type, payload, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`,
			outboxID,
			uuid.UUID(entry.ID),
			string(entry.EventType),
			payload,
			time.Now(),
		)
		if err != nil {
			return fmt.Errorf("insert outbox row: %w", err)
		}

		// NOTIFY fires on commit, so the relay never wakes for a row it
		// cannot see yet.
		if _, err := s.execer(ctx).ExecContext(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, outboxID.String()); err != nil {
			return fmt.Errorf("notify outbox: %w", err)
		}
		return nil
	})
}

// ListByResource returns every entry for one resource, oldest first.
func (s *Store) ListByResource(ctx context.Context, resourceType, resourceID string) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, event_type, user_id, resource_type, resource_id,
		       action, result, ip_address, user_agent, details
		FROM audit_entries
		WHERE resource_type = $1 AND resource_id = $2
		ORDER BY ts ASC, id ASC
	`, resourceType, resourceID)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListByActor returns every entry recorded for one acting therapist, oldest
// first.
func (s *Store) ListByActor(ctx context.Context, actor string) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, event_type, user_id, resource_type, resource_id,
		       action, result, ip_address, user_agent, details
		FROM audit_entries
		WHERE user_id = $1
		ORDER BY ts ASC, id ASC
	`, actor)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListRange returns entries with from <= ts < to, oldest first, capped at
// limit when limit is positive.
func (s *Store) ListRange(ctx context.Context, from, to time.Time, limit int) ([]audit.Entry, error) {
	query := `
		SELECT id, ts, event_type, user_id, resource_type, resource_id,
		       action, result, ip_address, user_agent, details
		FROM audit_entries
		WHERE ts >= $1 AND ts < $2
		ORDER BY ts ASC, id ASC
	`
	args := []any{from, to}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	var entries []audit.Entry

	for rows.Next() {
		var (
			entry   audit.Entry
			entryID uuid.UUID
			details []byte
		)

		err := rows.Scan(
			&entryID,
			&entry.Timestamp,
			&entry.EventType,
			&entry.Actor,
			&entry.ResourceType,
			&entry.ResourceID,
			&entry.Action,
			&entry.Result,
			&entry.IPAddress,
			&entry.UserAgent,
			&details,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}

		entry.ID = id.EntryID(entryID)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, fmt.Errorf("unmarshal audit details: %w", err)
			}
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}

	return entries, nil
}

// -----------------------------------------------------------------------------
// Outbox access for the relay worker
// -----------------------------------------------------------------------------

// OutboxRow is one pending relay publication.
type OutboxRow struct {
	ID        uuid.UUID
	EntryID   id.EntryID
	EventType string
	Payload   []byte
	CreatedAt time.Time
}

// ListUnpublished returns up to limit pending outbox rows, oldest first.
func (s *Store) ListUnpublished(ctx context.Context, limit int) ([]OutboxRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entry_id, event_type, payload, created_at
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var out []OutboxRow
	for rows.Next() {
		var (
			row     OutboxRow
			entryID uuid.UUID
		)
		if err := rows.Scan(&row.ID, &entryID, &row.EventType, &row.Payload, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		row.EntryID = id.EntryID(entryID)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return out, nil
}

// AppendCompliance materializes a relayed entry into the long-retention
// compliance table. Idempotent via ON CONFLICT DO NOTHING so redelivered
// Kafka messages collapse into one row.
func (s *Store) AppendCompliance(ctx context.Context, entry audit.Entry) error {
	var details []byte
	if entry.Details != nil {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_compliance (
			id, ts, event_type, user_id, resource_type, resource_id,
			action, result, ip_address, user_agent, details
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`,
		uuid.UUID(entry.ID),
		entry.Timestamp,
		string(entry.EventType),
		entry.Actor,
		entry.ResourceType,
		entry.ResourceID,
		string(entry.Action),
		string(entry.Result),
		entry.IPAddress,
		entry.UserAgent,
		details,
	)
	if err != nil {
		return fmt.Errorf("insert compliance entry: %w", err)
	}
	return nil
}

// MarkPublished stamps outbox rows as relayed. Rows keep their payload so a
// stalled relay can be audited after the fact.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE audit_outbox
		SET published_at = now()
		WHERE id = ANY($1) AND published_at IS NULL
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
