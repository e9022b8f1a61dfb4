package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	id "sanctum/pkg/domain"
	"sanctum/pkg/platform/sentinel"
)

// Schema for the policy registry. Versions are immutable rows; activating a
// new version inserts a new row rather than mutating the old one.
const Schema = `
CREATE TABLE IF NOT EXISTS whitelist_policies (
    id              UUID PRIMARY KEY,
    name            TEXT NOT NULL,
    version         INT NOT NULL,
    mode            TEXT NOT NULL,
    scope           TEXT NOT NULL,
    allowed_fields  JSONB NOT NULL,
    max_sensitivity TEXT NOT NULL,
    active          BOOLEAN NOT NULL DEFAULT TRUE,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (name, version)
);

CREATE INDEX IF NOT EXISTS idx_whitelist_policies_active_name
    ON whitelist_policies (name, version DESC) WHERE active;
`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Put(ctx context.Context, p *WhitelistPolicy) error {
	fields, err := json.Marshal(p.AllowedFields)
	if err != nil {
		return fmt.Errorf("marshal allowed fields: %w", err)
	}

	const q = `
        INSERT INTO whitelist_policies (id, name, version, mode, scope, allowed_fields, max_sensitivity, active)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (id) DO UPDATE SET active = EXCLUDED.active`

	if _, err := s.db.ExecContext(ctx, q,
		uuid.UUID(p.ID), p.Name, p.Version, string(p.Mode), string(p.Scope), fields, string(p.MaxSensitivity), p.Active,
	); err != nil {
		return fmt.Errorf("put policy: %w (%v)", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, policyID id.PolicyID) (*WhitelistPolicy, error) {
	const q = `
        SELECT id, name, version, mode, scope, allowed_fields, max_sensitivity, active
        FROM whitelist_policies WHERE id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, q, uuid.UUID(policyID)))
}

func (s *PostgresStore) GetActiveByName(ctx context.Context, name string) (*WhitelistPolicy, error) {
	const q = `
        SELECT id, name, version, mode, scope, allowed_fields, max_sensitivity, active
        FROM whitelist_policies
        WHERE name = $1 AND active
        ORDER BY version DESC
        LIMIT 1`
	return s.scanOne(s.db.QueryRowContext(ctx, q, name))
}

func (s *PostgresStore) List(ctx context.Context) ([]*WhitelistPolicy, error) {
	const q = `
        SELECT id, name, version, mode, scope, allowed_fields, max_sensitivity, active
        FROM whitelist_policies
        ORDER BY name ASC, version ASC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w (%v)", sentinel.ErrUnavailable, err)
	}
	defer rows.Close()

	var out []*WhitelistPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list policies: %w (%v)", sentinel.ErrUnavailable, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanOne(row *sql.Row) (*WhitelistPolicy, error) {
	p, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return p, err
}

func scanPolicy(row rowScanner) (*WhitelistPolicy, error) {
	var (
		p        WhitelistPolicy
		policyID uuid.UUID
		mode     string
		scope    string
		maxSens  string
		fields   []byte
	)
	if err := row.Scan(&policyID, &p.Name, &p.Version, &mode, &scope, &fields, &maxSens, &p.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan policy: %w (%v)", sentinel.ErrUnavailable, err)
	}
	if err := json.Unmarshal(fields, &p.AllowedFields); err != nil {
		return nil, fmt.Errorf("decode allowed fields: %w", err)
	}
	p.ID = id.PolicyID(policyID)
	p.Mode = Mode(mode)
	p.Scope = Scope(scope)
	p.MaxSensitivity = id.Sensitivity(maxSens)
	return &p, nil
}
