package clientcontext

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

// Schema is the idempotent DDL for context snapshots and couple links.
const Schema = `
CREATE TABLE IF NOT EXISTS client_contexts (
	client_id    UUID NOT NULL,
	version      BIGINT NOT NULL,
	therapist_id UUID NOT NULL,
	fields       JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (client_id, version)
);

CREATE TABLE IF NOT EXISTS couple_links (
	couple_id    UUID PRIMARY KEY,
	partner_a    UUID NOT NULL,
	partner_b    UUID NOT NULL,
	therapist_id UUID NOT NULL,
	CONSTRAINT couple_partners_distinct CHECK (partner_a <> partner_b)
);
`

// PostgresStore reads context snapshots and couple links from PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// PutContext stores a snapshot. Seeding and tests only; the running system
// never writes contexts.
func (s *PostgresStore) PutContext(ctx context.Context, cc *ClientContext) error {
	fields, err := json.Marshal(cc.Fields)
	if err != nil {
		return fmt.Errorf("marshal context fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO client_contexts (client_id, version, therapist_id, fields)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (client_id, version) DO NOTHING
	`, uuid.UUID(cc.ClientID), cc.Version, uuid.UUID(cc.TherapistID), fields)
	if err != nil {
		return fmt.Errorf("insert context: %w", err)
	}
	return nil
}

// PutCoupleLink stores a link. Seeding and tests only.
func (s *PostgresStore) PutCoupleLink(ctx context.Context, link *CoupleLink) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO couple_links (couple_id, partner_a, partner_b, therapist_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (couple_id) DO NOTHING
	`, uuid.UUID(link.CoupleID), uuid.UUID(link.PartnerA), uuid.UUID(link.PartnerB), uuid.UUID(link.TherapistID))
	if err != nil {
		return fmt.Errorf("insert couple link: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetContext(ctx context.Context, clientID id.ClientID, version int64) (*ClientContext, error) {
	query := `
		SELECT client_id, version, therapist_id, fields
		FROM client_contexts
		WHERE client_id = $1 AND version = $2
	`
	args := []any{uuid.UUID(clientID), version}
	if version == LatestVersion {
		query = `
			SELECT client_id, version, therapist_id, fields
			FROM client_contexts
			WHERE client_id = $1
			ORDER BY version DESC
			LIMIT 1
		`
		args = args[:1]
	}

	var (
		gotClient    uuid.UUID
		gotVersion   int64
		gotTherapist uuid.UUID
		fieldsJSON   []byte
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&gotClient, &gotVersion, &gotTherapist, &fieldsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get context: %w (%v)", sentinel.ErrUnavailable, err)
	}

	var fields map[string]Field
	if err := json.Unmarshal(fieldsJSON, &fields); err != nil {
		return nil, fmt.Errorf("unmarshal context fields: %w", err)
	}

	return &ClientContext{
		ClientID:    id.ClientID(gotClient),
		TherapistID: id.TherapistID(gotTherapist),
		Version:     gotVersion,
		Fields:      fields,
	}, nil
}

func (s *PostgresStore) GetCoupleLink(ctx context.Context, coupleID id.CoupleID) (*CoupleLink, error) {
	var a, b, therapist uuid.UUID
	err := s.db.QueryRowContext(ctx, `
		SELECT partner_a, partner_b, therapist_id
		FROM couple_links
		WHERE couple_id = $1
	`, uuid.UUID(coupleID)).Scan(&a, &b, &therapist)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get couple link: %w (%v)", sentinel.ErrUnavailable, err)
	}

	return &CoupleLink{
		CoupleID:    coupleID,
		PartnerA:    id.ClientID(a),
		PartnerB:    id.ClientID(b),
		TherapistID: id.TherapistID(therapist),
	}, nil
}
