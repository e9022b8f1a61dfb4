//go:build integration

package postgres_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "sanctum/pkg/domain"
	"sanctum/pkg/platform/audit"
	"sanctum/pkg/platform/audit/store/postgres"
	"sanctum/pkg/testutil/containers"
)

type AuditStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestAuditStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(AuditStoreSuite))
}

func (s *AuditStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB)
}

func (s *AuditStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "audit_entries", "audit_outbox", "audit_compliance")
	s.Require().NoError(err)
}

func newLedgerEntry(actor string) audit.Entry {
	return audit.Entry{
		ID:           id.EntryID(uuid.New()),
		Timestamp:    time.Now().UTC(),
		EventType:    audit.EventContextExtracted,
		Actor:        actor,
		ResourceType: "client_context",
		ResourceID:   uuid.NewString(),
		Action:       audit.ActionExtract,
		Result:       audit.ResultSuccess,
		IPAddress:    "10.1.2.3",
		UserAgent:    "integration-test",
		Details:      map[string]any{"policy": "individual-therapist-view"},
	}
}

func (s *AuditStoreSuite) TestAppendAndListByResource() {
	ctx := context.Background()
	actor := uuid.NewString()

	first := newLedgerEntry(actor)
	second := newLedgerEntry(actor)
	second.Timestamp = first.Timestamp.Add(time.Millisecond)
	second.ResourceType = first.ResourceType
	second.ResourceID = first.ResourceID
	other := newLedgerEntry(actor)

	s.Require().NoError(s.store.Append(ctx, first))
	s.Require().NoError(s.store.Append(ctx, second))
	s.Require().NoError(s.store.Append(ctx, other))

	entries, err := s.store.ListByResource(ctx, first.ResourceType, first.ResourceID)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(first.ID, entries[0].ID)
	s.Equal(second.ID, entries[1].ID)
	s.Equal(first.Actor, entries[0].Actor)
	s.Equal("individual-therapist-view", entries[0].Details["policy"])
	s.WithinDuration(first.Timestamp, entries[0].Timestamp, time.Millisecond)
}

func (s *AuditStoreSuite) TestAppendIsIdempotent() {
	ctx := context.Background()
	entry := newLedgerEntry(uuid.NewString())

	s.Require().NoError(s.store.Append(ctx, entry))
	s.Require().NoError(s.store.Append(ctx, entry))

	entries, err := s.store.ListByActor(ctx, entry.Actor)
	s.Require().NoError(err)
	s.Len(entries, 1, "duplicate append must collapse into one entry")

	pending, err := s.store.ListUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Len(pending, 1, "duplicate append must not produce a second outbox row")
}

func (s *AuditStoreSuite) TestOutboxRoundTrip() {
	ctx := context.Background()
	entry := newLedgerEntry(uuid.NewString())

	s.Require().NoError(s.store.Append(ctx, entry))

	pending, err := s.store.ListUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(entry.ID, pending[0].EntryID)
	s.Equal(string(audit.EventContextExtracted), pending[0].EventType)

	var relayed audit.Entry
	s.Require().NoError(json.Unmarshal(pending[0].Payload, &relayed))
	s.Equal(entry.ID, relayed.ID)
	s.Equal(entry.Actor, relayed.Actor)

	s.Require().NoError(s.store.MarkPublished(ctx, []uuid.UUID{pending[0].ID}))

	pending, err = s.store.ListUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *AuditStoreSuite) TestListRange() {
	ctx := context.Background()
	actor := uuid.NewString()
	base := time.Now().UTC().Truncate(time.Second)

	for i, offset := range []time.Duration{0, time.Minute, 2 * time.Minute, 3 * time.Minute} {
		entry := newLedgerEntry(actor)
		entry.Timestamp = base.Add(offset)
		s.Require().NoError(s.store.Append(ctx, entry), "entry %d", i)
	}

	entries, err := s.store.ListRange(ctx, base.Add(time.Minute), base.Add(3*time.Minute), 0)
	s.Require().NoError(err)
	s.Len(entries, 2, "range is inclusive of from and exclusive of to")

	capped, err := s.store.ListRange(ctx, base, base.Add(time.Hour), 3)
	s.Require().NoError(err)
	s.Len(capped, 3)
}

func (s *AuditStoreSuite) TestAppendComplianceIsIdempotent() {
	ctx := context.Background()
	entry := newLedgerEntry(uuid.NewString())

	s.Require().NoError(s.store.AppendCompliance(ctx, entry))
	s.Require().NoError(s.store.AppendCompliance(ctx, entry))

	var count int
	err := s.postgres.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_compliance`).Scan(&count)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *AuditStoreSuite) TestConcurrentAppends() {
	ctx := context.Background()
	const goroutines = 50

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.store.Append(ctx, newLedgerEntry(uuid.NewString())); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Zero(failures.Load())

	var count int
	err := s.postgres.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_entries`).Scan(&count)
	s.Require().NoError(err)
	s.Equal(goroutines, count)

	pending, err := s.store.ListUnpublished(ctx, goroutines*2)
	s.Require().NoError(err)
	s.Len(pending, goroutines)
}
