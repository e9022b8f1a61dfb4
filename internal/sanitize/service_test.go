package sanitize

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
	"sanctum/pkg/platform/audit"
	auditmem "sanctum/pkg/platform/audit/store/memory"
	"sanctum/pkg/platform/sentinel"
	"sanctum/pkg/requestcontext"
)

// stubAnalytics records outbound calls and answers with a canned response or
// a configured error.
type stubAnalytics struct {
	mu       sync.Mutex
	response string
	err      error
	calls    []string
}

func (s *stubAnalytics) Query(_ context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, text)
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubAnalytics) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// failingAuditStore rejects every append.
type failingAuditStore struct{}

func (failingAuditStore) Append(context.Context, audit.Entry) error {
	return fmt.Errorf("ledger write: %w", sentinel.ErrUnavailable)
}
func (failingAuditStore) ListByResource(context.Context, string, string) ([]audit.Entry, error) {
	return nil, nil
}
func (failingAuditStore) ListByActor(context.Context, string) ([]audit.Entry, error) {
	return nil, nil
}
func (failingAuditStore) ListRange(context.Context, time.Time, time.Time, int) ([]audit.Entry, error) {
	return nil, nil
}

type serviceFixture struct {
	analytics *stubAnalytics
	auditMem  *auditmem.InMemoryStore
	service   *Service
	therapist id.TherapistID
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		analytics: &stubAnalytics{response: "avoidant attachment correlates with delayed disclosure"},
		auditMem:  auditmem.NewInMemoryStore(),
		therapist: id.TherapistID(uuid.New()),
	}
	recorder := audit.NewRecorder(f.auditMem, audit.WithRetry(3, time.Millisecond, 5*time.Millisecond))
	f.service = NewService(NewClassifier(), f.analytics, recorder)
	return f
}

func (f *serviceFixture) callerCtx() context.Context {
	ctx := requestcontext.WithTherapistID(context.Background(), f.therapist)
	return requestcontext.WithClientMetadata(ctx, "10.1.2.3", "sanctum-test/1.0")
}

func (f *serviceFixture) entries(t *testing.T, text string) []audit.Entry {
	t.Helper()
	entries, err := f.auditMem.ListByResource(context.Background(), "external_query", textDigest(text))
	require.NoError(t, err)
	return entries
}

func TestSanitizeAndQueryAllowsCleanText(t *testing.T) {
	f := newServiceFixture(t)
	text := "Clients with avoidant attachment often report difficulty with intimacy."

	result, err := f.service.SanitizeAndQuery(f.callerCtx(), text)
	require.NoError(t, err)

	assert.Equal(t, DecisionAllowed, result.Decision)
	assert.Equal(t, text, result.Text)
	assert.Equal(t, f.analytics.response, result.Response)
	assert.Empty(t, result.Spans)
	assert.False(t, result.AuditEntryID.IsNil())
	assert.Equal(t, 1, f.analytics.callCount())

	entries := f.entries(t, text)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, result.AuditEntryID, entry.ID)
	assert.Equal(t, audit.EventQueryAllowed, entry.EventType)
	assert.Equal(t, audit.ResultSuccess, entry.Result)
	assert.Equal(t, audit.ActionSanitize, entry.Action)
	assert.Equal(t, f.therapist.String(), entry.Actor)
	assert.Equal(t, "external_query", entry.ResourceType)
	assert.Equal(t, textDigest(text), entry.ResourceID)
	assert.Len(t, entry.ResourceID, 16)
	assert.Equal(t, "10.1.2.3", entry.IPAddress)
	assert.Equal(t, "allowed", entry.Details["decision"])
	assert.NotContains(t, entry.Details, "reason")
}

func TestSanitizeAndQueryAllowedTextIsIdempotent(t *testing.T) {
	f := newServiceFixture(t)
	text := "Clients with avoidant attachment often report difficulty with intimacy."

	first, err := f.service.SanitizeAndQuery(f.callerCtx(), text)
	require.NoError(t, err)
	require.Equal(t, DecisionAllowed, first.Decision)

	// Resubmitting text the gate already allowed passes it through unchanged.
	second, err := f.service.SanitizeAndQuery(f.callerCtx(), first.Text)
	require.NoError(t, err)

	assert.Equal(t, DecisionAllowed, second.Decision)
	assert.Equal(t, first.Text, second.Text)
	assert.Empty(t, second.Spans)

	// Each pass is a gate decision in its own right and gets its own entry.
	entries := f.entries(t, text)
	require.Len(t, entries, 2)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
}

func TestSanitizeAndQueryBlocksDetectedPHI(t *testing.T) {
	f := newServiceFixture(t)
	text := "My client John Smith, DOB 1990-01-01, reports increased anxiety."

	result, err := f.service.SanitizeAndQuery(f.callerCtx(), text)
	require.NoError(t, err)

	assert.Equal(t, DecisionBlocked, result.Decision)
	assert.Equal(t, ReasonPHIDetected, result.Reason)
	require.Len(t, result.Spans, 3)
	assert.Empty(t, result.Text)
	assert.Empty(t, result.Response)
	assert.Equal(t, 0, f.analytics.callCount())

	entries := f.entries(t, text)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, result.AuditEntryID, entry.ID)
	assert.Equal(t, audit.EventQueryBlocked, entry.EventType)
	assert.Equal(t, audit.ResultFailure, entry.Result)
	assert.Equal(t, "blocked", entry.Details["decision"])
	assert.Equal(t, ReasonPHIDetected, entry.Details["reason"])
	assert.ElementsMatch(t, []string{"person_name", "date_of_birth"}, entry.Details["span_kinds"])

	// The ledger locates spans; it never stores what they matched.
	payload, err := json.Marshal(entry.Details)
	require.NoError(t, err)
	assert.NotContains(t, string(payload), "John Smith")
	assert.NotContains(t, string(payload), "1990-01-01")
}

func TestSanitizeAndQueryBlocksOnDetectionFailure(t *testing.T) {
	f := newServiceFixture(t)
	recorder := audit.NewRecorder(f.auditMem, audit.WithRetry(3, time.Millisecond, 5*time.Millisecond))
	broken := &Classifier{
		maxTextBytes: DefaultMaxTextBytes,
		detectors:    []detector{{kind: KindPersonName}},
	}
	svc := NewService(broken, f.analytics, recorder)
	text := "any text at all"

	result, err := svc.SanitizeAndQuery(f.callerCtx(), text)
	require.NoError(t, err)

	assert.Equal(t, DecisionBlocked, result.Decision)
	assert.Equal(t, ReasonDetectionFailure, result.Reason)
	assert.Empty(t, result.Spans)
	assert.Equal(t, 0, f.analytics.callCount())

	entries := f.entries(t, text)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.EventQueryBlocked, entries[0].EventType)
	assert.Equal(t, audit.ResultFailure, entries[0].Result)
	assert.Equal(t, ReasonDetectionFailure, entries[0].Details["reason"])
	assert.NotContains(t, entries[0].Details, "span_kinds")
}

func TestSanitizeAndQueryAnalyticsFailureKeepsAllowedDecision(t *testing.T) {
	f := newServiceFixture(t)
	f.analytics.err = dErrors.New(dErrors.CodeUnavailable, "analytics returned status 502")
	text := "Clients presenting with grief often describe sleep disruption."

	result, err := f.service.SanitizeAndQuery(f.callerCtx(), text)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))

	// The gate decision survives the transport failure.
	require.NotNil(t, result)
	assert.Equal(t, DecisionAllowed, result.Decision)
	assert.Empty(t, result.Response)
	assert.False(t, result.AuditEntryID.IsNil())

	entries := f.entries(t, text)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, audit.EventQueryAllowed, entry.EventType)
	assert.Equal(t, audit.ResultFailure, entry.Result)
	assert.Equal(t, "allowed", entry.Details["decision"])
	assert.Equal(t, "unavailable", entry.Details["reason"])
}

func TestSanitizeAndQueryAuditFailureFailsClosed(t *testing.T) {
	analytics := &stubAnalytics{response: "answer"}
	recorder := audit.NewRecorder(failingAuditStore{}, audit.WithRetry(2, time.Millisecond, 5*time.Millisecond))
	svc := NewService(NewClassifier(), analytics, recorder)
	ctx := requestcontext.WithTherapistID(context.Background(), id.TherapistID(uuid.New()))

	t.Run("allowed text", func(t *testing.T) {
		result, err := svc.SanitizeAndQuery(ctx, "Clients often benefit from structured check-ins.")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAuditWriteFailure))
		assert.Nil(t, result)
	})

	t.Run("blocked text", func(t *testing.T) {
		before := analytics.callCount()
		result, err := svc.SanitizeAndQuery(ctx, "my client Anna Bell called")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAuditWriteFailure))
		assert.Nil(t, result)
		assert.Equal(t, before, analytics.callCount())
	})
}

func TestSanitizeAndQueryRequiresIdentity(t *testing.T) {
	f := newServiceFixture(t)
	text := "Clients often benefit from structured check-ins."

	result, err := f.service.SanitizeAndQuery(context.Background(), text)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Nil(t, result)
	assert.Equal(t, 0, f.analytics.callCount())
	assert.Empty(t, f.entries(t, text))
}

func TestSanitizeAndQueryRequiresText(t *testing.T) {
	f := newServiceFixture(t)

	result, err := f.service.SanitizeAndQuery(f.callerCtx(), "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	assert.Nil(t, result)

	ledger, err := f.auditMem.ListByActor(context.Background(), f.therapist.String())
	require.NoError(t, err)
	assert.Empty(t, ledger)
}

func TestSanitizeAndQueryCancelledCallerStillRecords(t *testing.T) {
	f := newServiceFixture(t)
	text := "Clients often benefit from structured check-ins."
	ctx, cancel := context.WithCancel(f.callerCtx())
	cancel()

	// A cancelled scan fails closed; the ledger write must land anyway.
	result, err := f.service.SanitizeAndQuery(ctx, text)
	require.NoError(t, err)
	assert.Equal(t, DecisionBlocked, result.Decision)
	assert.Equal(t, ReasonDetectionFailure, result.Reason)

	entries := f.entries(t, text)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.EventQueryBlocked, entries[0].EventType)
}
