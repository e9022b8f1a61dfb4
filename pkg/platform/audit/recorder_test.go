package audit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
	"sanctum/pkg/platform/audit"
	"sanctum/pkg/platform/audit/store/memory"
)

// flakyStore fails the first N appends. With persistFirst it persists before
// failing, simulating an ambiguous failure where the write landed but the
// caller saw an error.
type flakyStore struct {
	audit.Store

	mu           sync.Mutex
	failures     int
	attempts     int
	persistFirst bool
}

func (f *flakyStore) Append(ctx context.Context, entry audit.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.failures {
		if f.persistFirst {
			_ = f.Store.Append(ctx, entry)
		}
		return errors.New("store unavailable")
	}
	return f.Store.Append(ctx, entry)
}

func validEntry() audit.Entry {
	return audit.Entry{
		EventType:    audit.EventContextExtracted,
		Actor:        uuid.NewString(),
		ResourceType: "client_context",
		ResourceID:   uuid.NewString(),
		Action:       audit.ActionExtract,
		Result:       audit.ResultSuccess,
	}
}

func TestRecorder_AssignsIdentity(t *testing.T) {
	store := memory.NewInMemoryStore()
	rec := audit.NewRecorder(store)

	entry := validEntry()
	before := time.Now()
	entryID, err := rec.Append(context.Background(), entry)
	after := time.Now()
	require.NoError(t, err)
	require.False(t, entryID.IsNil())

	stored, err := store.ListByActor(context.Background(), entry.Actor)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, entryID, stored[0].ID)
	assert.False(t, stored[0].Timestamp.Before(before))
	assert.False(t, stored[0].Timestamp.After(after.Add(time.Microsecond)))
}

func TestRecorder_PreservesCallerIdentity(t *testing.T) {
	store := memory.NewInMemoryStore()
	rec := audit.NewRecorder(store)

	entry := validEntry()
	entry.ID = id.EntryID(uuid.New())
	entry.Timestamp = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	entryID, err := rec.Append(context.Background(), entry)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, entryID)

	stored, err := store.ListByActor(context.Background(), entry.Actor)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, entry.Timestamp, stored[0].Timestamp)
}

func TestRecorder_MonotonicTimestamps_FrozenClock(t *testing.T) {
	store := memory.NewInMemoryStore()
	frozen := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rec := audit.NewRecorder(store, audit.WithClock(func() time.Time { return frozen }))

	actor := uuid.NewString()
	for range 5 {
		entry := validEntry()
		entry.Actor = actor
		_, err := rec.Append(context.Background(), entry)
		require.NoError(t, err)
	}

	stored, err := store.ListByActor(context.Background(), actor)
	require.NoError(t, err)
	require.Len(t, stored, 5)
	for i := 1; i < len(stored); i++ {
		assert.True(t, stored[i].Timestamp.After(stored[i-1].Timestamp),
			"timestamps must be strictly increasing even when the clock is frozen")
	}
}

func TestRecorder_MonotonicTimestamps_Concurrent(t *testing.T) {
	store := memory.NewInMemoryStore()
	rec := audit.NewRecorder(store)

	const n = 200
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := rec.Append(context.Background(), validEntry())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := store.ListRange(context.Background(), time.Time{}, time.Now().Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, stored, n)

	seen := make(map[int64]struct{}, n)
	for _, e := range stored {
		ns := e.Timestamp.UnixNano()
		_, dup := seen[ns]
		assert.False(t, dup, "timestamp %d assigned twice", ns)
		seen[ns] = struct{}{}
	}
}

func TestRecorder_RetriesTransientFailure(t *testing.T) {
	inner := memory.NewInMemoryStore()
	store := &flakyStore{Store: inner, failures: 2}
	rec := audit.NewRecorder(store, audit.WithRetry(3, time.Millisecond, 5*time.Millisecond))

	entry := validEntry()
	entryID, err := rec.Append(context.Background(), entry)
	require.NoError(t, err, "two transient failures must be absorbed by the third attempt")
	require.False(t, entryID.IsNil())
	assert.Equal(t, 3, store.attempts)

	stored, err := inner.ListByActor(context.Background(), entry.Actor)
	require.NoError(t, err)
	assert.Len(t, stored, 1, "retries must not duplicate the entry")
}

func TestRecorder_RetryAfterAmbiguousFailure_NoDuplicate(t *testing.T) {
	inner := memory.NewInMemoryStore()
	store := &flakyStore{Store: inner, failures: 1, persistFirst: true}
	rec := audit.NewRecorder(store, audit.WithRetry(3, time.Millisecond, 5*time.Millisecond))

	entry := validEntry()
	entryID, err := rec.Append(context.Background(), entry)
	require.NoError(t, err)

	stored, err := inner.ListByActor(context.Background(), entry.Actor)
	require.NoError(t, err)
	require.Len(t, stored, 1, "a write that landed before the error surfaced must not double-append")
	assert.Equal(t, entryID, stored[0].ID)
}

func TestRecorder_ExhaustedRetriesFailClosed(t *testing.T) {
	store := &flakyStore{Store: memory.NewInMemoryStore(), failures: 100}
	rec := audit.NewRecorder(store, audit.WithRetry(3, time.Millisecond, 5*time.Millisecond))

	entryID, err := rec.Append(context.Background(), validEntry())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAuditWriteFailure))
	assert.True(t, entryID.IsNil())
	assert.Equal(t, 3, store.attempts, "attempts must be bounded")
}

func TestRecorder_RejectsInvalidEntry(t *testing.T) {
	store := &flakyStore{Store: memory.NewInMemoryStore()}
	rec := audit.NewRecorder(store)

	entry := validEntry()
	entry.Actor = ""

	_, err := rec.Append(context.Background(), entry)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	assert.Zero(t, store.attempts, "invalid entries must not reach the store")
}

func TestRecorder_CancelledContextStopsRetrying(t *testing.T) {
	store := &flakyStore{Store: memory.NewInMemoryStore(), failures: 100}
	rec := audit.NewRecorder(store, audit.WithRetry(10, 50*time.Millisecond, time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rec.Append(ctx, validEntry())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAuditWriteFailure))
	assert.LessOrEqual(t, store.attempts, 2, "cancellation must cut the retry loop short")
}
