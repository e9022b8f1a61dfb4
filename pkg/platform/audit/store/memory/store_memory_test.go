package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "sanctum/pkg/domain"
	"sanctum/pkg/platform/audit"
)

func entryAt(ts time.Time) audit.Entry {
	return audit.Entry{
		ID:           id.EntryID(uuid.New()),
		Timestamp:    ts,
		EventType:    audit.EventContextExtracted,
		Actor:        uuid.NewString(),
		ResourceType: "client_context",
		ResourceID:   uuid.NewString(),
		Action:       audit.ActionExtract,
		Result:       audit.ResultSuccess,
	}
}

func TestInMemoryStore_AppendIsIdempotent(t *testing.T) {
	store := NewInMemoryStore()
	entry := entryAt(time.Now())

	require.NoError(t, store.Append(context.Background(), entry))
	require.NoError(t, store.Append(context.Background(), entry))

	got, err := store.ListByActor(context.Background(), entry.Actor)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestInMemoryStore_ListByResource(t *testing.T) {
	store := NewInMemoryStore()
	target := entryAt(time.Now())
	other := entryAt(time.Now())
	other.ResourceType = "couple"

	require.NoError(t, store.Append(context.Background(), target))
	require.NoError(t, store.Append(context.Background(), other))

	got, err := store.ListByResource(context.Background(), "client_context", target.ResourceID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, target.ID, got[0].ID)
}

func TestInMemoryStore_ListRange(t *testing.T) {
	store := NewInMemoryStore()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	// Appended out of order on purpose.
	for _, offset := range []time.Duration{3 * time.Minute, time.Minute, 2 * time.Minute, 0} {
		require.NoError(t, store.Append(context.Background(), entryAt(base.Add(offset))))
	}

	got, err := store.ListRange(context.Background(), base.Add(time.Minute), base.Add(3*time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, got, 2, "range is inclusive of from and exclusive of to")
	assert.True(t, got[0].Timestamp.Before(got[1].Timestamp))

	capped, err := store.ListRange(context.Background(), base, base.Add(time.Hour), 3)
	require.NoError(t, err)
	assert.Len(t, capped, 3)
}

func TestInMemoryStore_ConcurrentAppends(t *testing.T) {
	store := NewInMemoryStore()
	actor := uuid.NewString()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry := entryAt(time.Now())
			entry.Actor = actor
			assert.NoError(t, store.Append(context.Background(), entry))
		}()
	}
	wg.Wait()

	got, err := store.ListByActor(context.Background(), actor)
	require.NoError(t, err)
	assert.Len(t, got, 50)
}
