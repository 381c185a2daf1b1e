package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain"
	audit "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit/store/memory"

	"github.com/google/uuid"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	recordID := domain.NewRecordID()
	event := audit.Event{
		RecordID: recordID,
		Type:     audit.EventCreated,
		ActorID:  domain.ActorID(uuid.New()),
	}

	err := pub.Emit(context.Background(), event)
	require.NoError(t, err)

	events, err := pub.List(context.Background(), recordID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventCreated, events[0].Type)
	assert.False(t, events[0].ID.IsNil(), "emit assigns an event id")
	assert.False(t, events[0].At.IsZero(), "emit assigns a timestamp")
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))
	defer pub.Close()

	recordID := domain.NewRecordID()
	err := pub.Emit(context.Background(), audit.Event{
		RecordID: recordID,
		Type:     audit.EventFinalized,
	})
	require.NoError(t, err)

	// Wait for async processing
	require.Eventually(t, func() bool {
		events, err := store.ListByRecord(context.Background(), recordID)
		return err == nil && len(events) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	recordID := domain.NewRecordID()
	for range 10 {
		err := pub.Emit(context.Background(), audit.Event{
			RecordID: recordID,
			Type:     audit.EventCreated,
		})
		require.NoError(t, err)
	}

	// Close should drain all events
	pub.Close()

	events, err := store.ListByRecord(context.Background(), recordID)
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_EmitAfterClose_DropsAndCounts(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))
	pub.Close()

	recordID := domain.NewRecordID()
	require.NotPanics(t, func() {
		err := pub.Emit(context.Background(), audit.Event{
			RecordID: recordID,
			Type:     audit.EventCreated,
		})
		require.NoError(t, err)
	})

	assert.Equal(t, int64(1), pub.Dropped())
	events, err := store.ListByRecord(context.Background(), recordID)
	require.NoError(t, err)
	assert.Empty(t, events, "late emits are dropped, not persisted")
}

func TestPublisher_BufferFull_DropsAndCounts(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))

	recordID := domain.NewRecordID()
	for range 50 {
		err := pub.Emit(context.Background(), audit.Event{
			RecordID: recordID,
			Type:     audit.EventCreated,
		})
		require.NoError(t, err, "emit never blocks or errors in async mode")
	}
	pub.Close()

	events, err := store.ListByRecord(context.Background(), recordID)
	require.NoError(t, err)
	assert.Equal(t, int64(50-len(events)), pub.Dropped(),
		"every event is either persisted or counted as dropped")
}
