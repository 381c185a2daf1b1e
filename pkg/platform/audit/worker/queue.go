package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain"
	audit "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit"
)

// Queue is the producer half of the worker pipeline. Emit enqueues an
// event for the worker; List reads the trail straight from the store,
// so already-persisted history is visible even while the queue drains.
type Queue struct {
	inbox   chan audit.Event
	store   audit.Store
	logger  *slog.Logger
	dropped atomic.Int64
	mu      sync.Mutex
	closed  bool
	once    sync.Once
}

// NewQueue builds a queue with the given buffer size feeding a worker.
func NewQueue(store audit.Store, size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		inbox:  make(chan audit.Event, size),
		store:  store,
		logger: logger,
	}
}

// Inbox is the channel the worker consumes.
func (q *Queue) Inbox() <-chan audit.Event { return q.inbox }

// Emit enqueues one event. Missing id and timestamp are filled in here.
// Events that do not fit the buffer are dropped and counted; the store
// stays the source of truth for everything that made it through.
func (q *Queue) Emit(ctx context.Context, event audit.Event) error {
	if event.ID.IsNil() {
		event.ID = domain.NewEventID()
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}

	// The send stays under the mutex so Close cannot close the inbox
	// between the closed check and the send.
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		dropped := q.dropped.Add(1)
		q.logger.WarnContext(ctx, "audit queue closed, event dropped",
			"event_type", string(event.Type),
			"record_id", event.RecordID.String(),
			"dropped_total", dropped,
		)
		return nil
	}
	select {
	case q.inbox <- event:
		q.mu.Unlock()
		return nil
	default:
		q.mu.Unlock()
		dropped := q.dropped.Add(1)
		q.logger.WarnContext(ctx, "audit queue full, event dropped",
			"event_type", string(event.Type),
			"record_id", event.RecordID.String(),
			"dropped_total", dropped,
		)
		return nil
	}
}

// List returns the audit trail for one record.
func (q *Queue) List(ctx context.Context, recordID domain.RecordID) ([]audit.Event, error) {
	return q.store.ListByRecord(ctx, recordID)
}

// Dropped returns the number of events lost to a full buffer.
func (q *Queue) Dropped() int64 { return q.dropped.Load() }

// Close stops accepting events and lets the worker drain what remains.
// Emits arriving after Close are dropped and counted, never sent.
func (q *Queue) Close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.inbox)
	})
}
