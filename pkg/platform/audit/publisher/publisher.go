// Package publisher emits governance events to the audit store.
//
// The default mode is synchronous and fail-closed: the mutating operation
// blocks until the event is persisted, and a persistence failure fails the
// operation. An optional buffered async mode exists for read-heavy
// deployments where audit latency on the hot path matters more than
// at-most-once loss of operational events.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain"
	audit "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit"
)

type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	inbox   chan audit.Event
	done    chan struct{}
	once    sync.Once
	closed  bool
	dropped int64
	mu      sync.Mutex
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for drop and persistence warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// WithAsyncBuffer switches the publisher to async mode with the given
// buffer size. Events that do not fit are dropped and counted; use sync
// mode for events that must never be lost.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.inbox = make(chan audit.Event, size)
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		go p.drain()
	}
	return p
}

// Emit records one event. Missing id and timestamp are filled in here so
// call sites stay lean.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.ID.IsNil() {
		event.ID = domain.NewEventID()
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}

	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}

	// The send stays under the mutex so Close cannot close the inbox
	// between the closed check and the send.
	p.mu.Lock()
	if p.closed {
		p.dropped++
		dropped := p.dropped
		p.mu.Unlock()
		p.logger.WarnContext(ctx, "audit publisher closed, event dropped",
			"event_type", string(event.Type),
			"record_id", event.RecordID.String(),
			"dropped_total", dropped,
		)
		return nil
	}
	select {
	case p.inbox <- event:
		p.mu.Unlock()
		return nil
	default:
		p.dropped++
		dropped := p.dropped
		p.mu.Unlock()
		p.logger.WarnContext(ctx, "audit buffer full, event dropped",
			"event_type", string(event.Type),
			"record_id", event.RecordID.String(),
			"dropped_total", dropped,
		)
		return nil
	}
}

// List returns the audit trail for one record.
func (p *Publisher) List(ctx context.Context, recordID domain.RecordID) ([]audit.Event, error) {
	return p.store.ListByRecord(ctx, recordID)
}

// Dropped returns the number of events lost to a full buffer.
func (p *Publisher) Dropped() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Close drains any buffered events and stops the background goroutine.
// Emits arriving after Close are dropped and counted, never sent.
func (p *Publisher) Close() error {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		if p.inbox != nil {
			close(p.inbox)
			<-p.done
		}
	})
	return nil
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.inbox {
		if err := p.store.Append(context.Background(), event); err != nil {
			p.logger.Error("async audit append failed",
				"event_type", string(event.Type),
				"record_id", event.RecordID.String(),
				"error", err,
			)
		}
	}
}
