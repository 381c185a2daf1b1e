// Package audit defines the append-only governance event trail. Every
// state-changing ledger operation emits one event; events are never
// mutated or deleted.
package audit

import (
	"context"
	"time"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain"
)

// EventType is the closed set of governance event kinds.
type EventType string

const (
	// EventCreated marks record creation together with its subnumber
	// allocation.
	EventCreated EventType = "created"
	// EventAllocated marks a subject resolution that created a new
	// ledger thread.
	EventAllocated EventType = "allocated"
	EventFinalized EventType = "finalized"
	EventAmended   EventType = "amended"
	EventVoided    EventType = "voided"
	EventMigrated  EventType = "migrated"
	EventRepaired  EventType = "repaired"
)

var validEventTypes = map[EventType]bool{
	EventCreated:   true,
	EventAllocated: true,
	EventFinalized: true,
	EventAmended:   true,
	EventVoided:    true,
	EventMigrated:  true,
	EventRepaired:  true,
}

// Valid reports membership in the closed event-type set.
func (t EventType) Valid() bool { return validEventTypes[t] }

// Event is one audit entry. RecordID is a weak back-reference by id only;
// the referenced record may since have been voided or soft-deleted.
type Event struct {
	ID         domain.EventID
	RecordID   domain.RecordID
	RevisionID *domain.RevisionID
	Type       EventType
	ActorID    domain.ActorID
	At         time.Time
	Meta       map[string]string
}

// Store is the append-only persistence contract for events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByRecord(ctx context.Context, recordID domain.RecordID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// Sink receives events for out-of-process delivery (Kafka). Separate from
// Store so the worker can fan out without the store knowing about brokers.
type Sink interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
