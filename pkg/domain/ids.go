// Package domain provides typed identifiers for ledger entities.
//
// Each entity gets its own UUID-backed type so the compiler rejects
// cross-type assignment (a RecordID can never be passed where a
// SubjectID is expected). Parsing enforces validity at trust boundaries.
package domain

import (
	"github.com/google/uuid"

	dErrors "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain-errors"
)

type (
	// PortfolioID identifies one tenant trust/portfolio.
	PortfolioID uuid.UUID
	// SubjectID identifies one canonical ledger thread (base + group owner).
	SubjectID uuid.UUID
	// RecordID identifies one governance record.
	RecordID uuid.UUID
	// RevisionID identifies one versioned payload snapshot of a record.
	RevisionID uuid.UUID
	// ActorID identifies the authenticated caller performing a mutation.
	ActorID uuid.UUID
	// EventID identifies one append-only audit entry.
	EventID uuid.UUID
)

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s id must not be empty", kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s id is not a valid uuid", kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s id must not be the nil uuid", kind)
	}
	return u, nil
}

// ParsePortfolioID validates and returns a PortfolioID.
func ParsePortfolioID(s string) (PortfolioID, error) {
	u, err := parseUUID(s, "portfolio")
	return PortfolioID(u), err
}

// ParseSubjectID validates and returns a SubjectID.
func ParseSubjectID(s string) (SubjectID, error) {
	u, err := parseUUID(s, "subject")
	return SubjectID(u), err
}

// ParseRecordID validates and returns a RecordID.
func ParseRecordID(s string) (RecordID, error) {
	u, err := parseUUID(s, "record")
	return RecordID(u), err
}

// ParseRevisionID validates and returns a RevisionID.
func ParseRevisionID(s string) (RevisionID, error) {
	u, err := parseUUID(s, "revision")
	return RevisionID(u), err
}

// ParseActorID validates and returns an ActorID.
func ParseActorID(s string) (ActorID, error) {
	u, err := parseUUID(s, "actor")
	return ActorID(u), err
}

// New* constructors mint fresh random identifiers.

func NewSubjectID() SubjectID   { return SubjectID(uuid.New()) }
func NewRecordID() RecordID     { return RecordID(uuid.New()) }
func NewRevisionID() RevisionID { return RevisionID(uuid.New()) }
func NewEventID() EventID       { return EventID(uuid.New()) }

func (id PortfolioID) String() string { return uuid.UUID(id).String() }
func (id SubjectID) String() string   { return uuid.UUID(id).String() }
func (id RecordID) String() string    { return uuid.UUID(id).String() }
func (id RevisionID) String() string  { return uuid.UUID(id).String() }
func (id ActorID) String() string     { return uuid.UUID(id).String() }
func (id EventID) String() string     { return uuid.UUID(id).String() }

func (id PortfolioID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id SubjectID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id RecordID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id RevisionID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id ActorID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
