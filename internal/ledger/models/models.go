// Package models defines the governance ledger entities: Subjects (ledger
// threads owning one RM-ID group), GovernanceRecords (one logical governance
// item each) and GovernanceRevisions (hash-chained payload snapshots).
package models

import (
	"time"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/canonical"
)

// Category is the closed set of governance record kinds. A Subject is never
// re-used for a different category once created.
type Category string

const (
	CategoryMinutes             Category = "minutes"
	CategoryDistribution        Category = "distribution"
	CategoryDispute             Category = "dispute"
	CategoryInsurance           Category = "insurance"
	CategoryTrusteeCompensation Category = "trustee_compensation"
	CategoryPolicy              Category = "policy"
	CategoryMisc                Category = "misc"
)

var validCategories = map[Category]bool{
	CategoryMinutes:             true,
	CategoryDistribution:        true,
	CategoryDispute:             true,
	CategoryInsurance:           true,
	CategoryTrusteeCompensation: true,
	CategoryPolicy:              true,
	CategoryMisc:                true,
}

// Valid reports whether c is a member of the closed category set.
func (c Category) Valid() bool { return validCategories[c] }

// RecordStatus is the record lifecycle state.
type RecordStatus string

const (
	StatusDraft     RecordStatus = "draft"
	StatusFinalized RecordStatus = "finalized"
	StatusVoided    RecordStatus = "voided"
)

// Payload is the opaque structured content of one revision. Hashing and
// storage share one canonical serialization so the content hash is
// independent of map iteration order.
type Payload map[string]any

// CanonicalBytes returns the deterministic serialization used both for
// hashing and persistence.
func (p Payload) CanonicalBytes() ([]byte, error) {
	normalized, err := canonical.Normalize(map[string]any(p))
	if err != nil {
		return nil, err
	}
	return canonical.Marshal(normalized)
}

// Clone returns a shallow copy so stores can hand out payloads without
// sharing the caller's map.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Subject is the canonical owner of one RM-ID group within a portfolio.
// Identity is (PortfolioID, RMBase, RMGroup), unique among non-deleted
// subjects and enforced by the store. NextSub is the only field mutated on
// the hot allocation path; it moves by exactly one per issued subnumber
// and never goes backwards.
type Subject struct {
	ID             domain.SubjectID
	PortfolioID    domain.PortfolioID
	RMBase         string
	RMGroup        int
	Title          string
	Category       Category
	PrimaryPartyID string
	ExternalRef    string
	NextSub        int
	CreatedAt      time.Time
	DeletedAt      *time.Time
	DeletedReason  string
}

// Deleted reports whether the subject has been soft-deleted. Subjects are
// never hard-deleted so historical RM-IDs stay resolvable.
func (s *Subject) Deleted() bool { return s.DeletedAt != nil }

// GovernanceRecord is one logical governance item. RMSub is immutable once
// set; together with the owning subject's (portfolio, base, group) it forms
// the globally unique display identifier.
type GovernanceRecord struct {
	ID                domain.RecordID
	PortfolioID       domain.PortfolioID
	SubjectID         domain.SubjectID
	ModuleType        Category
	RMSub             int
	Status            RecordStatus
	CurrentRevisionID domain.RevisionID
	// AmendedByID is the forward link to the record superseding this one.
	// Nil when the record is the head of its amendment lineage. Must
	// resolve to a non-deleted record or be cleared by repair.
	AmendedByID *domain.RecordID
	// BusinessKey is the module-specific natural key used for duplicate
	// detection (for insurance: policy number + carrier + insured). Empty
	// when the module has no natural key.
	BusinessKey   string
	CreatedBy     domain.ActorID
	CreatedAt     time.Time
	FinalizedAt   *time.Time
	FinalizedBy   *domain.ActorID
	VoidedAt      *time.Time
	VoidReason    string
	DeletedAt     *time.Time
	DeletedReason string
}

// Deleted reports whether the record has been soft-deleted.
func (r *GovernanceRecord) Deleted() bool { return r.DeletedAt != nil }

// Finalized reports whether the record is in the finalized state with the
// signer metadata an auditor expects. Status and metadata can disagree in
// corrupted data; the consistency validator flags that, callers here only
// look at Status.
func (r *GovernanceRecord) Finalized() bool { return r.Status == StatusFinalized }

// GovernanceRevision is one version of a record's payload. Finalized
// revisions form a hash chain: each revision's ParentHash equals the
// ContentHash of the previous finalized revision of the same record, empty
// for the first. Draft revisions carry no ContentHash because their payload
// may still change.
type GovernanceRevision struct {
	ID           domain.RevisionID
	RecordID     domain.RecordID
	Version      int
	Payload      Payload
	ContentHash  string
	ParentHash   string
	ChangeReason string
	CreatedBy    domain.ActorID
	CreatedAt    time.Time
	FinalizedAt  *time.Time
	FinalizedBy  *domain.ActorID
}

// FinalizedRevision reports whether the revision is locked into the chain.
func (r *GovernanceRevision) Finalized() bool { return r.FinalizedAt != nil }
