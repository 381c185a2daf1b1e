// Package store persists ledger entities behind narrow interfaces so the
// allocator, chain manager and validator stay testable against the
// in-memory implementation while production runs on PostgreSQL.
//
// The contract deliberately assumes no multi-document transactions: every
// method is a single-document operation, and the only concurrency
// primitives offered are unique-key conditional insert and single-document
// compare-and-swap. Multi-entity sequences are compensated by the oplog
// package and reconciled by the validator.
package store

import (
	"context"
	"time"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/models"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain"
)

// Collection names used by compensation entries and repair logging.
const (
	CollectionSubjects  = "subjects"
	CollectionRecords   = "governance_records"
	CollectionRevisions = "governance_revisions"
)

// SubjectStore owns Subject rows. The (portfolio, base, group) key is
// unique among non-deleted subjects, enforced by the implementation.
type SubjectStore interface {
	// Insert is a create-if-absent conditional insert on the natural key.
	// Racing creators get sentinel.ErrConflict and must re-fetch the winner.
	Insert(ctx context.Context, subject *models.Subject) error
	FindByID(ctx context.Context, id domain.SubjectID) (*models.Subject, error)
	// FindByKey resolves the unique non-deleted subject for the triple.
	FindByKey(ctx context.Context, portfolioID domain.PortfolioID, base string, group int) (*models.Subject, error)
	// CompareAndSwapNextSub advances the subnumber counter from expected to
	// next in one atomic step. A changed counter returns sentinel.ErrConflict
	// and the caller retries against the new current value.
	CompareAndSwapNextSub(ctx context.Context, id domain.SubjectID, expected, next int) error
	ListByPortfolio(ctx context.Context, portfolioID domain.PortfolioID) ([]*models.Subject, error)
	// ListPage cursors over all subjects (deleted included) for batch
	// auditing. afterID is the last id of the previous page, empty to start.
	ListPage(ctx context.Context, afterID string, limit int) ([]*models.Subject, error)
	// UpdateGroup rewrites the group number during an audited renumber
	// repair. Never called on the request path.
	UpdateGroup(ctx context.Context, id domain.SubjectID, group int) error
	// Replace overwrites the stored subject. Used only by compensation.
	Replace(ctx context.Context, subject *models.Subject) error
	// Delete removes the row. Used only by compensation of failed inserts.
	Delete(ctx context.Context, id domain.SubjectID) error
}

// RecordStore owns GovernanceRecord rows.
type RecordStore interface {
	Insert(ctx context.Context, record *models.GovernanceRecord) error
	FindByID(ctx context.Context, id domain.RecordID) (*models.GovernanceRecord, error)
	ListBySubject(ctx context.Context, subjectID domain.SubjectID) ([]*models.GovernanceRecord, error)
	CountBySubject(ctx context.Context, subjectID domain.SubjectID) (int, error)
	// UpdateIfStatus writes the record only while the stored status still
	// equals expected. This is the conditional write guarding the
	// draft/finalized/voided transitions against concurrent writers.
	UpdateIfStatus(ctx context.Context, record *models.GovernanceRecord, expected models.RecordStatus) error
	// SetAmendedBy links (or, with nil, clears) the forward amendment
	// pointer. Clearing is the validator's orphan repair.
	SetAmendedBy(ctx context.Context, id domain.RecordID, amendedBy *domain.RecordID) error
	SoftDelete(ctx context.Context, id domain.RecordID, reason string, at time.Time) error
	ListPage(ctx context.Context, afterID string, limit int) ([]*models.GovernanceRecord, error)
	Replace(ctx context.Context, record *models.GovernanceRecord) error
	Delete(ctx context.Context, id domain.RecordID) error
}

// RevisionStore owns GovernanceRevision rows. Revisions are append-only
// apart from the one-shot finalize write; Replace/Delete exist only for
// compensation.
type RevisionStore interface {
	Insert(ctx context.Context, revision *models.GovernanceRevision) error
	FindByID(ctx context.Context, id domain.RevisionID) (*models.GovernanceRevision, error)
	// ListByRecord returns all revisions of a record ordered by version
	// ascending.
	ListByRecord(ctx context.Context, recordID domain.RecordID) ([]*models.GovernanceRevision, error)
	// LatestFinalized returns the chain head, sentinel.ErrNotFound when the
	// record has no finalized revision yet.
	LatestFinalized(ctx context.Context, recordID domain.RecordID) (*models.GovernanceRevision, error)
	// Finalize writes hash and signer metadata only while the stored
	// revision is still unfinalized; a finalized row returns
	// sentinel.ErrAlreadyFinalized and leaves the stored hash untouched.
	Finalize(ctx context.Context, revision *models.GovernanceRevision) error
	Replace(ctx context.Context, revision *models.GovernanceRevision) error
	Delete(ctx context.Context, id domain.RevisionID) error
}

// Stores bundles the three entity stores for wiring.
type Stores struct {
	Subjects  SubjectStore
	Records   RecordStore
	Revisions RevisionStore
}
