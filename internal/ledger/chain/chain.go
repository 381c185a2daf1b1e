// Package chain manages the hash-chained revision history of governance
// records and the record lifecycle state machine.
//
// Finalized revisions form a tamper-evident chain: each revision's
// ParentHash must equal the ContentHash of the previous finalized revision
// of the same record. Hashes are computed only at finalize time, over the
// canonical serialization of the payload plus creation metadata, so a
// draft's mutable payload is never hashed. The only state transitions are
// draft to finalized, draft to voided and finalized to voided; nothing
// leaves voided.
package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/metrics"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/models"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/store"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain"
	dErrors "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain-errors"
	audit "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/canonical"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/sentinel"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/requestcontext"
)

// AuditPublisher is the slice of the audit pipeline the chain manager needs.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service manages revisions and record state transitions.
type Service struct {
	records   store.RecordStore
	revisions store.RevisionStore
	auditor   AuditPublisher
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

func NewService(records store.RecordStore, revisions store.RevisionStore, auditor AuditPublisher, m *metrics.Metrics) *Service {
	return &Service{
		records:   records,
		revisions: revisions,
		auditor:   auditor,
		metrics:   m,
		tracer:    otel.Tracer("ledger/chain"),
	}
}

// ContentHash computes the tamper-evidence hash of a revision: SHA-256
// over the canonical serialization of the payload together with creation
// metadata, version and parent hash. The serialization is byte-for-byte
// deterministic, so any two processes hashing the same revision agree.
func ContentHash(rev *models.GovernanceRevision) (string, error) {
	payload, err := canonical.Normalize(map[string]any(rev.Payload))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeValidation, "payload is not canonically serializable")
	}
	material, err := canonical.Marshal(map[string]any{
		"payload":     payload,
		"created_at":  rev.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000000Z07:00"),
		"created_by":  rev.CreatedBy.String(),
		"version":     rev.Version,
		"parent_hash": rev.ParentHash,
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "serialize hash material")
	}
	sum := sha256.Sum256(material)
	return hex.EncodeToString(sum[:]), nil
}

// CreateInitialRevision appends version 1 of a record's history. The
// revision starts as an unhashed draft with an empty parent hash.
func (s *Service) CreateInitialRevision(ctx context.Context, recordID domain.RecordID, payload models.Payload, author domain.ActorID) (*models.GovernanceRevision, error) {
	ctx, span := s.tracer.Start(ctx, "chain.CreateInitialRevision",
		trace.WithAttributes(attribute.String("record.id", recordID.String())))
	defer span.End()

	record, err := s.loadRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.Status != models.StatusDraft {
		return nil, dErrors.Newf(dErrors.CodeValidation, "record is %s, initial revision requires draft", record.Status)
	}

	rev := &models.GovernanceRevision{
		ID:        domain.NewRevisionID(),
		RecordID:  recordID,
		Version:   1,
		Payload:   payload.Clone(),
		CreatedBy: author,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := s.insertRevision(ctx, rev); err != nil {
		return nil, err
	}
	return rev, nil
}

// CreateAmendmentRevision appends version prior.Version+1 against a
// finalized prior revision, inheriting its content hash as the parent
// hash. The link is provisional until finalize, where it is re-validated
// against the chain head at commit time.
func (s *Service) CreateAmendmentRevision(ctx context.Context, recordID domain.RecordID, priorRevisionID domain.RevisionID, payload models.Payload, author domain.ActorID, changeReason string) (*models.GovernanceRevision, error) {
	ctx, span := s.tracer.Start(ctx, "chain.CreateAmendmentRevision",
		trace.WithAttributes(attribute.String("record.id", recordID.String())))
	defer span.End()

	if changeReason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "amendment requires a change reason")
	}

	record, err := s.loadRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.Status == models.StatusVoided {
		return nil, dErrors.New(dErrors.CodeValidation, "voided records cannot be amended")
	}

	prior, err := s.loadRevision(ctx, priorRevisionID)
	if err != nil {
		return nil, err
	}
	if prior.RecordID != recordID {
		return nil, dErrors.New(dErrors.CodeValidation, "prior revision belongs to a different record")
	}
	if !prior.Finalized() {
		return nil, dErrors.New(dErrors.CodeValidation, "prior revision is not finalized")
	}

	rev := &models.GovernanceRevision{
		ID:           domain.NewRevisionID(),
		RecordID:     recordID,
		Version:      prior.Version + 1,
		Payload:      payload.Clone(),
		ParentHash:   prior.ContentHash,
		ChangeReason: changeReason,
		CreatedBy:    author,
		CreatedAt:    requestcontext.Now(ctx),
	}
	if err := s.insertRevision(ctx, rev); err != nil {
		return nil, err
	}

	s.emit(ctx, audit.Event{
		RecordID:   recordID,
		RevisionID: &rev.ID,
		Type:       audit.EventAmended,
		ActorID:    author,
		Meta: map[string]string{
			"version":       strconv.Itoa(rev.Version),
			"change_reason": changeReason,
		},
	})
	return rev, nil
}

// FinalizeRevision computes the content hash and locks the revision into
// the chain. Finalize is terminal: a second call fails with
// AlreadyFinalized and leaves the stored hash untouched. A revision whose
// parent hash no longer matches the chain head at commit time lost an
// amendment race and fails with ParentMismatch; the caller must restart
// its amendment against the new head.
func (s *Service) FinalizeRevision(ctx context.Context, revisionID domain.RevisionID, signer domain.ActorID) (*models.GovernanceRevision, error) {
	ctx, span := s.tracer.Start(ctx, "chain.FinalizeRevision",
		trace.WithAttributes(attribute.String("revision.id", revisionID.String())))
	defer span.End()

	rev, err := s.loadRevision(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	if rev.Finalized() {
		s.metrics.RecordFinalize("already_finalized")
		return nil, dErrors.New(dErrors.CodeAlreadyFinalized, "revision is already finalized")
	}

	if err := s.checkHead(ctx, rev); err != nil {
		s.metrics.RecordFinalize("parent_mismatch")
		return nil, err
	}

	hash, err := ContentHash(rev)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	rev.ContentHash = hash
	rev.FinalizedAt = &now
	rev.FinalizedBy = &signer

	err = s.revisions.Finalize(ctx, rev)
	switch {
	case err == nil:
	case errors.Is(err, sentinel.ErrAlreadyFinalized):
		// Lost the finalize race. Terminal, never retried past.
		s.metrics.RecordFinalize("already_finalized")
		return nil, dErrors.New(dErrors.CodeAlreadyFinalized, "revision was finalized concurrently")
	case errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.New(dErrors.CodeNotFound, "revision not found")
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "finalize revision")
	}

	s.metrics.RecordFinalize("finalized")
	s.advanceRecordHead(ctx, rev)
	s.emit(ctx, audit.Event{
		RecordID:   rev.RecordID,
		RevisionID: &rev.ID,
		Type:       audit.EventFinalized,
		ActorID:    signer,
		Meta: map[string]string{
			"version":      strconv.Itoa(rev.Version),
			"content_hash": rev.ContentHash,
		},
	})
	return rev, nil
}

// FinalizeRecord finalizes the record's current revision and moves the
// record from draft to finalized in one operation.
func (s *Service) FinalizeRecord(ctx context.Context, recordID domain.RecordID, signer domain.ActorID) (*models.GovernanceRecord, error) {
	ctx, span := s.tracer.Start(ctx, "chain.FinalizeRecord",
		trace.WithAttributes(attribute.String("record.id", recordID.String())))
	defer span.End()

	record, err := s.loadRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	switch record.Status {
	case models.StatusDraft:
	case models.StatusFinalized:
		return nil, dErrors.New(dErrors.CodeAlreadyFinalized, "record is already finalized")
	default:
		return nil, dErrors.Newf(dErrors.CodeValidation, "record is %s, finalize requires draft", record.Status)
	}
	if record.CurrentRevisionID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "record has no current revision")
	}

	if _, err := s.FinalizeRevision(ctx, record.CurrentRevisionID, signer); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	record.Status = models.StatusFinalized
	record.FinalizedAt = &now
	record.FinalizedBy = &signer

	err = s.records.UpdateIfStatus(ctx, record, models.StatusDraft)
	switch {
	case err == nil:
		return record, nil
	case errors.Is(err, sentinel.ErrConflict):
		// The revision is locked but the record moved under us, most
		// likely a concurrent finalize that won the status write.
		return nil, dErrors.New(dErrors.CodeAlreadyFinalized, "record was finalized concurrently")
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "mark record finalized")
	}
}

// VoidRecord moves a draft or finalized record to the terminal voided
// state. Revisions are preserved. A reason is mandatory.
func (s *Service) VoidRecord(ctx context.Context, recordID domain.RecordID, reason string, actor domain.ActorID) (*models.GovernanceRecord, error) {
	ctx, span := s.tracer.Start(ctx, "chain.VoidRecord",
		trace.WithAttributes(attribute.String("record.id", recordID.String())))
	defer span.End()

	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "void requires a reason")
	}

	record, err := s.loadRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.Status == models.StatusVoided {
		return nil, dErrors.New(dErrors.CodeValidation, "record is already voided")
	}
	expected := record.Status

	now := requestcontext.Now(ctx)
	record.Status = models.StatusVoided
	record.VoidedAt = &now
	record.VoidReason = reason

	err = s.records.UpdateIfStatus(ctx, record, expected)
	switch {
	case err == nil:
	case errors.Is(err, sentinel.ErrConflict):
		return nil, dErrors.New(dErrors.CodeConflict, "record has changed, please refresh")
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "mark record voided")
	}

	s.emit(ctx, audit.Event{
		RecordID: recordID,
		Type:     audit.EventVoided,
		ActorID:  actor,
		Meta:     map[string]string{"reason": reason},
	})
	return record, nil
}

// LinkAmendment sets the predecessor's forward amendment pointer to its
// successor. Only finalized, unamended records can be superseded, and the
// target must not be voided at link time.
func (s *Service) LinkAmendment(ctx context.Context, predecessorID, successorID domain.RecordID, actor domain.ActorID) error {
	ctx, span := s.tracer.Start(ctx, "chain.LinkAmendment",
		trace.WithAttributes(
			attribute.String("record.id", predecessorID.String()),
			attribute.String("successor.id", successorID.String()),
		))
	defer span.End()

	predecessor, err := s.loadRecord(ctx, predecessorID)
	if err != nil {
		return err
	}
	if predecessor.Status != models.StatusFinalized {
		return dErrors.Newf(dErrors.CodeValidation, "record is %s, amendment requires finalized", predecessor.Status)
	}
	if predecessor.AmendedByID != nil {
		return dErrors.New(dErrors.CodeConflict, "record is already amended")
	}

	successor, err := s.loadRecord(ctx, successorID)
	if err != nil {
		return err
	}
	if successor.Status == models.StatusVoided {
		return dErrors.New(dErrors.CodeValidation, "amendment target is voided")
	}

	if err := s.records.SetAmendedBy(ctx, predecessorID, &successorID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "link amendment")
	}

	s.emit(ctx, audit.Event{
		RecordID: predecessorID,
		Type:     audit.EventAmended,
		ActorID:  actor,
		Meta:     map[string]string{"amended_by": successorID.String()},
	})
	return nil
}

// checkHead validates the revision's parent link against the chain head
// as stored right now. Version 1 requires an empty chain.
func (s *Service) checkHead(ctx context.Context, rev *models.GovernanceRevision) error {
	head, err := s.revisions.LatestFinalized(ctx, rev.RecordID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		if rev.Version != 1 || rev.ParentHash != "" {
			return dErrors.New(dErrors.CodeParentMismatch, "chain head is gone, amendment has no parent")
		}
		return nil
	case err != nil:
		return dErrors.Wrap(err, dErrors.CodeInternal, "load chain head")
	}
	if rev.Version != head.Version+1 || rev.ParentHash != head.ContentHash {
		return dErrors.Newf(dErrors.CodeParentMismatch,
			"chain head moved to version %d, restart the amendment against it", head.Version)
	}
	return nil
}

// advanceRecordHead points the record at its newly finalized revision.
// Best effort: losing to a concurrent void leaves the pointer for the
// validator to reconcile.
func (s *Service) advanceRecordHead(ctx context.Context, rev *models.GovernanceRevision) {
	record, err := s.records.FindByID(ctx, rev.RecordID)
	if err != nil || record.CurrentRevisionID == rev.ID {
		return
	}
	record.CurrentRevisionID = rev.ID
	_ = s.records.UpdateIfStatus(ctx, record, record.Status)
}

func (s *Service) loadRecord(ctx context.Context, id domain.RecordID) (*models.GovernanceRecord, error) {
	record, err := s.records.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load record")
	}
	if record.Deleted() {
		return nil, dErrors.New(dErrors.CodeNotFound, "record is deleted")
	}
	return record, nil
}

func (s *Service) loadRevision(ctx context.Context, id domain.RevisionID) (*models.GovernanceRevision, error) {
	rev, err := s.revisions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "revision not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load revision")
	}
	return rev, nil
}

func (s *Service) insertRevision(ctx context.Context, rev *models.GovernanceRevision) error {
	err := s.revisions.Insert(ctx, rev)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Newf(dErrors.CodeConflict, "version %d already exists for this record", rev.Version)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "insert revision")
	}
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	event.At = requestcontext.Now(ctx)
	_ = s.auditor.Emit(ctx, event)
}

