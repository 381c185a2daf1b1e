// Package service orchestrates the governance ledger write flows: it
// composes the subject allocator, the revision chain manager and the
// operation log into the multi-entity sequences a single API call
// performs, and owns the denormalized read views.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/allocator"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/chain"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/metrics"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/models"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/oplog"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/store"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/rmid"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain"
	dErrors "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain-errors"
	audit "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/sentinel"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/requestcontext"
)

// AuditPublisher is the slice of the audit pipeline the service needs.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
	List(ctx context.Context, recordID domain.RecordID) ([]audit.Event, error)
}

// SummaryCache caches per-portfolio subject summaries. Implementations
// treat misses and infrastructure failures alike: the caller falls back
// to the store.
type SummaryCache interface {
	Get(ctx context.Context, portfolioID domain.PortfolioID) ([]SubjectSummary, bool)
	Set(ctx context.Context, portfolioID domain.PortfolioID, summaries []SubjectSummary)
	Invalidate(ctx context.Context, portfolioID domain.PortfolioID)
}

// Service is the ledger's public operation surface.
type Service struct {
	stores    *store.Stores
	allocator *allocator.Service
	chain     *chain.Service
	auditor   AuditPublisher
	cache     SummaryCache
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithSummaryCache attaches the portfolio summary cache.
func WithSummaryCache(cache SummaryCache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(stores *store.Stores, alloc *allocator.Service, chainSvc *chain.Service, auditor AuditPublisher, m *metrics.Metrics, opts ...Option) *Service {
	s := &Service{
		stores:    stores,
		allocator: alloc,
		chain:     chainSvc,
		auditor:   auditor,
		metrics:   m,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRecordParams describes one new governance record.
type CreateRecordParams struct {
	PortfolioID    domain.PortfolioID
	Base           string
	Group          int
	Category       models.Category
	Title          string
	PrimaryPartyID string
	ExternalRef    string
	BusinessKey    string
	Payload        models.Payload
	Actor          domain.ActorID
}

// CreateRecordResult is the outcome of a successful create.
type CreateRecordResult struct {
	Record     *models.GovernanceRecord
	Revision   *models.GovernanceRevision
	Subject    *models.Subject
	DisplayID  string
	FirstEntry bool
}

// CreateRecord resolves the subject, allocates the next subnumber and
// writes the draft record with its initial revision. The record and
// revision writes are wrapped by the operation log: on failure whatever
// was written is compensated in reverse and the original error surfaces.
// The allocated subnumber is never returned to the pool; a rolled-back
// create leaves a gap, not a duplicate.
func (s *Service) CreateRecord(ctx context.Context, params CreateRecordParams) (*CreateRecordResult, error) {
	started := time.Now()
	defer func() { s.metrics.ObserveOperation("create_record", time.Since(started)) }()

	subject, err := s.allocator.ResolveOrCreateSubject(ctx, allocator.ResolveParams{
		PortfolioID:    params.PortfolioID,
		Base:           params.Base,
		Group:          params.Group,
		Category:       params.Category,
		Title:          params.Title,
		PrimaryPartyID: params.PrimaryPartyID,
		ExternalRef:    params.ExternalRef,
		Actor:          params.Actor,
	})
	if err != nil {
		return nil, err
	}

	sub, firstEntry, err := s.allocator.AllocateSubnumber(ctx, subject.ID)
	if err != nil {
		return nil, err
	}

	log := oplog.New(store.NewCompensator(*s.stores), s.logger)

	record := &models.GovernanceRecord{
		ID:          domain.NewRecordID(),
		PortfolioID: params.PortfolioID,
		SubjectID:   subject.ID,
		ModuleType:  params.Category,
		RMSub:       sub,
		Status:      models.StatusDraft,
		BusinessKey: params.BusinessKey,
		CreatedBy:   params.Actor,
		CreatedAt:   requestcontext.Now(ctx),
	}
	if err := s.stores.Records.Insert(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "insert record")
	}
	log.RecordInsert(store.CollectionRecords, record.ID.String())

	revision, err := s.chain.CreateInitialRevision(ctx, record.ID, params.Payload, params.Actor)
	if err != nil {
		s.rollback(ctx, log, err)
		return nil, err
	}
	log.RecordInsert(store.CollectionRevisions, revision.ID.String())

	prior := *record
	record.CurrentRevisionID = revision.ID
	if err := s.stores.Records.UpdateIfStatus(ctx, record, models.StatusDraft); err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeInternal, "attach initial revision")
		s.rollback(ctx, log, wrapped)
		return nil, wrapped
	}
	log.RecordUpdate(store.CollectionRecords, record.ID.String(), &prior)

	log.Commit()
	s.invalidateSummaries(ctx, params.PortfolioID)

	displayID := rmid.Format(subject.RMBase, subject.RMGroup, sub)
	s.emit(ctx, audit.Event{
		RecordID:   record.ID,
		RevisionID: &revision.ID,
		Type:       audit.EventCreated,
		ActorID:    params.Actor,
		Meta: map[string]string{
			"display_id": displayID,
			"category":   string(params.Category),
		},
	})

	return &CreateRecordResult{
		Record:     record,
		Revision:   revision,
		Subject:    subject,
		DisplayID:  displayID,
		FirstEntry: firstEntry,
	}, nil
}

// FinalizeRecord locks the record's current revision into the chain and
// moves the record to finalized.
func (s *Service) FinalizeRecord(ctx context.Context, recordID domain.RecordID, signer domain.ActorID) (*models.GovernanceRecord, error) {
	started := time.Now()
	defer func() { s.metrics.ObserveOperation("finalize_record", time.Since(started)) }()

	record, err := s.chain.FinalizeRecord(ctx, recordID, signer)
	if err != nil {
		return nil, err
	}
	s.invalidateSummaries(ctx, record.PortfolioID)
	return record, nil
}

// ReviseRecord appends a draft amendment revision against the record's
// latest finalized revision. The new revision joins the chain when it is
// finalized; a concurrent finalize of another amendment surfaces there as
// ParentMismatch.
func (s *Service) ReviseRecord(ctx context.Context, recordID domain.RecordID, payload models.Payload, changeReason string, actor domain.ActorID) (*models.GovernanceRevision, error) {
	started := time.Now()
	defer func() { s.metrics.ObserveOperation("revise_record", time.Since(started)) }()

	head, err := s.stores.Revisions.LatestFinalized(ctx, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeValidation, "record has no finalized revision to amend")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load chain head")
	}
	return s.chain.CreateAmendmentRevision(ctx, recordID, head.ID, payload, actor, changeReason)
}

// FinalizeRevision locks one revision into the chain.
func (s *Service) FinalizeRevision(ctx context.Context, revisionID domain.RevisionID, signer domain.ActorID) (*models.GovernanceRevision, error) {
	started := time.Now()
	defer func() { s.metrics.ObserveOperation("finalize_revision", time.Since(started)) }()

	return s.chain.FinalizeRevision(ctx, revisionID, signer)
}

// AmendRecordParams describes superseding a finalized record.
type AmendRecordParams struct {
	RecordID     domain.RecordID
	Payload      models.Payload
	ChangeReason string
	Actor        domain.ActorID
}

// AmendRecord supersedes a finalized record with a new draft record on
// the same subject. The predecessor stays finalized and gains a forward
// amendment link; the successor gets its own subnumber and starts a fresh
// revision chain. The whole sequence is compensated on failure, except
// the subnumber, which is spent either way.
func (s *Service) AmendRecord(ctx context.Context, params AmendRecordParams) (*CreateRecordResult, error) {
	started := time.Now()
	defer func() { s.metrics.ObserveOperation("amend_record", time.Since(started)) }()

	if params.ChangeReason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "amendment requires a change reason")
	}

	predecessor, err := s.loadRecord(ctx, params.RecordID)
	if err != nil {
		return nil, err
	}
	if predecessor.Status != models.StatusFinalized {
		return nil, dErrors.Newf(dErrors.CodeValidation, "record is %s, amendment requires finalized", predecessor.Status)
	}
	if predecessor.AmendedByID != nil {
		return nil, dErrors.New(dErrors.CodeConflict, "record is already amended")
	}

	subject, err := s.stores.Subjects.FindByID(ctx, predecessor.SubjectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load subject")
	}

	sub, _, err := s.allocator.AllocateSubnumber(ctx, subject.ID)
	if err != nil {
		return nil, err
	}

	log := oplog.New(store.NewCompensator(*s.stores), s.logger)

	successor := &models.GovernanceRecord{
		ID:          domain.NewRecordID(),
		PortfolioID: predecessor.PortfolioID,
		SubjectID:   predecessor.SubjectID,
		ModuleType:  predecessor.ModuleType,
		RMSub:       sub,
		Status:      models.StatusDraft,
		BusinessKey: predecessor.BusinessKey,
		CreatedBy:   params.Actor,
		CreatedAt:   requestcontext.Now(ctx),
	}
	if err := s.stores.Records.Insert(ctx, successor); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "insert successor record")
	}
	log.RecordInsert(store.CollectionRecords, successor.ID.String())

	revision, err := s.chain.CreateInitialRevision(ctx, successor.ID, params.Payload, params.Actor)
	if err != nil {
		s.rollback(ctx, log, err)
		return nil, err
	}
	log.RecordInsert(store.CollectionRevisions, revision.ID.String())

	prior := *successor
	successor.CurrentRevisionID = revision.ID
	if err := s.stores.Records.UpdateIfStatus(ctx, successor, models.StatusDraft); err != nil {
		wrapped := dErrors.Wrap(err, dErrors.CodeInternal, "attach initial revision")
		s.rollback(ctx, log, wrapped)
		return nil, wrapped
	}
	log.RecordUpdate(store.CollectionRecords, successor.ID.String(), &prior)

	priorPredecessor := *predecessor
	if err := s.chain.LinkAmendment(ctx, predecessor.ID, successor.ID, params.Actor); err != nil {
		s.rollback(ctx, log, err)
		return nil, err
	}
	log.RecordUpdate(store.CollectionRecords, predecessor.ID.String(), &priorPredecessor)

	log.Commit()
	s.invalidateSummaries(ctx, predecessor.PortfolioID)

	displayID := rmid.Format(subject.RMBase, subject.RMGroup, sub)
	s.emit(ctx, audit.Event{
		RecordID:   successor.ID,
		RevisionID: &revision.ID,
		Type:       audit.EventCreated,
		ActorID:    params.Actor,
		Meta: map[string]string{
			"display_id":    displayID,
			"amends":        predecessor.ID.String(),
			"change_reason": params.ChangeReason,
		},
	})

	return &CreateRecordResult{
		Record:    successor,
		Revision:  revision,
		Subject:   subject,
		DisplayID: displayID,
	}, nil
}

// VoidRecord moves a record to the terminal voided state.
func (s *Service) VoidRecord(ctx context.Context, recordID domain.RecordID, reason string, actor domain.ActorID) (*models.GovernanceRecord, error) {
	started := time.Now()
	defer func() { s.metrics.ObserveOperation("void_record", time.Since(started)) }()

	record, err := s.chain.VoidRecord(ctx, recordID, reason, actor)
	if err != nil {
		return nil, err
	}
	s.invalidateSummaries(ctx, record.PortfolioID)
	return record, nil
}

func (s *Service) loadRecord(ctx context.Context, id domain.RecordID) (*models.GovernanceRecord, error) {
	record, err := s.stores.Records.FindByID(ctx, id)
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

// rollback compensates the recorded writes. Its own failure is logged and
// never masks the original error.
func (s *Service) rollback(ctx context.Context, log *oplog.Log, cause error) {
	if rbErr := log.Rollback(ctx); rbErr != nil {
		s.logger.ErrorContext(ctx, "rollback incomplete, validator reconciliation required",
			"cause", cause,
			"rollback_error", rbErr,
		)
	}
}

func (s *Service) invalidateSummaries(ctx context.Context, portfolioID domain.PortfolioID) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, portfolioID)
	}
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	event.At = requestcontext.Now(ctx)
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed",
			"event_type", string(event.Type),
			"record_id", event.RecordID.String(),
			"error", err,
		)
	}
}
