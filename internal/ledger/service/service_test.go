package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/allocator"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/chain"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/models"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/store"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain"
	dErrors "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain-errors"
	audit "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit"
	auditmem "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit/store/memory"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit/publisher"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite

	ctx       context.Context
	stores    *store.Stores
	events    *auditmem.InMemoryStore
	service   *Service
	actor     domain.ActorID
	portfolio domain.PortfolioID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(),
		time.Date(2026, 8, 20, 16, 45, 0, 0, time.UTC))
	s.stores = store.NewMemoryStores()
	s.events = auditmem.NewInMemoryStore()
	s.actor = domain.ActorID(uuid.New())
	s.portfolio = domain.PortfolioID(uuid.New())
	s.service = s.buildService(s.stores)
}

func (s *ServiceSuite) buildService(stores *store.Stores) *Service {
	auditor := publisher.NewPublisher(s.events)
	alloc := allocator.NewService(stores.Subjects, auditor, nil,
		allocator.WithRetryPolicy(3, time.Millisecond))
	chainSvc := chain.NewService(stores.Records, stores.Revisions, auditor, nil)
	return NewService(stores, alloc, chainSvc, auditor, nil)
}

func (s *ServiceSuite) createParams() CreateRecordParams {
	return CreateRecordParams{
		PortfolioID: s.portfolio,
		Base:        "RF743916765US",
		Group:       33,
		Category:    models.CategoryTrusteeCompensation,
		Title:       "Comp - J. Doe",
		Payload:     models.Payload{"period": "2026-Q1", "amount": 4200},
		Actor:       s.actor,
	}
}

func (s *ServiceSuite) eventTypes(recordID domain.RecordID) []audit.EventType {
	events, err := s.events.ListByRecord(s.ctx, recordID)
	s.Require().NoError(err)
	types := make([]audit.EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

func (s *ServiceSuite) TestFirstAllocationScenario() {
	first, err := s.service.CreateRecord(s.ctx, s.createParams())
	s.Require().NoError(err)
	s.Equal("RF743916765US-33.001", first.DisplayID)
	s.True(first.FirstEntry)
	s.Equal(models.StatusDraft, first.Record.Status)
	s.Equal(first.Revision.ID, first.Record.CurrentRevisionID)
	s.Equal(1, first.Revision.Version)

	second, err := s.service.CreateRecord(s.ctx, s.createParams())
	s.Require().NoError(err)
	s.Equal("RF743916765US-33.002", second.DisplayID)
	s.False(second.FirstEntry)
	s.Equal(first.Subject.ID, second.Subject.ID)

	s.Contains(s.eventTypes(first.Record.ID), audit.EventCreated)
}

func (s *ServiceSuite) TestCreateRollsBackOnRevisionFailure() {
	stores := store.NewMemoryStores()
	failing := &failingRevisions{RevisionStore: stores.Revisions}
	stores.Revisions = failing
	svc := s.buildService(stores)

	_, err := svc.CreateRecord(s.ctx, s.createParams())
	s.Require().Error(err)

	// The draft record insert was compensated.
	page, listErr := stores.Records.ListPage(s.ctx, "", 10)
	s.Require().NoError(listErr)
	s.Empty(page)

	// The subnumber is spent regardless: the next create gets .002.
	failing.healthy = true
	result, err := svc.CreateRecord(s.ctx, s.createParams())
	s.Require().NoError(err)
	s.Equal("RF743916765US-33.002", result.DisplayID)
}

func (s *ServiceSuite) TestFinalizeAndRevise() {
	created, err := s.service.CreateRecord(s.ctx, s.createParams())
	s.Require().NoError(err)

	finalized, err := s.service.FinalizeRecord(s.ctx, created.Record.ID, s.actor)
	s.Require().NoError(err)
	s.Equal(models.StatusFinalized, finalized.Status)

	rev2, err := s.service.ReviseRecord(s.ctx, created.Record.ID,
		models.Payload{"period": "2026-Q1", "amount": 4500}, "amount corrected", s.actor)
	s.Require().NoError(err)
	s.Equal(2, rev2.Version)

	head2, err := s.service.FinalizeRevision(s.ctx, rev2.ID, s.actor)
	s.Require().NoError(err)

	history, err := s.service.RevisionHistory(s.ctx, created.Record.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(1, history[0].Version)
	s.Equal(2, history[1].Version)
	s.Equal(history[0].ContentHash, head2.ParentHash)
}

func (s *ServiceSuite) TestReviseRequiresFinalizedHead() {
	created, err := s.service.CreateRecord(s.ctx, s.createParams())
	s.Require().NoError(err)

	_, err = s.service.ReviseRecord(s.ctx, created.Record.ID, models.Payload{}, "too early", s.actor)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestAmendRecord() {
	created, err := s.service.CreateRecord(s.ctx, s.createParams())
	s.Require().NoError(err)
	_, err = s.service.FinalizeRecord(s.ctx, created.Record.ID, s.actor)
	s.Require().NoError(err)

	amended, err := s.service.AmendRecord(s.ctx, AmendRecordParams{
		RecordID:     created.Record.ID,
		Payload:      models.Payload{"period": "2026-Q1", "amount": 4800},
		ChangeReason: "recalculated",
		Actor:        s.actor,
	})
	s.Require().NoError(err)
	s.Equal("RF743916765US-33.002", amended.DisplayID)
	s.Equal(models.StatusDraft, amended.Record.Status)

	predecessor, err := s.stores.Records.FindByID(s.ctx, created.Record.ID)
	s.Require().NoError(err)
	s.Require().NotNil(predecessor.AmendedByID)
	s.Equal(amended.Record.ID, *predecessor.AmendedByID)

	s.Run("a record is amended once", func() {
		_, err := s.service.AmendRecord(s.ctx, AmendRecordParams{
			RecordID:     created.Record.ID,
			Payload:      models.Payload{},
			ChangeReason: "again",
			Actor:        s.actor,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("draft cannot be amended", func() {
		_, err := s.service.AmendRecord(s.ctx, AmendRecordParams{
			RecordID:     amended.Record.ID,
			Payload:      models.Payload{},
			ChangeReason: "premature",
			Actor:        s.actor,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestVoidRecord() {
	created, err := s.service.CreateRecord(s.ctx, s.createParams())
	s.Require().NoError(err)

	voided, err := s.service.VoidRecord(s.ctx, created.Record.ID, "entered in error", s.actor)
	s.Require().NoError(err)
	s.Equal(models.StatusVoided, voided.Status)

	s.Contains(s.eventTypes(created.Record.ID), audit.EventVoided)
}

func (s *ServiceSuite) TestSubjectSummaries() {
	first, err := s.service.CreateRecord(s.ctx, s.createParams())
	s.Require().NoError(err)
	_, err = s.service.CreateRecord(s.ctx, s.createParams())
	s.Require().NoError(err)

	other := s.createParams()
	other.Group = 40
	other.Category = models.CategoryMinutes
	other.Title = "Annual meeting minutes"
	_, err = s.service.CreateRecord(s.ctx, other)
	s.Require().NoError(err)

	summaries, err := s.service.SubjectSummaries(s.ctx, s.portfolio)
	s.Require().NoError(err)
	s.Require().Len(summaries, 2)

	byID := make(map[string]SubjectSummary, len(summaries))
	for _, summary := range summaries {
		byID[summary.SubjectID] = summary
	}
	compSummary := byID[first.Subject.ID.String()]
	s.Equal(2, compSummary.RecordCount)
	s.Equal("RF743916765US-33.003", compSummary.RMIDPreview)
}

func (s *ServiceSuite) TestSummariesServedFromCache() {
	cache := &fakeCache{entries: map[string][]SubjectSummary{}}
	svc := s.buildService(s.stores)
	svc.cache = cache

	_, err := svc.CreateRecord(s.ctx, s.createParams())
	s.Require().NoError(err)
	s.Equal(1, cache.invalidations, "create invalidates the portfolio")

	first, err := svc.SubjectSummaries(s.ctx, s.portfolio)
	s.Require().NoError(err)
	s.Equal(1, cache.misses)

	second, err := svc.SubjectSummaries(s.ctx, s.portfolio)
	s.Require().NoError(err)
	s.Equal(1, cache.hits)
	s.Equal(first, second)
}

func (s *ServiceSuite) TestRecordDetail() {
	created, err := s.service.CreateRecord(s.ctx, s.createParams())
	s.Require().NoError(err)

	detail, err := s.service.RecordDetail(s.ctx, created.Record.ID)
	s.Require().NoError(err)
	s.Equal("RF743916765US-33.001", detail.DisplayID)
	s.Equal(created.Record.ID, detail.Record.ID)

	_, err = s.service.RecordDetail(s.ctx, domain.NewRecordID())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestAuditTrail() {
	created, err := s.service.CreateRecord(s.ctx, s.createParams())
	s.Require().NoError(err)
	_, err = s.service.FinalizeRecord(s.ctx, created.Record.ID, s.actor)
	s.Require().NoError(err)

	trail, err := s.service.AuditTrail(s.ctx, created.Record.ID)
	s.Require().NoError(err)
	s.Require().Len(trail, 2)
	types := []audit.EventType{trail[0].Type, trail[1].Type}
	s.Contains(types, audit.EventCreated)
	s.Contains(types, audit.EventFinalized)
}

// failingRevisions rejects inserts until flipped healthy.
type failingRevisions struct {
	store.RevisionStore
	healthy bool
}

func (f *failingRevisions) Insert(ctx context.Context, revision *models.GovernanceRevision) error {
	if !f.healthy {
		return context.DeadlineExceeded
	}
	return f.RevisionStore.Insert(ctx, revision)
}

// fakeCache records hits, misses and invalidations.
type fakeCache struct {
	entries       map[string][]SubjectSummary
	hits, misses  int
	invalidations int
}

func (c *fakeCache) Get(_ context.Context, portfolioID domain.PortfolioID) ([]SubjectSummary, bool) {
	cached, ok := c.entries[portfolioID.String()]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return cached, ok
}

func (c *fakeCache) Set(_ context.Context, portfolioID domain.PortfolioID, summaries []SubjectSummary) {
	c.entries[portfolioID.String()] = summaries
}

func (c *fakeCache) Invalidate(_ context.Context, portfolioID domain.PortfolioID) {
	delete(c.entries, portfolioID.String())
	c.invalidations++
}
