package allocator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/models"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/store"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/rmid"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain"
	dErrors "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain-errors"
	audit "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit"
	auditmem "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit/store/memory"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit/publisher"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/sentinel"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/requestcontext"
)

type AllocatorSuite struct {
	suite.Suite

	ctx      context.Context
	stores   *store.Stores
	events   *auditmem.InMemoryStore
	service  *Service
	actor    domain.ActorID
	baseTime time.Time
}

func TestAllocatorSuite(t *testing.T) {
	suite.Run(t, new(AllocatorSuite))
}

func (s *AllocatorSuite) SetupTest() {
	s.baseTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.baseTime)
	s.stores = store.NewMemoryStores()
	s.events = auditmem.NewInMemoryStore()
	s.actor = domain.ActorID(uuid.New())
	s.service = NewService(
		s.stores.Subjects,
		publisher.NewPublisher(s.events),
		nil,
		WithRetryPolicy(3, time.Millisecond),
	)
}

func (s *AllocatorSuite) params() ResolveParams {
	return ResolveParams{
		PortfolioID: domain.PortfolioID(uuid.New()),
		Base:        "RF743916765US",
		Group:       33,
		Category:    models.CategoryMinutes,
		Title:       "Meeting minutes thread",
		Actor:       s.actor,
	}
}

func (s *AllocatorSuite) TestResolveCreatesSubject() {
	subject, err := s.service.ResolveOrCreateSubject(s.ctx, s.params())
	s.Require().NoError(err)

	s.Equal("RF743916765US", subject.RMBase)
	s.Equal(33, subject.RMGroup)
	s.Equal(1, subject.NextSub)
	s.False(subject.ID.IsNil())

	events, err := s.events.ListRecent(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(audit.EventAllocated, events[0].Type)
	s.Equal(s.baseTime, events[0].At)
	s.Equal(subject.ID.String(), events[0].Meta["subject_id"])
	s.Equal("RF743916765US-33.001", events[0].Meta["rm_id"])
}

func (s *AllocatorSuite) TestResolveReturnsExistingSubject() {
	params := s.params()

	first, err := s.service.ResolveOrCreateSubject(s.ctx, params)
	s.Require().NoError(err)

	second, err := s.service.ResolveOrCreateSubject(s.ctx, params)
	s.Require().NoError(err)
	s.Equal(first.ID, second.ID)

	// Only the creation is audited, not subsequent lookups.
	events, err := s.events.ListRecent(s.ctx, 10)
	s.Require().NoError(err)
	s.Len(events, 1)
}

func (s *AllocatorSuite) TestResolveValidation() {
	tests := []struct {
		name   string
		mutate func(*ResolveParams)
	}{
		{"group below range", func(p *ResolveParams) { p.Group = 0 }},
		{"group above range", func(p *ResolveParams) { p.Group = 100 }},
		{"empty base", func(p *ResolveParams) { p.Base = "" }},
		{"base with dash", func(p *ResolveParams) { p.Base = "RF-743" }},
		{"unknown category", func(p *ResolveParams) { p.Category = "ceremonies" }},
		{"missing actor", func(p *ResolveParams) { p.Actor = domain.ActorID{} }},
		{"missing portfolio", func(p *ResolveParams) { p.PortfolioID = domain.PortfolioID{} }},
	}

	for _, tc := range tests {
		s.Run(tc.name, func() {
			params := s.params()
			tc.mutate(&params)
			_, err := s.service.ResolveOrCreateSubject(s.ctx, params)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), "want validation error, got %v", err)
		})
	}
}

func (s *AllocatorSuite) TestResolveCategoryMismatch() {
	params := s.params()
	_, err := s.service.ResolveOrCreateSubject(s.ctx, params)
	s.Require().NoError(err)

	params.Category = models.CategoryDispute
	_, err = s.service.ResolveOrCreateSubject(s.ctx, params)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *AllocatorSuite) TestResolveConcurrentSingleWinner() {
	params := s.params()

	const callers = 20
	ids := make([]domain.SubjectID, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			subject, err := s.service.ResolveOrCreateSubject(s.ctx, params)
			s.NoError(err)
			if subject != nil {
				ids[i] = subject.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		s.Equal(ids[0], ids[i], "all callers must observe the same subject")
	}

	subjects, err := s.stores.Subjects.ListByPortfolio(s.ctx, params.PortfolioID)
	s.Require().NoError(err)
	s.Len(subjects, 1)
}

func (s *AllocatorSuite) TestAllocateSequential() {
	subject, err := s.service.ResolveOrCreateSubject(s.ctx, s.params())
	s.Require().NoError(err)

	for want := 1; want <= 3; want++ {
		sub, firstEntry, err := s.service.AllocateSubnumber(s.ctx, subject.ID)
		s.Require().NoError(err)
		s.Equal(want, sub)
		s.Equal(want == 1, firstEntry)
	}

	reloaded, err := s.stores.Subjects.FindByID(s.ctx, subject.ID)
	s.Require().NoError(err)
	s.Equal(4, reloaded.NextSub)
}

func (s *AllocatorSuite) TestAllocateConcurrentDistinctConsecutive() {
	subject, err := s.service.ResolveOrCreateSubject(s.ctx, s.params())
	s.Require().NoError(err)

	// The in-memory CAS never starves, so per-goroutine retries stay
	// inside the bound as long as the policy allows enough attempts for
	// the contention level.
	contended := NewService(s.stores.Subjects, nil, nil, WithRetryPolicy(100, time.Microsecond))

	const callers = 50
	subs := make([]int, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			sub, _, err := contended.AllocateSubnumber(s.ctx, subject.ID)
			s.NoError(err)
			subs[i] = sub
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool, callers)
	for _, sub := range subs {
		s.False(seen[sub], "subnumber %d issued twice", sub)
		s.GreaterOrEqual(sub, 1)
		s.LessOrEqual(sub, callers)
		seen[sub] = true
	}
	s.Len(seen, callers)

	reloaded, err := s.stores.Subjects.FindByID(s.ctx, subject.ID)
	s.Require().NoError(err)
	s.Equal(callers+1, reloaded.NextSub)
}

func (s *AllocatorSuite) TestAllocateUnknownSubject() {
	_, _, err := s.service.AllocateSubnumber(s.ctx, domain.NewSubjectID())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *AllocatorSuite) TestAllocateDeletedSubject() {
	subject, err := s.service.ResolveOrCreateSubject(s.ctx, s.params())
	s.Require().NoError(err)
	s.Require().NoError(s.stores.Subjects.Delete(s.ctx, subject.ID))

	_, _, err = s.service.AllocateSubnumber(s.ctx, subject.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *AllocatorSuite) TestAllocateRangeExhausted() {
	subject, err := s.service.ResolveOrCreateSubject(s.ctx, s.params())
	s.Require().NoError(err)

	subject.NextSub = rmid.SubMax + 1
	s.Require().NoError(s.stores.Subjects.Replace(s.ctx, subject))

	_, _, err = s.service.AllocateSubnumber(s.ctx, subject.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *AllocatorSuite) TestAllocateRetriesExhausted() {
	subject, err := s.service.ResolveOrCreateSubject(s.ctx, s.params())
	s.Require().NoError(err)

	losing := NewService(
		&alwaysConflicting{SubjectStore: s.stores.Subjects},
		nil, nil,
		WithRetryPolicy(3, time.Microsecond),
	)

	_, _, err = losing.AllocateSubnumber(s.ctx, subject.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeAllocationExhausted))
	s.True(dErrors.Retryable(err))
	s.False(dErrors.HasCode(err, dErrors.CodeInternal))

	// Losing every race must not advance the counter.
	reloaded, err := s.stores.Subjects.FindByID(s.ctx, subject.ID)
	s.Require().NoError(err)
	s.Equal(1, reloaded.NextSub)
}

func (s *AllocatorSuite) TestAllocateCancelledDuringBackoff() {
	subject, err := s.service.ResolveOrCreateSubject(s.ctx, s.params())
	s.Require().NoError(err)

	losing := NewService(
		&alwaysConflicting{SubjectStore: s.stores.Subjects},
		nil, nil,
		WithRetryPolicy(3, time.Hour),
	)

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() {
		_, _, err := losing.AllocateSubnumber(ctx, subject.ID)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	case <-time.After(5 * time.Second):
		s.Fail("allocation did not observe cancellation")
	}
}

// alwaysConflicting simulates a counter that moves under the caller on
// every attempt.
type alwaysConflicting struct {
	store.SubjectStore
}

func (a *alwaysConflicting) CompareAndSwapNextSub(context.Context, domain.SubjectID, int, int) error {
	return sentinel.ErrConflict
}
