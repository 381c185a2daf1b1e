package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain"
	audit "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit"
	auditmem "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit/store/memory"
)

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
	fail   bool
}

func (s *recordingSink) Publish(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("broker unavailable")
	}
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Close() error {
	return nil
}

func (s *recordingSink) published() []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Event, len(s.events))
	copy(out, s.events)
	return out
}

type WorkerSuite struct {
	suite.Suite

	ctx    context.Context
	store  *auditmem.InMemoryStore
	sink   *recordingSink
	queue  *Queue
	logger *slog.Logger
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = auditmem.NewInMemoryStore()
	s.sink = &recordingSink{}
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.queue = NewQueue(s.store, 16, s.logger)
}

func (s *WorkerSuite) event(recordID domain.RecordID) audit.Event {
	return audit.Event{
		RecordID: recordID,
		Type:     audit.EventCreated,
		ActorID:  domain.ActorID(uuid.New()),
	}
}

func (s *WorkerSuite) runAndDrain(emit func()) {
	w := NewWorker(s.store, s.sink, s.queue.Inbox(), s.logger)
	done := make(chan error, 1)
	go func() { done <- w.Run(s.ctx) }()

	emit()
	s.queue.Close()

	select {
	case err := <-done:
		s.Require().NoError(err)
	case <-time.After(5 * time.Second):
		s.FailNow("worker did not drain in time")
	}
}

func (s *WorkerSuite) TestPersistsAndFansOut() {
	recordID := domain.NewRecordID()

	s.runAndDrain(func() {
		s.Require().NoError(s.queue.Emit(s.ctx, s.event(recordID)))
		s.Require().NoError(s.queue.Emit(s.ctx, s.event(recordID)))
	})

	stored, err := s.store.ListByRecord(s.ctx, recordID)
	s.Require().NoError(err)
	s.Len(stored, 2)
	for _, ev := range stored {
		s.False(ev.ID.IsNil())
		s.False(ev.At.IsZero())
	}
	s.Len(s.sink.published(), 2)
}

func (s *WorkerSuite) TestSinkFailureDoesNotStopPersistence() {
	s.sink.fail = true
	recordID := domain.NewRecordID()

	s.runAndDrain(func() {
		s.Require().NoError(s.queue.Emit(s.ctx, s.event(recordID)))
	})

	stored, err := s.store.ListByRecord(s.ctx, recordID)
	s.Require().NoError(err)
	s.Len(stored, 1)
	s.Empty(s.sink.published())
}

func (s *WorkerSuite) TestNilSinkIsStoreOnly() {
	s.sink = nil
	queue := NewQueue(s.store, 16, s.logger)
	w := NewWorker(s.store, nil, queue.Inbox(), s.logger)
	done := make(chan error, 1)
	go func() { done <- w.Run(s.ctx) }()

	recordID := domain.NewRecordID()
	s.Require().NoError(queue.Emit(s.ctx, s.event(recordID)))
	queue.Close()
	s.Require().NoError(<-done)

	stored, err := s.store.ListByRecord(s.ctx, recordID)
	s.Require().NoError(err)
	s.Len(stored, 1)
}

func (s *WorkerSuite) TestFullQueueDropsAndCounts() {
	queue := NewQueue(s.store, 1, s.logger)
	recordID := domain.NewRecordID()

	// No worker consuming: the second emit cannot fit.
	s.Require().NoError(queue.Emit(s.ctx, s.event(recordID)))
	s.Require().NoError(queue.Emit(s.ctx, s.event(recordID)))
	s.Equal(int64(1), queue.Dropped())
}

func (s *WorkerSuite) TestEmitAfterCloseDropsAndCounts() {
	queue := NewQueue(s.store, 4, s.logger)
	queue.Close()

	recordID := domain.NewRecordID()
	s.Require().NotPanics(func() {
		s.Require().NoError(queue.Emit(s.ctx, s.event(recordID)))
	})
	s.Equal(int64(1), queue.Dropped())

	events, err := s.store.ListByRecord(s.ctx, recordID)
	s.Require().NoError(err)
	s.Empty(events)
}

func (s *WorkerSuite) TestRunStopsOnContextCancel() {
	ctx, cancel := context.WithCancel(s.ctx)
	w := NewWorker(s.store, s.sink, s.queue.Inbox(), s.logger)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		s.ErrorIs(err, context.Canceled)
	case <-time.After(5 * time.Second):
		s.FailNow("worker did not stop on cancel")
	}
}
