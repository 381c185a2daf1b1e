// Package allocator owns subject resolution and subnumber issuance.
//
// Concurrency is coordinated entirely through the store's atomic
// primitives: the natural-key conditional insert decides subject creation
// races, and a compare-and-swap on next_sub decides allocation races.
// There are no in-process locks; losing a CAS means retrying against the
// new current value, with bounded exponential backoff.
package allocator

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/metrics"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/models"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/store"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/rmid"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain"
	dErrors "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain-errors"
	audit "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/sentinel"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/requestcontext"
)

// Retry policy for CAS contention. Allocation either increments the
// counter by exactly one and returns that number, or changes nothing and
// returns an error; exhausting retries is fatal for the request, never
// silently skipped.
const (
	defaultMaxAttempts = 3
	defaultBackoffBase = 100 * time.Millisecond
)

// AuditPublisher is the slice of the audit pipeline the allocator needs.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service allocates subjects and subnumbers.
type Service struct {
	subjects store.SubjectStore
	auditor  AuditPublisher
	metrics  *metrics.Metrics
	tracer   trace.Tracer

	maxAttempts int
	backoffBase time.Duration
}

// Option configures the Service.
type Option func(*Service)

// WithRetryPolicy overrides the CAS retry bounds, mainly for tests that
// should not sleep.
func WithRetryPolicy(maxAttempts int, backoffBase time.Duration) Option {
	return func(s *Service) {
		s.maxAttempts = maxAttempts
		s.backoffBase = backoffBase
	}
}

func NewService(subjects store.SubjectStore, auditor AuditPublisher, m *metrics.Metrics, opts ...Option) *Service {
	s := &Service{
		subjects:    subjects,
		auditor:     auditor,
		metrics:     m,
		tracer:      otel.Tracer("ledger/allocator"),
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveParams identifies or describes the subject to resolve.
type ResolveParams struct {
	PortfolioID    domain.PortfolioID
	Base           string
	Group          int
	Category       models.Category
	Title          string
	PrimaryPartyID string
	ExternalRef    string
	Actor          domain.ActorID
}

func (p ResolveParams) validate() error {
	if p.PortfolioID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "portfolio id is required")
	}
	if p.Actor.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "actor id is required")
	}
	if !p.Category.Valid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown category %q", p.Category)
	}
	// Range and token checks live in the codec; out-of-range groups are
	// rejected here, before any store call, never repaired later.
	if _, err := rmid.New(p.Base, p.Group, rmid.SubMin); err != nil {
		return err
	}
	return nil
}

// ResolveOrCreateSubject finds the unique non-deleted subject for
// (portfolio, base, group), creating it with next_sub = 1 when absent.
// Concurrent creators racing on one key produce exactly one winner;
// losers re-fetch and use the winner's subject. A duplicate is never
// created.
func (s *Service) ResolveOrCreateSubject(ctx context.Context, params ResolveParams) (*models.Subject, error) {
	ctx, span := s.tracer.Start(ctx, "allocator.ResolveOrCreateSubject",
		trace.WithAttributes(
			attribute.String("rm.base", params.Base),
			attribute.Int("rm.group", params.Group),
		))
	defer span.End()

	if err := params.validate(); err != nil {
		return nil, err
	}

	existing, err := s.subjects.FindByKey(ctx, params.PortfolioID, params.Base, params.Group)
	switch {
	case err == nil:
		return s.checkCategory(existing, params.Category)
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resolve subject")
	}

	subject := &models.Subject{
		ID:             domain.NewSubjectID(),
		PortfolioID:    params.PortfolioID,
		RMBase:         params.Base,
		RMGroup:        params.Group,
		Title:          params.Title,
		Category:       params.Category,
		PrimaryPartyID: params.PrimaryPartyID,
		ExternalRef:    params.ExternalRef,
		NextSub:        rmid.SubMin,
		CreatedAt:      requestcontext.Now(ctx),
	}

	err = s.subjects.Insert(ctx, subject)
	switch {
	case err == nil:
		s.emitSubjectCreated(ctx, subject, params.Actor)
		return subject, nil
	case errors.Is(err, sentinel.ErrConflict):
		// Lost the creation race; the winner's subject is authoritative.
		winner, findErr := s.subjects.FindByKey(ctx, params.PortfolioID, params.Base, params.Group)
		if findErr != nil {
			return nil, dErrors.Wrap(findErr, dErrors.CodeInternal, "re-fetch subject after lost insert race")
		}
		return s.checkCategory(winner, params.Category)
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create subject")
	}
}

// checkCategory enforces that a subject is never re-used for a different
// category than the one it was created with.
func (s *Service) checkCategory(subject *models.Subject, category models.Category) (*models.Subject, error) {
	if subject.Category != category {
		return nil, dErrors.Newf(dErrors.CodeValidation,
			"subject %s-%d belongs to category %q, not %q",
			subject.RMBase, subject.RMGroup, subject.Category, category)
	}
	return subject, nil
}

// AllocateSubnumber atomically issues the next subnumber for a subject.
// Exactly one CAS succeeds per counter value; contenders observe the
// changed counter and retry against it. A number, once returned, is never
// returned again for the same subject, even if the caller later fails and
// never persists a record using it.
func (s *Service) AllocateSubnumber(ctx context.Context, subjectID domain.SubjectID) (sub int, firstEntry bool, err error) {
	ctx, span := s.tracer.Start(ctx, "allocator.AllocateSubnumber",
		trace.WithAttributes(attribute.String("subject.id", subjectID.String())))
	defer span.End()

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := s.backoff(ctx, attempt); err != nil {
				return 0, false, err
			}
		}

		subject, findErr := s.subjects.FindByID(ctx, subjectID)
		if findErr != nil {
			if errors.Is(findErr, sentinel.ErrNotFound) {
				return 0, false, dErrors.New(dErrors.CodeNotFound, "subject not found")
			}
			return 0, false, dErrors.Wrap(findErr, dErrors.CodeInternal, "load subject")
		}
		if subject.Deleted() {
			return 0, false, dErrors.New(dErrors.CodeNotFound, "subject is deleted")
		}
		if subject.NextSub > rmid.SubMax {
			return 0, false, dErrors.Newf(dErrors.CodeValidation,
				"subject %s-%d has no subnumbers remaining", subject.RMBase, subject.RMGroup)
		}

		candidate := subject.NextSub
		casErr := s.subjects.CompareAndSwapNextSub(ctx, subjectID, candidate, candidate+1)
		switch {
		case casErr == nil:
			s.metrics.RecordAllocation("issued")
			s.metrics.ObserveAllocationRetries(attempt)
			return candidate, candidate == rmid.SubMin, nil
		case errors.Is(casErr, sentinel.ErrConflict):
			s.metrics.RecordAllocation("conflict")
			continue
		case errors.Is(casErr, sentinel.ErrNotFound):
			return 0, false, dErrors.New(dErrors.CodeNotFound, "subject not found")
		default:
			return 0, false, dErrors.Wrap(casErr, dErrors.CodeInternal, "advance subnumber counter")
		}
	}

	s.metrics.RecordAllocation("exhausted")
	return 0, false, dErrors.Newf(dErrors.CodeAllocationExhausted,
		"subnumber allocation lost %d consecutive races", s.maxAttempts)
}

// backoff sleeps base * 2^(attempt-1), honoring cancellation. An expired
// context surfaces as a timeout whose outcome the caller must treat as
// unknown.
func (s *Service) backoff(ctx context.Context, attempt int) error {
	delay := s.backoffBase << (attempt - 1)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "allocation cancelled during backoff")
	case <-timer.C:
		return nil
	}
}

func (s *Service) emitSubjectCreated(ctx context.Context, subject *models.Subject, actor domain.ActorID) {
	if s.auditor == nil {
		return
	}
	// Subject creation has no record yet; the event carries the thread
	// identity in meta.
	event := audit.Event{
		Type:    audit.EventAllocated,
		ActorID: actor,
		At:      requestcontext.Now(ctx),
		Meta: map[string]string{
			"subject_id": subject.ID.String(),
			"rm_base":    subject.RMBase,
			"rm_id":      rmid.Format(subject.RMBase, subject.RMGroup, rmid.SubMin),
			"category":   string(subject.Category),
		},
	}
	// Best effort: a failed audit append on subject creation does not
	// fail the allocation, the created event on the record covers it.
	_ = s.auditor.Emit(ctx, event)
}
