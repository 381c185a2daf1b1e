package service

import (
	"context"
	"errors"
	"time"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/models"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/rmid"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain"
	dErrors "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain-errors"
	audit "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/sentinel"
)

// SubjectSummary is the denormalized per-subject view exposed to
// collaborators.
type SubjectSummary struct {
	SubjectID   string          `json:"subject_id"`
	Title       string          `json:"title"`
	Category    models.Category `json:"category"`
	RMIDPreview string          `json:"rm_id_preview"`
	RecordCount int             `json:"record_count"`
	CreatedAt   time.Time       `json:"created_at"`
}

// RecordDetail is one record with its resolved display identifier.
type RecordDetail struct {
	Record    *models.GovernanceRecord `json:"record"`
	DisplayID string                   `json:"display_id"`
}

// SubjectSummaries lists the live subjects of a portfolio with record
// counts and a preview of the next display id. Served from the cache
// when possible; any cache failure falls back to the store.
func (s *Service) SubjectSummaries(ctx context.Context, portfolioID domain.PortfolioID) ([]SubjectSummary, error) {
	started := time.Now()
	defer func() { s.metrics.ObserveOperation("subject_summaries", time.Since(started)) }()

	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, portfolioID); ok {
			s.metrics.RecordCacheHit()
			return cached, nil
		}
		s.metrics.RecordCacheMiss()
	}

	subjects, err := s.stores.Subjects.ListByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list subjects")
	}

	summaries := make([]SubjectSummary, 0, len(subjects))
	for _, subject := range subjects {
		count, err := s.stores.Records.CountBySubject(ctx, subject.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "count records")
		}
		summaries = append(summaries, SubjectSummary{
			SubjectID:   subject.ID.String(),
			Title:       subject.Title,
			Category:    subject.Category,
			RMIDPreview: rmid.Format(subject.RMBase, subject.RMGroup, subject.NextSub),
			RecordCount: count,
			CreatedAt:   subject.CreatedAt,
		})
	}

	if s.cache != nil {
		s.cache.Set(ctx, portfolioID, summaries)
	}
	return summaries, nil
}

// RecordDetail resolves one record together with its display id. The
// display id always goes through the codec, never string concatenation.
func (s *Service) RecordDetail(ctx context.Context, recordID domain.RecordID) (*RecordDetail, error) {
	started := time.Now()
	defer func() { s.metrics.ObserveOperation("record_detail", time.Since(started)) }()

	record, err := s.loadRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}

	subject, err := s.stores.Subjects.FindByID(ctx, record.SubjectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load subject")
	}

	return &RecordDetail{
		Record:    record,
		DisplayID: rmid.Format(subject.RMBase, subject.RMGroup, record.RMSub),
	}, nil
}

// RecordsBySubject lists a subject's live records with display ids.
func (s *Service) RecordsBySubject(ctx context.Context, subjectID domain.SubjectID) ([]RecordDetail, error) {
	started := time.Now()
	defer func() { s.metrics.ObserveOperation("records_by_subject", time.Since(started)) }()

	subject, err := s.stores.Subjects.FindByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "subject not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load subject")
	}

	records, err := s.stores.Records.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list records")
	}

	details := make([]RecordDetail, 0, len(records))
	for _, record := range records {
		if record.Deleted() {
			continue
		}
		details = append(details, RecordDetail{
			Record:    record,
			DisplayID: rmid.Format(subject.RMBase, subject.RMGroup, record.RMSub),
		})
	}
	return details, nil
}

// RevisionHistory lists a record's revisions ordered by version
// ascending.
func (s *Service) RevisionHistory(ctx context.Context, recordID domain.RecordID) ([]*models.GovernanceRevision, error) {
	started := time.Now()
	defer func() { s.metrics.ObserveOperation("revision_history", time.Since(started)) }()

	if _, err := s.loadRecord(ctx, recordID); err != nil {
		return nil, err
	}
	revisions, err := s.stores.Revisions.ListByRecord(ctx, recordID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list revisions")
	}
	return revisions, nil
}

// AuditTrail lists the audit events recorded for one record.
func (s *Service) AuditTrail(ctx context.Context, recordID domain.RecordID) ([]audit.Event, error) {
	started := time.Now()
	defer func() { s.metrics.ObserveOperation("audit_trail", time.Since(started)) }()

	if s.auditor == nil {
		return nil, nil
	}
	events, err := s.auditor.List(ctx, recordID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list audit events")
	}
	return events, nil
}
