package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/models"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/sentinel"
)

// In-memory stores back unit tests and local development. They implement
// the same conditional-write semantics as the PostgreSQL stores so
// concurrency behavior is observable without a database: conditional
// inserts and compare-and-swap updates return sentinel.ErrConflict on a
// lost race, exactly like the SQL implementations.

// NewMemoryStores builds the full in-memory store bundle.
func NewMemoryStores() *Stores {
	return &Stores{
		Subjects:  NewInMemorySubjectStore(),
		Records:   NewInMemoryRecordStore(),
		Revisions: NewInMemoryRevisionStore(),
	}
}

type InMemorySubjectStore struct {
	mu       sync.RWMutex
	subjects map[domain.SubjectID]*models.Subject
	// byKey indexes non-deleted subjects by natural key for the
	// conditional insert.
	byKey map[string]domain.SubjectID
}

func NewInMemorySubjectStore() *InMemorySubjectStore {
	return &InMemorySubjectStore{
		subjects: make(map[domain.SubjectID]*models.Subject),
		byKey:    make(map[string]domain.SubjectID),
	}
}

func subjectKey(portfolioID domain.PortfolioID, base string, group int) string {
	return fmt.Sprintf("%s/%s/%d", portfolioID, base, group)
}

func (s *InMemorySubjectStore) Insert(_ context.Context, subject *models.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := subjectKey(subject.PortfolioID, subject.RMBase, subject.RMGroup)
	if _, exists := s.byKey[key]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.subjects[subject.ID]; exists {
		return sentinel.ErrConflict
	}
	s.subjects[subject.ID] = cloneSubject(subject)
	s.byKey[key] = subject.ID
	return nil
}

func (s *InMemorySubjectStore) FindByID(_ context.Context, id domain.SubjectID) (*models.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subject, ok := s.subjects[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneSubject(subject), nil
}

func (s *InMemorySubjectStore) FindByKey(_ context.Context, portfolioID domain.PortfolioID, base string, group int) (*models.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[subjectKey(portfolioID, base, group)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	subject := s.subjects[id]
	if subject == nil || subject.Deleted() {
		return nil, sentinel.ErrNotFound
	}
	return cloneSubject(subject), nil
}

func (s *InMemorySubjectStore) CompareAndSwapNextSub(_ context.Context, id domain.SubjectID, expected, next int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	subject, ok := s.subjects[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if subject.NextSub != expected {
		return sentinel.ErrConflict
	}
	subject.NextSub = next
	return nil
}

func (s *InMemorySubjectStore) ListByPortfolio(_ context.Context, portfolioID domain.PortfolioID) ([]*models.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Subject
	for _, subject := range s.subjects {
		if subject.PortfolioID == portfolioID && !subject.Deleted() {
			out = append(out, cloneSubject(subject))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *InMemorySubjectStore) ListPage(_ context.Context, afterID string, limit int) ([]*models.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.subjects))
	for id := range s.subjects {
		ids = append(ids, id.String())
	}
	sort.Strings(ids)

	var out []*models.Subject
	for _, id := range ids {
		if afterID != "" && id <= afterID {
			continue
		}
		parsed, err := domain.ParseSubjectID(id)
		if err != nil {
			continue
		}
		out = append(out, cloneSubject(s.subjects[parsed]))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *InMemorySubjectStore) UpdateGroup(_ context.Context, id domain.SubjectID, group int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	subject, ok := s.subjects[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	oldKey := subjectKey(subject.PortfolioID, subject.RMBase, subject.RMGroup)
	newKey := subjectKey(subject.PortfolioID, subject.RMBase, group)
	if existing, exists := s.byKey[newKey]; exists && existing != id {
		return sentinel.ErrConflict
	}
	delete(s.byKey, oldKey)
	subject.RMGroup = group
	s.byKey[newKey] = id
	return nil
}

func (s *InMemorySubjectStore) Replace(_ context.Context, subject *models.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prior, ok := s.subjects[subject.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byKey, subjectKey(prior.PortfolioID, prior.RMBase, prior.RMGroup))
	s.subjects[subject.ID] = cloneSubject(subject)
	s.byKey[subjectKey(subject.PortfolioID, subject.RMBase, subject.RMGroup)] = subject.ID
	return nil
}

func (s *InMemorySubjectStore) Delete(_ context.Context, id domain.SubjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	subject, ok := s.subjects[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byKey, subjectKey(subject.PortfolioID, subject.RMBase, subject.RMGroup))
	delete(s.subjects, id)
	return nil
}

type InMemoryRecordStore struct {
	mu      sync.RWMutex
	records map[domain.RecordID]*models.GovernanceRecord
}

func NewInMemoryRecordStore() *InMemoryRecordStore {
	return &InMemoryRecordStore{records: make(map[domain.RecordID]*models.GovernanceRecord)}
}

func (s *InMemoryRecordStore) Insert(_ context.Context, record *models.GovernanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ID]; exists {
		return sentinel.ErrConflict
	}
	s.records[record.ID] = cloneRecord(record)
	return nil
}

func (s *InMemoryRecordStore) FindByID(_ context.Context, id domain.RecordID) (*models.GovernanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRecord(record), nil
}

func (s *InMemoryRecordStore) ListBySubject(_ context.Context, subjectID domain.SubjectID) ([]*models.GovernanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.GovernanceRecord
	for _, record := range s.records {
		if record.SubjectID == subjectID {
			out = append(out, cloneRecord(record))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RMSub < out[j].RMSub })
	return out, nil
}

func (s *InMemoryRecordStore) CountBySubject(_ context.Context, subjectID domain.SubjectID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, record := range s.records {
		if record.SubjectID == subjectID && !record.Deleted() {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryRecordStore) UpdateIfStatus(_ context.Context, record *models.GovernanceRecord, expected models.RecordStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.records[record.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Status != expected {
		return sentinel.ErrConflict
	}
	s.records[record.ID] = cloneRecord(record)
	return nil
}

func (s *InMemoryRecordStore) SetAmendedBy(_ context.Context, id domain.RecordID, amendedBy *domain.RecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if amendedBy == nil {
		record.AmendedByID = nil
		return nil
	}
	target := *amendedBy
	record.AmendedByID = &target
	return nil
}

func (s *InMemoryRecordStore) SoftDelete(_ context.Context, id domain.RecordID, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if record.DeletedAt != nil {
		return nil // already deleted, repair is idempotent
	}
	deletedAt := at
	record.DeletedAt = &deletedAt
	record.DeletedReason = reason
	return nil
}

func (s *InMemoryRecordStore) ListPage(_ context.Context, afterID string, limit int) ([]*models.GovernanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id.String())
	}
	sort.Strings(ids)

	var out []*models.GovernanceRecord
	for _, id := range ids {
		if afterID != "" && id <= afterID {
			continue
		}
		parsed, err := domain.ParseRecordID(id)
		if err != nil {
			continue
		}
		out = append(out, cloneRecord(s.records[parsed]))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryRecordStore) Replace(_ context.Context, record *models.GovernanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.records[record.ID] = cloneRecord(record)
	return nil
}

func (s *InMemoryRecordStore) Delete(_ context.Context, id domain.RecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

type InMemoryRevisionStore struct {
	mu        sync.RWMutex
	revisions map[domain.RevisionID]*models.GovernanceRevision
}

func NewInMemoryRevisionStore() *InMemoryRevisionStore {
	return &InMemoryRevisionStore{revisions: make(map[domain.RevisionID]*models.GovernanceRevision)}
}

func (s *InMemoryRevisionStore) Insert(_ context.Context, revision *models.GovernanceRevision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.revisions[revision.ID]; exists {
		return sentinel.ErrConflict
	}
	// Duplicate versions per record are rejected the way a unique
	// (record_id, version) index would.
	for _, existing := range s.revisions {
		if existing.RecordID == revision.RecordID && existing.Version == revision.Version {
			return sentinel.ErrConflict
		}
	}
	s.revisions[revision.ID] = cloneRevision(revision)
	return nil
}

func (s *InMemoryRevisionStore) FindByID(_ context.Context, id domain.RevisionID) (*models.GovernanceRevision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	revision, ok := s.revisions[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRevision(revision), nil
}

func (s *InMemoryRevisionStore) ListByRecord(_ context.Context, recordID domain.RecordID) ([]*models.GovernanceRevision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.GovernanceRevision
	for _, revision := range s.revisions {
		if revision.RecordID == recordID {
			out = append(out, cloneRevision(revision))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (s *InMemoryRevisionStore) LatestFinalized(_ context.Context, recordID domain.RecordID) (*models.GovernanceRevision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.GovernanceRevision
	for _, revision := range s.revisions {
		if revision.RecordID != recordID || !revision.Finalized() {
			continue
		}
		if latest == nil || revision.Version > latest.Version {
			latest = revision
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	return cloneRevision(latest), nil
}

func (s *InMemoryRevisionStore) Finalize(_ context.Context, revision *models.GovernanceRevision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.revisions[revision.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Finalized() {
		return sentinel.ErrAlreadyFinalized
	}
	s.revisions[revision.ID] = cloneRevision(revision)
	return nil
}

func (s *InMemoryRevisionStore) Replace(_ context.Context, revision *models.GovernanceRevision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.revisions[revision.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.revisions[revision.ID] = cloneRevision(revision)
	return nil
}

func (s *InMemoryRevisionStore) Delete(_ context.Context, id domain.RevisionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.revisions[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.revisions, id)
	return nil
}

func cloneSubject(s *models.Subject) *models.Subject {
	out := *s
	if s.DeletedAt != nil {
		t := *s.DeletedAt
		out.DeletedAt = &t
	}
	return &out
}

func cloneRecord(r *models.GovernanceRecord) *models.GovernanceRecord {
	out := *r
	if r.AmendedByID != nil {
		id := *r.AmendedByID
		out.AmendedByID = &id
	}
	out.FinalizedAt = cloneTime(r.FinalizedAt)
	out.VoidedAt = cloneTime(r.VoidedAt)
	out.DeletedAt = cloneTime(r.DeletedAt)
	if r.FinalizedBy != nil {
		actor := *r.FinalizedBy
		out.FinalizedBy = &actor
	}
	return &out
}

func cloneRevision(r *models.GovernanceRevision) *models.GovernanceRevision {
	out := *r
	out.Payload = r.Payload.Clone()
	out.FinalizedAt = cloneTime(r.FinalizedAt)
	if r.FinalizedBy != nil {
		actor := *r.FinalizedBy
		out.FinalizedBy = &actor
	}
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	out := *t
	return &out
}
