// Package validator is the batch consistency checker for the governance
// ledger. It never runs on the request path: the live write path relies on
// conditional writes, and this package finds whatever those could not
// guarantee, compensation gaps included.
//
// Each check is independently reportable and the whole run is read-only
// and idempotent: two runs with no intervening writes produce identical
// reports. Repairs live in repair.go and are likewise no-ops when run a
// second time.
package validator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/chain"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/metrics"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/models"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/store"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/rmid"
	dErrors "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain-errors"
	audit "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit"
)

// Check names as reported in findings and metrics.
const (
	CheckHashChain    = "hash_chain"
	CheckFinalization = "finalization"
	CheckOrphanRefs   = "orphan_refs"
	CheckSubjectRange = "subject_range"
	CheckDuplicates   = "duplicates"
)

const defaultPageSize = 500

// Finding is one violation located by a check.
type Finding struct {
	Check      string `json:"check"`
	EntityID   string `json:"entity_id"`
	Message    string `json:"message"`
	Repairable bool   `json:"repairable"`
}

// Report is the outcome of one validator run. Errors block a healthy
// verdict, warnings do not. Both lists are deterministically ordered.
type Report struct {
	Valid    bool      `json:"valid"`
	Errors   []Finding `json:"errors"`
	Warnings []Finding `json:"warnings"`
}

// AuditPublisher is the slice of the audit pipeline repairs write to.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service runs consistency checks and repairs over the full ledger.
type Service struct {
	stores   *store.Stores
	auditor  AuditPublisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	pageSize int
}

// Option configures the Service.
type Option func(*Service)

// WithPageSize overrides the batch cursor page size.
func WithPageSize(n int) Option {
	return func(s *Service) { s.pageSize = n }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(stores *store.Stores, auditor AuditPublisher, m *metrics.Metrics, opts ...Option) *Service {
	s := &Service{
		stores:   stores,
		auditor:  auditor,
		metrics:  m,
		logger:   slog.Default(),
		pageSize: defaultPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// snapshot is the ledger state one run operates on. Checks share it so a
// record read once is judged consistently by every check.
type snapshot struct {
	subjects []*models.Subject
	records  []*models.GovernanceRecord
	byID     map[string]*models.GovernanceRecord
}

// Run executes all checks and assembles the report. Checks run
// concurrently over a single snapshot; findings are merged and sorted so
// output order is independent of scheduling.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var errorsOut, warningsOut []Finding
	collect := func(errors, warnings []Finding) {
		mu.Lock()
		errorsOut = append(errorsOut, errors...)
		warningsOut = append(warningsOut, warnings...)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	checks := []func(context.Context, *snapshot) ([]Finding, []Finding, error){
		s.checkHashChains,
		s.checkFinalization,
		s.checkOrphanRefs,
		s.checkSubjectRange,
		s.checkDuplicates,
	}
	for _, check := range checks {
		g.Go(func() error {
			errors, warnings, err := check(gctx, snap)
			if err != nil {
				return err
			}
			collect(errors, warnings)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sortFindings(errorsOut)
	sortFindings(warningsOut)
	for _, f := range errorsOut {
		s.metrics.RecordFinding(f.Check, "error")
	}
	for _, f := range warningsOut {
		s.metrics.RecordFinding(f.Check, "warning")
	}

	report := &Report{
		Valid:    len(errorsOut) == 0,
		Errors:   errorsOut,
		Warnings: warningsOut,
	}
	s.logger.InfoContext(ctx, "validator run complete",
		"valid", report.Valid,
		"errors", len(report.Errors),
		"warnings", len(report.Warnings),
	)
	return report, nil
}

func (s *Service) load(ctx context.Context) (*snapshot, error) {
	snap := &snapshot{byID: make(map[string]*models.GovernanceRecord)}

	after := ""
	for {
		page, err := s.stores.Subjects.ListPage(ctx, after, s.pageSize)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "cursor subjects")
		}
		snap.subjects = append(snap.subjects, page...)
		if len(page) < s.pageSize {
			break
		}
		after = page[len(page)-1].ID.String()
	}

	after = ""
	for {
		page, err := s.stores.Records.ListPage(ctx, after, s.pageSize)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "cursor records")
		}
		snap.records = append(snap.records, page...)
		if len(page) < s.pageSize {
			break
		}
		after = page[len(page)-1].ID.String()
	}
	for _, record := range snap.records {
		snap.byID[record.ID.String()] = record
	}
	return snap, nil
}

// checkHashChains walks every record's finalized revisions by ascending
// version and verifies the parent link, version continuity and that the
// stored content hash still matches a recomputation.
func (s *Service) checkHashChains(ctx context.Context, snap *snapshot) ([]Finding, []Finding, error) {
	var mu sync.Mutex
	var findings []Finding
	add := func(f Finding) {
		mu.Lock()
		findings = append(findings, f)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, record := range snap.records {
		if record.Deleted() {
			continue
		}
		g.Go(func() error {
			revisions, err := s.stores.Revisions.ListByRecord(gctx, record.ID)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "list revisions")
			}
			for _, f := range checkChain(record, revisions) {
				add(f)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return findings, nil, nil
}

func checkChain(record *models.GovernanceRecord, revisions []*models.GovernanceRevision) []Finding {
	var findings []Finding
	fail := func(format string, args ...any) {
		findings = append(findings, Finding{
			Check:    CheckHashChain,
			EntityID: record.ID.String(),
			Message:  fmt.Sprintf(format, args...),
		})
	}

	seen := make(map[int]bool, len(revisions))
	for _, rev := range revisions {
		if seen[rev.Version] {
			fail("duplicate revision version %d", rev.Version)
		}
		seen[rev.Version] = true
	}
	for want := 1; want <= len(revisions); want++ {
		if !seen[want] {
			fail("revision version %d is missing", want)
		}
	}

	var prev *models.GovernanceRevision
	for _, rev := range revisions {
		if !rev.Finalized() {
			continue
		}
		if prev == nil {
			if rev.ParentHash != "" {
				fail("first finalized revision %d carries parent hash %q", rev.Version, rev.ParentHash)
			}
		} else if rev.ParentHash != prev.ContentHash {
			fail("revision %d parent hash does not match revision %d content hash", rev.Version, prev.Version)
		}
		if recomputed, err := chain.ContentHash(rev); err != nil {
			fail("revision %d hash material is not canonical: %v", rev.Version, err)
		} else if recomputed != rev.ContentHash {
			fail("revision %d content hash does not match its payload", rev.Version)
		}
		prev = rev
	}
	return findings
}

// checkFinalization verifies the record status agrees with the signer
// metadata, and that finalized revisions carry a hash.
func (s *Service) checkFinalization(ctx context.Context, snap *snapshot) ([]Finding, []Finding, error) {
	var findings []Finding
	for _, record := range snap.records {
		if record.Deleted() {
			continue
		}
		marked := record.Status == models.StatusFinalized
		signed := record.FinalizedAt != nil && record.FinalizedBy != nil
		switch {
		case marked && !signed:
			findings = append(findings, Finding{
				Check:    CheckFinalization,
				EntityID: record.ID.String(),
				Message:  "record is marked finalized without signer metadata",
			})
		case !marked && signed:
			findings = append(findings, Finding{
				Check:    CheckFinalization,
				EntityID: record.ID.String(),
				Message:  fmt.Sprintf("record carries finalize metadata but status is %s", record.Status),
			})
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
	}
	return findings, nil, nil
}

// checkOrphanRefs verifies every forward amendment pointer resolves to a
// live record. A pointer to a missing or deleted record is repairable by
// clearing it; a pointer to a voided record is flagged for an
// administrator, never auto-repaired.
func (s *Service) checkOrphanRefs(ctx context.Context, snap *snapshot) ([]Finding, []Finding, error) {
	var findings, warnings []Finding
	for _, record := range snap.records {
		if record.Deleted() || record.AmendedByID == nil {
			continue
		}
		target, ok := snap.byID[record.AmendedByID.String()]
		switch {
		case !ok || target.Deleted():
			findings = append(findings, Finding{
				Check:      CheckOrphanRefs,
				EntityID:   record.ID.String(),
				Message:    fmt.Sprintf("amended_by points to missing or deleted record %s", record.AmendedByID),
				Repairable: true,
			})
		case target.Status == models.StatusVoided:
			warnings = append(warnings, Finding{
				Check:    CheckOrphanRefs,
				EntityID: record.ID.String(),
				Message:  fmt.Sprintf("amended_by points to voided record %s", record.AmendedByID),
			})
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
	}
	return findings, warnings, nil
}

// checkSubjectRange flags group numbers outside the codec range. Only
// pre-migration legacy data can produce these; allocation rejects them.
func (s *Service) checkSubjectRange(ctx context.Context, snap *snapshot) ([]Finding, []Finding, error) {
	var findings []Finding
	for _, subject := range snap.subjects {
		if subject.Deleted() {
			continue
		}
		if subject.RMGroup < rmid.GroupMin || subject.RMGroup > rmid.GroupMax {
			findings = append(findings, Finding{
				Check:    CheckSubjectRange,
				EntityID: subject.ID.String(),
				Message: fmt.Sprintf("group %d is outside %d-%d, renumber required",
					subject.RMGroup, rmid.GroupMin, rmid.GroupMax),
			})
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
	}
	return findings, nil, nil
}

// checkDuplicates groups live records by owning subject plus business key
// and flags groups with more than one member. Superseded records are
// excluded: an amendment legitimately shares its predecessor's key.
func (s *Service) checkDuplicates(ctx context.Context, snap *snapshot) ([]Finding, []Finding, error) {
	groups := make(map[string][]*models.GovernanceRecord)
	for _, record := range snap.records {
		if record.Deleted() || record.BusinessKey == "" || record.AmendedByID != nil {
			continue
		}
		key := record.SubjectID.String() + "/" + record.BusinessKey
		groups[key] = append(groups[key], record)
	}

	var findings []Finding
	for key, members := range groups {
		if len(members) < 2 {
			continue
		}
		for _, record := range members {
			findings = append(findings, Finding{
				Check:      CheckDuplicates,
				EntityID:   record.ID.String(),
				Message:    fmt.Sprintf("%d records share business key %q", len(members), key),
				Repairable: true,
			})
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
	}
	return findings, nil, nil
}

func sortFindings(findings []Finding) {
	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Check != findings[j].Check {
			return findings[i].Check < findings[j].Check
		}
		if findings[i].EntityID != findings[j].EntityID {
			return findings[i].EntityID < findings[j].EntityID
		}
		return findings[i].Message < findings[j].Message
	})
}
