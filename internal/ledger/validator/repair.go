package validator

import (
	"context"
	"errors"
	"sort"
	"strconv"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/models"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/rmid"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain"
	dErrors "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain-errors"
	audit "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/sentinel"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/requestcontext"
)

// DuplicateCleanupReason marks records soft-deleted by duplicate repair.
const DuplicateCleanupReason = "duplicate_cleanup"

// RepairResult summarizes what one repair pass changed.
type RepairResult struct {
	OrphansCleared    int `json:"orphans_cleared"`
	DuplicatesRemoved int `json:"duplicates_removed"`
}

// Repair applies the automatic repairs: clearing orphan amendment
// pointers and soft-deleting duplicate records. Subject renumbering is
// excluded; it rewrites identity and only runs through RenumberSubject.
// Repair is idempotent: a second pass over repaired data changes nothing.
func (s *Service) Repair(ctx context.Context, actor domain.ActorID) (*RepairResult, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	result := &RepairResult{}
	if result.OrphansCleared, err = s.repairOrphans(ctx, snap, actor); err != nil {
		return result, err
	}
	if result.DuplicatesRemoved, err = s.repairDuplicates(ctx, snap, actor); err != nil {
		return result, err
	}

	s.logger.InfoContext(ctx, "repair pass complete",
		"orphans_cleared", result.OrphansCleared,
		"duplicates_removed", result.DuplicatesRemoved,
	)
	return result, nil
}

// repairOrphans nulls amendment pointers to missing or deleted records.
// The pointer is never replaced with a guess.
func (s *Service) repairOrphans(ctx context.Context, snap *snapshot, actor domain.ActorID) (int, error) {
	cleared := 0
	for _, record := range snap.records {
		if record.Deleted() || record.AmendedByID == nil {
			continue
		}
		target, ok := snap.byID[record.AmendedByID.String()]
		if ok && !target.Deleted() {
			continue
		}

		err := s.stores.Records.SetAmendedBy(ctx, record.ID, nil)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return cleared, dErrors.Wrap(err, dErrors.CodeInternal, "clear orphan pointer")
		}
		cleared++
		s.metrics.RecordRepair("orphan_cleared")
		s.emit(ctx, audit.Event{
			RecordID: record.ID,
			Type:     audit.EventRepaired,
			ActorID:  actor,
			Meta: map[string]string{
				"check":   CheckOrphanRefs,
				"cleared": record.AmendedByID.String(),
			},
		})
	}
	return cleared, nil
}

// repairDuplicates keeps one record per natural-key group and soft-deletes
// the rest. The finalized member wins; with none or several finalized, the
// earliest created wins.
func (s *Service) repairDuplicates(ctx context.Context, snap *snapshot, actor domain.ActorID) (int, error) {
	groups := make(map[string][]*models.GovernanceRecord)
	for _, record := range snap.records {
		if record.Deleted() || record.BusinessKey == "" || record.AmendedByID != nil {
			continue
		}
		key := record.SubjectID.String() + "/" + record.BusinessKey
		groups[key] = append(groups[key], record)
	}

	keys := make([]string, 0, len(groups))
	for key, members := range groups {
		if len(members) > 1 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	removed := 0
	for _, key := range keys {
		members := groups[key]
		keep := chooseSurvivor(members)
		for _, record := range members {
			if record.ID == keep.ID {
				continue
			}
			err := s.stores.Records.SoftDelete(ctx, record.ID, DuplicateCleanupReason, requestcontext.Now(ctx))
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			if err != nil {
				return removed, dErrors.Wrap(err, dErrors.CodeInternal, "soft-delete duplicate")
			}
			removed++
			s.metrics.RecordRepair("duplicate_removed")
			s.emit(ctx, audit.Event{
				RecordID: record.ID,
				Type:     audit.EventRepaired,
				ActorID:  actor,
				Meta: map[string]string{
					"check": CheckDuplicates,
					"kept":  keep.ID.String(),
				},
			})
		}
	}
	return removed, nil
}

func chooseSurvivor(members []*models.GovernanceRecord) *models.GovernanceRecord {
	keep := members[0]
	for _, record := range members[1:] {
		switch {
		case record.Finalized() && !keep.Finalized():
			keep = record
		case record.Finalized() == keep.Finalized() && record.CreatedAt.Before(keep.CreatedAt):
			keep = record
		}
	}
	return keep
}

// RenumberSubject moves a subject to an unused in-range group. This is an
// irreversible single-writer batch operation used to repair legacy groups
// outside the codec range; display ids of all dependent records change
// with it, which is why it never runs opportunistically.
func (s *Service) RenumberSubject(ctx context.Context, subjectID domain.SubjectID, newGroup int, actor domain.ActorID) error {
	if newGroup < rmid.GroupMin || newGroup > rmid.GroupMax {
		return dErrors.Newf(dErrors.CodeValidation, "group %d is outside %d-%d", newGroup, rmid.GroupMin, rmid.GroupMax)
	}

	subject, err := s.stores.Subjects.FindByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "subject not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "load subject")
	}
	if subject.RMGroup == newGroup {
		return nil
	}

	_, err = s.stores.Subjects.FindByKey(ctx, subject.PortfolioID, subject.RMBase, newGroup)
	switch {
	case err == nil:
		return dErrors.Newf(dErrors.CodeConflict, "group %d is already in use for base %s", newGroup, subject.RMBase)
	case !errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeInternal, "probe target group")
	}

	oldGroup := subject.RMGroup
	if err := s.stores.Subjects.UpdateGroup(ctx, subjectID, newGroup); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "rewrite subject group")
	}

	s.metrics.RecordRepair("subject_renumbered")
	s.logger.WarnContext(ctx, "subject renumbered",
		"subject_id", subjectID.String(),
		"old_group", oldGroup,
		"new_group", newGroup,
	)
	s.emit(ctx, audit.Event{
		Type:    audit.EventMigrated,
		ActorID: actor,
		Meta: map[string]string{
			"subject_id": subjectID.String(),
			"old_group":  strconv.Itoa(oldGroup),
			"new_group":  strconv.Itoa(newGroup),
			"old_rm_id":  rmid.FormatLegacy(subject.RMBase, oldGroup),
			"new_rm_id":  rmid.Format(subject.RMBase, newGroup, rmid.SubMin),
		},
	})
	return nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	event.At = requestcontext.Now(ctx)
	_ = s.auditor.Emit(ctx, event)
}
