package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/models"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/sentinel"
)

// Compensator undoes single-document writes for the oplog: inserted
// documents are deleted, updated documents restored from their prior
// value. A document that is already gone counts as compensated, which
// keeps a crashed-and-retried rollback idempotent.
type Compensator struct {
	stores Stores
}

func NewCompensator(stores Stores) *Compensator {
	return &Compensator{stores: stores}
}

func (c *Compensator) CompensateInsert(ctx context.Context, collection, key string) error {
	var err error
	switch collection {
	case CollectionSubjects:
		var id domain.SubjectID
		if id, err = domain.ParseSubjectID(key); err == nil {
			err = c.stores.Subjects.Delete(ctx, id)
		}
	case CollectionRecords:
		var id domain.RecordID
		if id, err = domain.ParseRecordID(key); err == nil {
			err = c.stores.Records.Delete(ctx, id)
		}
	case CollectionRevisions:
		var id domain.RevisionID
		if id, err = domain.ParseRevisionID(key); err == nil {
			err = c.stores.Revisions.Delete(ctx, id)
		}
	default:
		return fmt.Errorf("unknown collection %q", collection)
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	return err
}

func (c *Compensator) CompensateUpdate(ctx context.Context, collection, key string, prior any) error {
	switch collection {
	case CollectionSubjects:
		subject, ok := prior.(*models.Subject)
		if !ok {
			return fmt.Errorf("prior value for %s/%s is %T, want *models.Subject", collection, key, prior)
		}
		return c.stores.Subjects.Replace(ctx, subject)
	case CollectionRecords:
		record, ok := prior.(*models.GovernanceRecord)
		if !ok {
			return fmt.Errorf("prior value for %s/%s is %T, want *models.GovernanceRecord", collection, key, prior)
		}
		return c.stores.Records.Replace(ctx, record)
	case CollectionRevisions:
		revision, ok := prior.(*models.GovernanceRevision)
		if !ok {
			return fmt.Errorf("prior value for %s/%s is %T, want *models.GovernanceRevision", collection, key, prior)
		}
		return c.stores.Revisions.Replace(ctx, revision)
	default:
		return fmt.Errorf("unknown collection %q", collection)
	}
}
