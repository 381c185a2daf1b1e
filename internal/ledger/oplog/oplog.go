// Package oplog approximates multi-document atomicity on a store without
// native transactions.
//
// Callers record each completed write as a compensating-action entry;
// on failure Rollback applies the compensations in reverse order
// (delete for inserts, replace-with-prior for updates). Compensation is
// best effort: a rollback failure is logged and reported but never masks
// the original business error, and the consistency validator exists to
// catch whatever a crashed or failed rollback leaves behind.
//
// Subnumber allocations are deliberately never recorded here: a counter
// increment is not compensated, because reusing a handed-out number would
// reintroduce duplicate display ids.
package oplog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Kind tags a compensating-action entry.
type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
)

// Entry is one recorded write and what undoing it takes.
type Entry struct {
	Kind       Kind
	Collection string
	Key        string
	// Prior holds the pre-update value for KindUpdate entries; nil for
	// inserts.
	Prior any
}

// Compensator applies individual compensations. The store package
// implements it over the entity stores.
type Compensator interface {
	// CompensateInsert deletes the document inserted at collection/key.
	CompensateInsert(ctx context.Context, collection, key string) error
	// CompensateUpdate restores the prior value of collection/key.
	CompensateUpdate(ctx context.Context, collection, key string, prior any) error
}

// Log accumulates compensating actions for one multi-document sequence.
// A Log is single-goroutine by design; each request builds its own.
type Log struct {
	comp    Compensator
	logger  *slog.Logger
	entries []Entry
}

// New builds an empty operation log.
func New(comp Compensator, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{comp: comp, logger: logger}
}

// RecordInsert notes a completed insert so rollback can delete it.
func (l *Log) RecordInsert(collection, key string) {
	l.entries = append(l.entries, Entry{Kind: KindInsert, Collection: collection, Key: key})
}

// RecordUpdate notes a completed update so rollback can restore prior.
func (l *Log) RecordUpdate(collection, key string, prior any) {
	l.entries = append(l.entries, Entry{Kind: KindUpdate, Collection: collection, Key: key, Prior: prior})
}

// Len returns the number of recorded entries.
func (l *Log) Len() int { return len(l.entries) }

// Rollback applies compensations in reverse order. All entries are
// attempted even when some fail; failures are logged and returned joined.
// The caller must surface its original error, not this one.
func (l *Log) Rollback(ctx context.Context) error {
	var failures []error
	for i := len(l.entries) - 1; i >= 0; i-- {
		entry := l.entries[i]
		var err error
		switch entry.Kind {
		case KindInsert:
			err = l.comp.CompensateInsert(ctx, entry.Collection, entry.Key)
		case KindUpdate:
			err = l.comp.CompensateUpdate(ctx, entry.Collection, entry.Key, entry.Prior)
		default:
			err = fmt.Errorf("unknown oplog entry kind %q", entry.Kind)
		}
		if err != nil {
			l.logger.ErrorContext(ctx, "oplog compensation failed",
				"kind", string(entry.Kind),
				"collection", entry.Collection,
				"key", entry.Key,
				"error", err,
			)
			failures = append(failures, fmt.Errorf("%s %s/%s: %w", entry.Kind, entry.Collection, entry.Key, err))
		}
	}
	l.entries = nil
	return errors.Join(failures...)
}

// Commit discards the recorded entries once the sequence succeeded.
func (l *Log) Commit() {
	l.entries = nil
}
