// Package postgres persists audit events. Appends are idempotent on the
// event id so the worker can safely retry after an unknown-outcome
// timeout.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain"
	audit "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit"
)

//go:embed schema.sql
var schemaSQL string

// Store implements audit.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the audit table when it does not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	meta, err := json.Marshal(event.Meta)
	if err != nil {
		return fmt.Errorf("marshal event meta: %w", err)
	}
	var revisionID any
	if event.RevisionID != nil {
		revisionID = uuid.UUID(*event.RevisionID)
	}
	query := `
		INSERT INTO governance_events (id, record_id, revision_id, event_type, actor_id, at, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(event.ID),
		uuid.UUID(event.RecordID),
		revisionID,
		string(event.Type),
		uuid.UUID(event.ActorID),
		event.At,
		meta,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByRecord(ctx context.Context, recordID domain.RecordID) ([]audit.Event, error) {
	query := `
		SELECT id, record_id, revision_id, event_type, actor_id, at, meta
		FROM governance_events
		WHERE record_id = $1
		ORDER BY at
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(recordID))
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `
		SELECT id, record_id, revision_id, event_type, actor_id, at, meta
		FROM governance_events
		ORDER BY at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent audit events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]audit.Event, error) {
	var out []audit.Event
	for rows.Next() {
		var (
			event      audit.Event
			eventID    uuid.UUID
			recordID   uuid.UUID
			revisionID uuid.NullUUID
			eventType  string
			actorID    uuid.UUID
			meta       []byte
		)
		if err := rows.Scan(&eventID, &recordID, &revisionID, &eventType, &actorID, &event.At, &meta); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.ID = domain.EventID(eventID)
		event.RecordID = domain.RecordID(recordID)
		event.Type = audit.EventType(eventType)
		event.ActorID = domain.ActorID(actorID)
		if revisionID.Valid {
			id := domain.RevisionID(revisionID.UUID)
			event.RevisionID = &id
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &event.Meta); err != nil {
				return nil, fmt.Errorf("decode event meta: %w", err)
			}
		}
		out = append(out, event)
	}
	return out, rows.Err()
}
