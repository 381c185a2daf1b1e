package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/models"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/sentinel"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the ledger tables when they do not exist yet.
// One-shot tooling and integration tests call this; the server assumes
// migrations ran out of band.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure ledger schema: %w", err)
	}
	return nil
}

// NewPostgresStores builds the full PostgreSQL store bundle over one
// connection pool.
func NewPostgresStores(db *sql.DB) *Stores {
	return &Stores{
		Subjects:  NewPostgresSubjectStore(db),
		Records:   NewPostgresRecordStore(db),
		Revisions: NewPostgresRevisionStore(db),
	}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// PostgresSubjectStore persists subjects. The natural-key race is decided
// by the partial unique index subjects_natural_key, the counter race by a
// conditioned UPDATE.
type PostgresSubjectStore struct {
	db *sql.DB
}

func NewPostgresSubjectStore(db *sql.DB) *PostgresSubjectStore {
	return &PostgresSubjectStore{db: db}
}

const subjectColumns = `id, portfolio_id, rm_base, rm_group, title, category,
	primary_party_id, external_ref, next_sub, created_at, deleted_at, deleted_reason`

func (s *PostgresSubjectStore) Insert(ctx context.Context, subject *models.Subject) error {
	query := `
		INSERT INTO subjects (` + subjectColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(subject.ID),
		uuid.UUID(subject.PortfolioID),
		subject.RMBase,
		subject.RMGroup,
		subject.Title,
		string(subject.Category),
		subject.PrimaryPartyID,
		subject.ExternalRef,
		subject.NextSub,
		subject.CreatedAt,
		subject.DeletedAt,
		subject.DeletedReason,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert subject: %w", err)
	}
	return nil
}

func (s *PostgresSubjectStore) FindByID(ctx context.Context, id domain.SubjectID) (*models.Subject, error) {
	query := `SELECT ` + subjectColumns + ` FROM subjects WHERE id = $1`
	return scanSubject(s.db.QueryRowContext(ctx, query, uuid.UUID(id)))
}

func (s *PostgresSubjectStore) FindByKey(ctx context.Context, portfolioID domain.PortfolioID, base string, group int) (*models.Subject, error) {
	query := `
		SELECT ` + subjectColumns + ` FROM subjects
		WHERE portfolio_id = $1 AND rm_base = $2 AND rm_group = $3 AND deleted_at IS NULL
	`
	return scanSubject(s.db.QueryRowContext(ctx, query, uuid.UUID(portfolioID), base, group))
}

func (s *PostgresSubjectStore) CompareAndSwapNextSub(ctx context.Context, id domain.SubjectID, expected, next int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE subjects SET next_sub = $1 WHERE id = $2 AND next_sub = $3`,
		next, uuid.UUID(id), expected,
	)
	if err != nil {
		return fmt.Errorf("cas next_sub: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("cas next_sub: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// Zero rows means either a lost race or a missing subject; look once
	// to tell them apart.
	var exists bool
	err = s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM subjects WHERE id = $1)`, uuid.UUID(id)).Scan(&exists)
	if err != nil {
		return fmt.Errorf("cas next_sub: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrConflict
}

func (s *PostgresSubjectStore) ListByPortfolio(ctx context.Context, portfolioID domain.PortfolioID) ([]*models.Subject, error) {
	query := `
		SELECT ` + subjectColumns + ` FROM subjects
		WHERE portfolio_id = $1 AND deleted_at IS NULL
		ORDER BY rm_base, rm_group
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(portfolioID))
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()
	return collectSubjects(rows)
}

func (s *PostgresSubjectStore) ListPage(ctx context.Context, afterID string, limit int) ([]*models.Subject, error) {
	query := `
		SELECT ` + subjectColumns + ` FROM subjects
		WHERE ($1 = '' OR id::text > $1)
		ORDER BY id::text
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("page subjects: %w", err)
	}
	defer rows.Close()
	return collectSubjects(rows)
}

func (s *PostgresSubjectStore) UpdateGroup(ctx context.Context, id domain.SubjectID, group int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE subjects SET rm_group = $1 WHERE id = $2`, group, uuid.UUID(id))
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("update subject group: %w", err)
	}
	return requireAffected(result, "update subject group")
}

func (s *PostgresSubjectStore) Replace(ctx context.Context, subject *models.Subject) error {
	query := `
		UPDATE subjects SET
			portfolio_id = $2, rm_base = $3, rm_group = $4, title = $5,
			category = $6, primary_party_id = $7, external_ref = $8,
			next_sub = $9, created_at = $10, deleted_at = $11, deleted_reason = $12
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		uuid.UUID(subject.ID),
		uuid.UUID(subject.PortfolioID),
		subject.RMBase,
		subject.RMGroup,
		subject.Title,
		string(subject.Category),
		subject.PrimaryPartyID,
		subject.ExternalRef,
		subject.NextSub,
		subject.CreatedAt,
		subject.DeletedAt,
		subject.DeletedReason,
	)
	if err != nil {
		return fmt.Errorf("replace subject: %w", err)
	}
	return requireAffected(result, "replace subject")
}

func (s *PostgresSubjectStore) Delete(ctx context.Context, id domain.SubjectID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM subjects WHERE id = $1`, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	return requireAffected(result, "delete subject")
}

type subjectScanner interface {
	Scan(dest ...any) error
}

func scanSubjectRow(row subjectScanner) (*models.Subject, error) {
	var (
		subject       models.Subject
		subjectID     uuid.UUID
		portfolioID   uuid.UUID
		category      string
		deletedAt     sql.NullTime
		deletedReason string
	)
	err := row.Scan(
		&subjectID, &portfolioID, &subject.RMBase, &subject.RMGroup,
		&subject.Title, &category, &subject.PrimaryPartyID, &subject.ExternalRef,
		&subject.NextSub, &subject.CreatedAt, &deletedAt, &deletedReason,
	)
	if err != nil {
		return nil, err
	}
	subject.ID = domain.SubjectID(subjectID)
	subject.PortfolioID = domain.PortfolioID(portfolioID)
	subject.Category = models.Category(category)
	subject.DeletedReason = deletedReason
	if deletedAt.Valid {
		t := deletedAt.Time
		subject.DeletedAt = &t
	}
	return &subject, nil
}

func scanSubject(row *sql.Row) (*models.Subject, error) {
	subject, err := scanSubjectRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan subject: %w", err)
	}
	return subject, nil
}

func collectSubjects(rows *sql.Rows) ([]*models.Subject, error) {
	var out []*models.Subject
	for rows.Next() {
		subject, err := scanSubjectRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		out = append(out, subject)
	}
	return out, rows.Err()
}

// PostgresRecordStore persists governance records.
type PostgresRecordStore struct {
	db *sql.DB
}

func NewPostgresRecordStore(db *sql.DB) *PostgresRecordStore {
	return &PostgresRecordStore{db: db}
}

const recordColumns = `id, portfolio_id, subject_id, module_type, rm_sub, status,
	current_revision_id, amended_by_id, business_key, created_by, created_at,
	finalized_at, finalized_by, voided_at, void_reason, deleted_at, deleted_reason`

func recordArgs(record *models.GovernanceRecord) []any {
	var currentRevision, amendedBy, finalizedBy any
	if !record.CurrentRevisionID.IsNil() {
		currentRevision = uuid.UUID(record.CurrentRevisionID)
	}
	if record.AmendedByID != nil {
		amendedBy = uuid.UUID(*record.AmendedByID)
	}
	if record.FinalizedBy != nil {
		finalizedBy = uuid.UUID(*record.FinalizedBy)
	}
	return []any{
		uuid.UUID(record.ID),
		uuid.UUID(record.PortfolioID),
		uuid.UUID(record.SubjectID),
		string(record.ModuleType),
		record.RMSub,
		string(record.Status),
		currentRevision,
		amendedBy,
		record.BusinessKey,
		uuid.UUID(record.CreatedBy),
		record.CreatedAt,
		record.FinalizedAt,
		finalizedBy,
		record.VoidedAt,
		record.VoidReason,
		record.DeletedAt,
		record.DeletedReason,
	}
}

func (s *PostgresRecordStore) Insert(ctx context.Context, record *models.GovernanceRecord) error {
	query := `
		INSERT INTO governance_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	if _, err := s.db.ExecContext(ctx, query, recordArgs(record)...); err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (s *PostgresRecordStore) FindByID(ctx context.Context, id domain.RecordID) (*models.GovernanceRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM governance_records WHERE id = $1`
	record, err := scanRecordRow(s.db.QueryRowContext(ctx, query, uuid.UUID(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find record: %w", err)
	}
	return record, nil
}

func (s *PostgresRecordStore) ListBySubject(ctx context.Context, subjectID domain.SubjectID) ([]*models.GovernanceRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM governance_records WHERE subject_id = $1 ORDER BY rm_sub`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(subjectID))
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *PostgresRecordStore) CountBySubject(ctx context.Context, subjectID domain.SubjectID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM governance_records WHERE subject_id = $1 AND deleted_at IS NULL`,
		uuid.UUID(subjectID)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

func (s *PostgresRecordStore) UpdateIfStatus(ctx context.Context, record *models.GovernanceRecord, expected models.RecordStatus) error {
	query := `
		UPDATE governance_records SET
			portfolio_id = $2, subject_id = $3, module_type = $4, rm_sub = $5,
			status = $6, current_revision_id = $7, amended_by_id = $8,
			business_key = $9, created_by = $10, created_at = $11,
			finalized_at = $12, finalized_by = $13, voided_at = $14,
			void_reason = $15, deleted_at = $16, deleted_reason = $17
		WHERE id = $1 AND status = $18
	`
	args := append(recordArgs(record), string(expected))
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM governance_records WHERE id = $1)`, uuid.UUID(record.ID)).Scan(&exists); err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrConflict
}

func (s *PostgresRecordStore) SetAmendedBy(ctx context.Context, id domain.RecordID, amendedBy *domain.RecordID) error {
	var target any
	if amendedBy != nil {
		target = uuid.UUID(*amendedBy)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE governance_records SET amended_by_id = $1 WHERE id = $2`, target, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("set amended_by: %w", err)
	}
	return requireAffected(result, "set amended_by")
}

func (s *PostgresRecordStore) SoftDelete(ctx context.Context, id domain.RecordID, reason string, at time.Time) error {
	// Conditioned on deleted_at IS NULL so a repeated repair is a no-op.
	result, err := s.db.ExecContext(ctx, `
		UPDATE governance_records SET deleted_at = $1, deleted_reason = $2
		WHERE id = $3 AND deleted_at IS NULL
	`, at, reason, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("soft delete record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("soft delete record: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM governance_records WHERE id = $1)`, uuid.UUID(id)).Scan(&exists); err != nil {
			return fmt.Errorf("soft delete record: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
	}
	return nil
}

func (s *PostgresRecordStore) ListPage(ctx context.Context, afterID string, limit int) ([]*models.GovernanceRecord, error) {
	query := `
		SELECT ` + recordColumns + ` FROM governance_records
		WHERE ($1 = '' OR id::text > $1)
		ORDER BY id::text
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("page records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *PostgresRecordStore) Replace(ctx context.Context, record *models.GovernanceRecord) error {
	query := `
		UPDATE governance_records SET
			portfolio_id = $2, subject_id = $3, module_type = $4, rm_sub = $5,
			status = $6, current_revision_id = $7, amended_by_id = $8,
			business_key = $9, created_by = $10, created_at = $11,
			finalized_at = $12, finalized_by = $13, voided_at = $14,
			void_reason = $15, deleted_at = $16, deleted_reason = $17
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, recordArgs(record)...)
	if err != nil {
		return fmt.Errorf("replace record: %w", err)
	}
	return requireAffected(result, "replace record")
}

func (s *PostgresRecordStore) Delete(ctx context.Context, id domain.RecordID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM governance_records WHERE id = $1`, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return requireAffected(result, "delete record")
}

func scanRecordRow(row subjectScanner) (*models.GovernanceRecord, error) {
	var (
		record          models.GovernanceRecord
		recordID        uuid.UUID
		portfolioID     uuid.UUID
		subjectID       uuid.UUID
		moduleType      string
		status          string
		currentRevision uuid.NullUUID
		amendedBy       uuid.NullUUID
		createdBy       uuid.UUID
		finalizedAt     sql.NullTime
		finalizedBy     uuid.NullUUID
		voidedAt        sql.NullTime
		deletedAt       sql.NullTime
	)
	err := row.Scan(
		&recordID, &portfolioID, &subjectID, &moduleType, &record.RMSub, &status,
		&currentRevision, &amendedBy, &record.BusinessKey, &createdBy, &record.CreatedAt,
		&finalizedAt, &finalizedBy, &voidedAt, &record.VoidReason, &deletedAt, &record.DeletedReason,
	)
	if err != nil {
		return nil, err
	}
	record.ID = domain.RecordID(recordID)
	record.PortfolioID = domain.PortfolioID(portfolioID)
	record.SubjectID = domain.SubjectID(subjectID)
	record.ModuleType = models.Category(moduleType)
	record.Status = models.RecordStatus(status)
	record.CreatedBy = domain.ActorID(createdBy)
	if currentRevision.Valid {
		record.CurrentRevisionID = domain.RevisionID(currentRevision.UUID)
	}
	if amendedBy.Valid {
		id := domain.RecordID(amendedBy.UUID)
		record.AmendedByID = &id
	}
	if finalizedAt.Valid {
		t := finalizedAt.Time
		record.FinalizedAt = &t
	}
	if finalizedBy.Valid {
		actor := domain.ActorID(finalizedBy.UUID)
		record.FinalizedBy = &actor
	}
	if voidedAt.Valid {
		t := voidedAt.Time
		record.VoidedAt = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		record.DeletedAt = &t
	}
	return &record, nil
}

func collectRecords(rows *sql.Rows) ([]*models.GovernanceRecord, error) {
	var out []*models.GovernanceRecord
	for rows.Next() {
		record, err := scanRecordRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// PostgresRevisionStore persists revisions. Finalize is conditioned on
// finalized_at IS NULL so the stored hash of a finalized revision can
// never change.
type PostgresRevisionStore struct {
	db *sql.DB
}

func NewPostgresRevisionStore(db *sql.DB) *PostgresRevisionStore {
	return &PostgresRevisionStore{db: db}
}

const revisionColumns = `id, record_id, version, payload, content_hash, parent_hash,
	change_reason, created_by, created_at, finalized_at, finalized_by`

func (s *PostgresRevisionStore) Insert(ctx context.Context, revision *models.GovernanceRevision) error {
	payload, err := revision.Payload.CanonicalBytes()
	if err != nil {
		return fmt.Errorf("insert revision: %w", err)
	}
	var finalizedBy any
	if revision.FinalizedBy != nil {
		finalizedBy = uuid.UUID(*revision.FinalizedBy)
	}
	query := `
		INSERT INTO governance_revisions (` + revisionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(revision.ID),
		uuid.UUID(revision.RecordID),
		revision.Version,
		payload,
		revision.ContentHash,
		revision.ParentHash,
		revision.ChangeReason,
		uuid.UUID(revision.CreatedBy),
		revision.CreatedAt,
		revision.FinalizedAt,
		finalizedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert revision: %w", err)
	}
	return nil
}

func (s *PostgresRevisionStore) FindByID(ctx context.Context, id domain.RevisionID) (*models.GovernanceRevision, error) {
	query := `SELECT ` + revisionColumns + ` FROM governance_revisions WHERE id = $1`
	revision, err := scanRevisionRow(s.db.QueryRowContext(ctx, query, uuid.UUID(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find revision: %w", err)
	}
	return revision, nil
}

func (s *PostgresRevisionStore) ListByRecord(ctx context.Context, recordID domain.RecordID) ([]*models.GovernanceRevision, error) {
	query := `SELECT ` + revisionColumns + ` FROM governance_revisions WHERE record_id = $1 ORDER BY version`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(recordID))
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	defer rows.Close()

	var out []*models.GovernanceRevision
	for rows.Next() {
		revision, err := scanRevisionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		out = append(out, revision)
	}
	return out, rows.Err()
}

func (s *PostgresRevisionStore) LatestFinalized(ctx context.Context, recordID domain.RecordID) (*models.GovernanceRevision, error) {
	query := `
		SELECT ` + revisionColumns + ` FROM governance_revisions
		WHERE record_id = $1 AND finalized_at IS NOT NULL
		ORDER BY version DESC
		LIMIT 1
	`
	revision, err := scanRevisionRow(s.db.QueryRowContext(ctx, query, uuid.UUID(recordID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("latest finalized revision: %w", err)
	}
	return revision, nil
}

func (s *PostgresRevisionStore) Finalize(ctx context.Context, revision *models.GovernanceRevision) error {
	var finalizedBy any
	if revision.FinalizedBy != nil {
		finalizedBy = uuid.UUID(*revision.FinalizedBy)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE governance_revisions
		SET content_hash = $1, parent_hash = $2, finalized_at = $3, finalized_by = $4
		WHERE id = $5 AND finalized_at IS NULL
	`,
		revision.ContentHash, revision.ParentHash, revision.FinalizedAt, finalizedBy,
		uuid.UUID(revision.ID),
	)
	if err != nil {
		return fmt.Errorf("finalize revision: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize revision: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM governance_revisions WHERE id = $1)`, uuid.UUID(revision.ID)).Scan(&exists); err != nil {
		return fmt.Errorf("finalize revision: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrAlreadyFinalized
}

func (s *PostgresRevisionStore) Replace(ctx context.Context, revision *models.GovernanceRevision) error {
	payload, err := revision.Payload.CanonicalBytes()
	if err != nil {
		return fmt.Errorf("replace revision: %w", err)
	}
	var finalizedBy any
	if revision.FinalizedBy != nil {
		finalizedBy = uuid.UUID(*revision.FinalizedBy)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE governance_revisions SET
			record_id = $2, version = $3, payload = $4, content_hash = $5,
			parent_hash = $6, change_reason = $7, created_by = $8,
			created_at = $9, finalized_at = $10, finalized_by = $11
		WHERE id = $1
	`,
		uuid.UUID(revision.ID),
		uuid.UUID(revision.RecordID),
		revision.Version,
		payload,
		revision.ContentHash,
		revision.ParentHash,
		revision.ChangeReason,
		uuid.UUID(revision.CreatedBy),
		revision.CreatedAt,
		revision.FinalizedAt,
		finalizedBy,
	)
	if err != nil {
		return fmt.Errorf("replace revision: %w", err)
	}
	return requireAffected(result, "replace revision")
}

func (s *PostgresRevisionStore) Delete(ctx context.Context, id domain.RevisionID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM governance_revisions WHERE id = $1`, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("delete revision: %w", err)
	}
	return requireAffected(result, "delete revision")
}

func scanRevisionRow(row subjectScanner) (*models.GovernanceRevision, error) {
	var (
		revision    models.GovernanceRevision
		revisionID  uuid.UUID
		recordID    uuid.UUID
		payload     []byte
		createdBy   uuid.UUID
		finalizedAt sql.NullTime
		finalizedBy uuid.NullUUID
	)
	err := row.Scan(
		&revisionID, &recordID, &revision.Version, &payload, &revision.ContentHash,
		&revision.ParentHash, &revision.ChangeReason, &createdBy, &revision.CreatedAt,
		&finalizedAt, &finalizedBy,
	)
	if err != nil {
		return nil, err
	}
	revision.ID = domain.RevisionID(revisionID)
	revision.RecordID = domain.RecordID(recordID)
	revision.CreatedBy = domain.ActorID(createdBy)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &revision.Payload); err != nil {
			return nil, fmt.Errorf("decode revision payload: %w", err)
		}
	}
	if finalizedAt.Valid {
		t := finalizedAt.Time
		revision.FinalizedAt = &t
	}
	if finalizedBy.Valid {
		actor := domain.ActorID(finalizedBy.UUID)
		revision.FinalizedBy = &actor
	}
	return &revision, nil
}

func requireAffected(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
