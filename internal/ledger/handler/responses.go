package handler

import (
	"time"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/models"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/service"
	audit "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit"
)

// RecordResponse is the HTTP representation of one governance record.
type RecordResponse struct {
	ID                string     `json:"id"`
	PortfolioID       string     `json:"portfolio_id"`
	SubjectID         string     `json:"subject_id"`
	Category          string     `json:"category"`
	DisplayID         string     `json:"display_id,omitempty"`
	Status            string     `json:"status"`
	CurrentRevisionID string     `json:"current_revision_id,omitempty"`
	AmendedByID       string     `json:"amended_by_id,omitempty"`
	BusinessKey       string     `json:"business_key,omitempty"`
	CreatedBy         string     `json:"created_by"`
	CreatedAt         time.Time  `json:"created_at"`
	FinalizedAt       *time.Time `json:"finalized_at,omitempty"`
	FinalizedBy       string     `json:"finalized_by,omitempty"`
	VoidedAt          *time.Time `json:"voided_at,omitempty"`
	VoidReason        string     `json:"void_reason,omitempty"`
}

// FromRecord converts a domain record to its HTTP representation. The
// display id is resolved by the caller because it needs the owning
// subject.
func FromRecord(record *models.GovernanceRecord, displayID string) *RecordResponse {
	resp := &RecordResponse{
		ID:          record.ID.String(),
		PortfolioID: record.PortfolioID.String(),
		SubjectID:   record.SubjectID.String(),
		Category:    string(record.ModuleType),
		DisplayID:   displayID,
		Status:      string(record.Status),
		BusinessKey: record.BusinessKey,
		CreatedBy:   record.CreatedBy.String(),
		CreatedAt:   record.CreatedAt,
		FinalizedAt: record.FinalizedAt,
		VoidedAt:    record.VoidedAt,
		VoidReason:  record.VoidReason,
	}
	if !record.CurrentRevisionID.IsNil() {
		resp.CurrentRevisionID = record.CurrentRevisionID.String()
	}
	if record.AmendedByID != nil {
		resp.AmendedByID = record.AmendedByID.String()
	}
	if record.FinalizedBy != nil {
		resp.FinalizedBy = record.FinalizedBy.String()
	}
	return resp
}

// RevisionResponse is the HTTP representation of one revision.
type RevisionResponse struct {
	ID           string         `json:"id"`
	RecordID     string         `json:"record_id"`
	Version      int            `json:"version"`
	Payload      models.Payload `json:"payload"`
	ContentHash  string         `json:"content_hash,omitempty"`
	ParentHash   string         `json:"parent_hash,omitempty"`
	ChangeReason string         `json:"change_reason,omitempty"`
	CreatedBy    string         `json:"created_by"`
	CreatedAt    time.Time      `json:"created_at"`
	FinalizedAt  *time.Time     `json:"finalized_at,omitempty"`
	FinalizedBy  string         `json:"finalized_by,omitempty"`
}

// FromRevision converts a domain revision to its HTTP representation.
func FromRevision(rev *models.GovernanceRevision) *RevisionResponse {
	resp := &RevisionResponse{
		ID:           rev.ID.String(),
		RecordID:     rev.RecordID.String(),
		Version:      rev.Version,
		Payload:      rev.Payload,
		ContentHash:  rev.ContentHash,
		ParentHash:   rev.ParentHash,
		ChangeReason: rev.ChangeReason,
		CreatedBy:    rev.CreatedBy.String(),
		CreatedAt:    rev.CreatedAt,
		FinalizedAt:  rev.FinalizedAt,
	}
	if rev.FinalizedBy != nil {
		resp.FinalizedBy = rev.FinalizedBy.String()
	}
	return resp
}

// CreateRecordResponse is the HTTP response for POST /records and
// POST /records/{id}/amend.
type CreateRecordResponse struct {
	Record     *RecordResponse   `json:"record"`
	Revision   *RevisionResponse `json:"revision"`
	DisplayID  string            `json:"display_id"`
	FirstEntry bool              `json:"first_entry"`
}

// FromCreateResult converts a create outcome to its HTTP representation.
func FromCreateResult(result *service.CreateRecordResult) *CreateRecordResponse {
	return &CreateRecordResponse{
		Record:     FromRecord(result.Record, result.DisplayID),
		Revision:   FromRevision(result.Revision),
		DisplayID:  result.DisplayID,
		FirstEntry: result.FirstEntry,
	}
}

// EventResponse is the HTTP representation of one audit event.
type EventResponse struct {
	ID         string            `json:"id"`
	RecordID   string            `json:"record_id"`
	RevisionID string            `json:"revision_id,omitempty"`
	Type       string            `json:"type"`
	ActorID    string            `json:"actor_id"`
	At         time.Time         `json:"at"`
	Meta       map[string]string `json:"meta,omitempty"`
}

// FromEvents converts an audit trail to its HTTP representation.
func FromEvents(events []audit.Event) []EventResponse {
	out := make([]EventResponse, 0, len(events))
	for _, ev := range events {
		resp := EventResponse{
			ID:       ev.ID.String(),
			RecordID: ev.RecordID.String(),
			Type:     string(ev.Type),
			ActorID:  ev.ActorID.String(),
			At:       ev.At,
			Meta:     ev.Meta,
		}
		if ev.RevisionID != nil {
			resp.RevisionID = ev.RevisionID.String()
		}
		out = append(out, resp)
	}
	return out
}
