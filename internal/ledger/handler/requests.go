package handler

import (
	"strings"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/models"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/rmid"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain"
	dErrors "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain-errors"
)

// CreateRecordRequest is the HTTP request body for POST /records.
type CreateRecordRequest struct {
	PortfolioID    string         `json:"portfolio_id"`
	Base           string         `json:"base"`
	Group          int            `json:"group"`
	Category       string         `json:"category"`
	Title          string         `json:"title"`
	PrimaryPartyID string         `json:"primary_party_id"`
	ExternalRef    string         `json:"external_ref"`
	BusinessKey    string         `json:"business_key"`
	Payload        models.Payload `json:"payload"`

	// Parsed values (populated by Validate)
	parsedPortfolioID domain.PortfolioID
	parsedCategory    models.Category
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *CreateRecordRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request body is required")
	}

	portfolioID, err := domain.ParsePortfolioID(strings.TrimSpace(r.PortfolioID))
	if err != nil {
		return err
	}
	r.parsedPortfolioID = portfolioID

	r.Base = strings.TrimSpace(r.Base)
	if r.Base == "" {
		return dErrors.New(dErrors.CodeValidation, "base is required")
	}
	if r.Group < rmid.GroupMin || r.Group > rmid.GroupMax {
		return dErrors.Newf(dErrors.CodeValidation, "group must be between %d and %d", rmid.GroupMin, rmid.GroupMax)
	}

	category := models.Category(strings.TrimSpace(r.Category))
	if !category.Valid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown category %q", r.Category)
	}
	r.parsedCategory = category

	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if len(r.Payload) == 0 {
		return dErrors.New(dErrors.CodeValidation, "payload is required")
	}
	return nil
}

// ParsedPortfolioID returns the validated portfolio id.
func (r *CreateRecordRequest) ParsedPortfolioID() domain.PortfolioID {
	return r.parsedPortfolioID
}

// ParsedCategory returns the validated category.
func (r *CreateRecordRequest) ParsedCategory() models.Category {
	return r.parsedCategory
}

// ReviseRecordRequest is the HTTP request body for POST /records/{id}/revisions.
type ReviseRecordRequest struct {
	Payload      models.Payload `json:"payload"`
	ChangeReason string         `json:"change_reason"`
}

func (r *ReviseRecordRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request body is required")
	}
	if len(r.Payload) == 0 {
		return dErrors.New(dErrors.CodeValidation, "payload is required")
	}
	r.ChangeReason = strings.TrimSpace(r.ChangeReason)
	if r.ChangeReason == "" {
		return dErrors.New(dErrors.CodeValidation, "change_reason is required")
	}
	return nil
}

// AmendRecordRequest is the HTTP request body for POST /records/{id}/amend.
type AmendRecordRequest struct {
	Payload      models.Payload `json:"payload"`
	ChangeReason string         `json:"change_reason"`
}

func (r *AmendRecordRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request body is required")
	}
	if len(r.Payload) == 0 {
		return dErrors.New(dErrors.CodeValidation, "payload is required")
	}
	r.ChangeReason = strings.TrimSpace(r.ChangeReason)
	if r.ChangeReason == "" {
		return dErrors.New(dErrors.CodeValidation, "change_reason is required")
	}
	return nil
}

// VoidRecordRequest is the HTTP request body for POST /records/{id}/void.
type VoidRecordRequest struct {
	Reason string `json:"reason"`
}

func (r *VoidRecordRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request body is required")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	return nil
}
