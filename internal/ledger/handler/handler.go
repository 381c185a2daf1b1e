// Package handler wires the governance ledger endpoints to the ledger
// service. It stays thin: decode, validate, delegate, translate errors.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/models"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/service"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain"
	dErrors "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain-errors"
	audit "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/httputil"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/requestcontext"
)

// Service defines the ledger operations the HTTP layer exposes.
type Service interface {
	CreateRecord(ctx context.Context, params service.CreateRecordParams) (*service.CreateRecordResult, error)
	FinalizeRecord(ctx context.Context, recordID domain.RecordID, signer domain.ActorID) (*models.GovernanceRecord, error)
	ReviseRecord(ctx context.Context, recordID domain.RecordID, payload models.Payload, changeReason string, actor domain.ActorID) (*models.GovernanceRevision, error)
	FinalizeRevision(ctx context.Context, revisionID domain.RevisionID, signer domain.ActorID) (*models.GovernanceRevision, error)
	AmendRecord(ctx context.Context, params service.AmendRecordParams) (*service.CreateRecordResult, error)
	VoidRecord(ctx context.Context, recordID domain.RecordID, reason string, actor domain.ActorID) (*models.GovernanceRecord, error)
	SubjectSummaries(ctx context.Context, portfolioID domain.PortfolioID) ([]service.SubjectSummary, error)
	RecordDetail(ctx context.Context, recordID domain.RecordID) (*service.RecordDetail, error)
	RecordsBySubject(ctx context.Context, subjectID domain.SubjectID) ([]service.RecordDetail, error)
	RevisionHistory(ctx context.Context, recordID domain.RecordID) ([]*models.GovernanceRevision, error)
	AuditTrail(ctx context.Context, recordID domain.RecordID) ([]audit.Event, error)
}

// Handler wires ledger endpoints to the ledger service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a ledger handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts ledger endpoints on the router. Authentication is
// applied by the caller so read and write routes can share one policy.
func (h *Handler) Register(r chi.Router) {
	r.Post("/records", h.HandleCreateRecord)
	r.Get("/records/{recordID}", h.HandleGetRecord)
	r.Post("/records/{recordID}/finalize", h.HandleFinalizeRecord)
	r.Post("/records/{recordID}/revisions", h.HandleReviseRecord)
	r.Get("/records/{recordID}/revisions", h.HandleRevisionHistory)
	r.Post("/records/{recordID}/amend", h.HandleAmendRecord)
	r.Post("/records/{recordID}/void", h.HandleVoidRecord)
	r.Get("/records/{recordID}/audit", h.HandleAuditTrail)
	r.Post("/revisions/{revisionID}/finalize", h.HandleFinalizeRevision)
	r.Get("/portfolios/{portfolioID}/subjects", h.HandleSubjectSummaries)
	r.Get("/subjects/{subjectID}/records", h.HandleRecordsBySubject)
}

// HandleCreateRecord handles POST /records requests.
func (h *Handler) HandleCreateRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	actor, ok := h.requireActor(w, ctx)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[CreateRecordRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.CreateRecord(ctx, service.CreateRecordParams{
		PortfolioID:    req.ParsedPortfolioID(),
		Base:           req.Base,
		Group:          req.Group,
		Category:       req.ParsedCategory(),
		Title:          req.Title,
		PrimaryPartyID: req.PrimaryPartyID,
		ExternalRef:    req.ExternalRef,
		BusinessKey:    req.BusinessKey,
		Payload:        req.Payload,
		Actor:          actor,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "create record failed", requestID, err)
		return
	}

	h.logger.InfoContext(ctx, "record created",
		"request_id", requestID,
		"record_id", result.Record.ID,
		"display_id", result.DisplayID,
		"first_entry", result.FirstEntry,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromCreateResult(result))
}

// HandleGetRecord handles GET /records/{recordID} requests.
func (h *Handler) HandleGetRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	recordID, ok := h.recordID(w, r)
	if !ok {
		return
	}

	detail, err := h.service.RecordDetail(ctx, recordID)
	if err != nil {
		h.writeServiceError(ctx, w, "record lookup failed", requestcontext.RequestID(ctx), err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRecord(detail.Record, detail.DisplayID))
}

// HandleFinalizeRecord handles POST /records/{recordID}/finalize requests.
func (h *Handler) HandleFinalizeRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor, ok := h.requireActor(w, ctx)
	if !ok {
		return
	}
	recordID, ok := h.recordID(w, r)
	if !ok {
		return
	}

	record, err := h.service.FinalizeRecord(ctx, recordID, actor)
	if err != nil {
		h.writeServiceError(ctx, w, "finalize record failed", requestID, err)
		return
	}

	h.logger.InfoContext(ctx, "record finalized",
		"request_id", requestID,
		"record_id", record.ID,
	)
	httputil.WriteJSON(w, http.StatusOK, FromRecord(record, ""))
}

// HandleReviseRecord handles POST /records/{recordID}/revisions requests.
// It opens a new draft revision on top of the record's finalized head.
func (h *Handler) HandleReviseRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor, ok := h.requireActor(w, ctx)
	if !ok {
		return
	}
	recordID, ok := h.recordID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReviseRecordRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rev, err := h.service.ReviseRecord(ctx, recordID, req.Payload, req.ChangeReason, actor)
	if err != nil {
		h.writeServiceError(ctx, w, "revise record failed", requestID, err)
		return
	}

	h.logger.InfoContext(ctx, "amendment revision opened",
		"request_id", requestID,
		"record_id", recordID,
		"revision_id", rev.ID,
		"version", rev.Version,
	)
	httputil.WriteJSON(w, http.StatusCreated, FromRevision(rev))
}

// HandleFinalizeRevision handles POST /revisions/{revisionID}/finalize
// requests.
func (h *Handler) HandleFinalizeRevision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor, ok := h.requireActor(w, ctx)
	if !ok {
		return
	}
	revisionID, err := domain.ParseRevisionID(chi.URLParam(r, "revisionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rev, err := h.service.FinalizeRevision(ctx, revisionID, actor)
	if err != nil {
		h.writeServiceError(ctx, w, "finalize revision failed", requestID, err)
		return
	}

	h.logger.InfoContext(ctx, "revision finalized",
		"request_id", requestID,
		"revision_id", rev.ID,
		"version", rev.Version,
	)
	httputil.WriteJSON(w, http.StatusOK, FromRevision(rev))
}

// HandleAmendRecord handles POST /records/{recordID}/amend requests. It
// supersedes a finalized record with a fresh draft under the next
// subnumber.
func (h *Handler) HandleAmendRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor, ok := h.requireActor(w, ctx)
	if !ok {
		return
	}
	recordID, ok := h.recordID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AmendRecordRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.AmendRecord(ctx, service.AmendRecordParams{
		RecordID:     recordID,
		Payload:      req.Payload,
		ChangeReason: req.ChangeReason,
		Actor:        actor,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "amend record failed", requestID, err)
		return
	}

	h.logger.InfoContext(ctx, "record amended",
		"request_id", requestID,
		"record_id", recordID,
		"successor_id", result.Record.ID,
		"display_id", result.DisplayID,
	)
	httputil.WriteJSON(w, http.StatusCreated, FromCreateResult(result))
}

// HandleVoidRecord handles POST /records/{recordID}/void requests.
func (h *Handler) HandleVoidRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor, ok := h.requireActor(w, ctx)
	if !ok {
		return
	}
	recordID, ok := h.recordID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[VoidRecordRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.service.VoidRecord(ctx, recordID, req.Reason, actor)
	if err != nil {
		h.writeServiceError(ctx, w, "void record failed", requestID, err)
		return
	}

	h.logger.InfoContext(ctx, "record voided",
		"request_id", requestID,
		"record_id", record.ID,
		"reason", req.Reason,
	)
	httputil.WriteJSON(w, http.StatusOK, FromRecord(record, ""))
}

// HandleRevisionHistory handles GET /records/{recordID}/revisions requests.
func (h *Handler) HandleRevisionHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	recordID, ok := h.recordID(w, r)
	if !ok {
		return
	}

	revisions, err := h.service.RevisionHistory(ctx, recordID)
	if err != nil {
		h.writeServiceError(ctx, w, "revision history failed", requestcontext.RequestID(ctx), err)
		return
	}

	out := make([]*RevisionResponse, 0, len(revisions))
	for _, rev := range revisions {
		out = append(out, FromRevision(rev))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// HandleAuditTrail handles GET /records/{recordID}/audit requests.
func (h *Handler) HandleAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	recordID, ok := h.recordID(w, r)
	if !ok {
		return
	}

	events, err := h.service.AuditTrail(ctx, recordID)
	if err != nil {
		h.writeServiceError(ctx, w, "audit trail failed", requestcontext.RequestID(ctx), err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromEvents(events))
}

// HandleSubjectSummaries handles GET /portfolios/{portfolioID}/subjects
// requests.
func (h *Handler) HandleSubjectSummaries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	portfolioID, err := domain.ParsePortfolioID(chi.URLParam(r, "portfolioID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	summaries, err := h.service.SubjectSummaries(ctx, portfolioID)
	if err != nil {
		h.writeServiceError(ctx, w, "subject summaries failed", requestcontext.RequestID(ctx), err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summaries)
}

// HandleRecordsBySubject handles GET /subjects/{subjectID}/records requests.
func (h *Handler) HandleRecordsBySubject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subjectID, err := domain.ParseSubjectID(chi.URLParam(r, "subjectID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	details, err := h.service.RecordsBySubject(ctx, subjectID)
	if err != nil {
		h.writeServiceError(ctx, w, "records by subject failed", requestcontext.RequestID(ctx), err)
		return
	}

	out := make([]*RecordResponse, 0, len(details))
	for _, detail := range details {
		out = append(out, FromRecord(detail.Record, detail.DisplayID))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// requireActor extracts the authenticated actor from the context, writing
// 401 when the auth middleware did not run or rejected the token.
func (h *Handler) requireActor(w http.ResponseWriter, ctx context.Context) (domain.ActorID, bool) {
	actor := requestcontext.ActorID(ctx)
	if actor.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return domain.ActorID{}, false
	}
	return actor, true
}

func (h *Handler) recordID(w http.ResponseWriter, r *http.Request) (domain.RecordID, bool) {
	recordID, err := domain.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		httputil.WriteError(w, err)
		return domain.RecordID{}, false
	}
	return recordID, true
}

// writeServiceError logs and translates a service failure. Expected
// domain outcomes log at warn; anything uncoded is an internal error.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg, requestID string, err error) {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestID,
			"error", err.Error(),
		)
	} else {
		h.logger.WarnContext(ctx, msg,
			"request_id", requestID,
			"code", string(code),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}
