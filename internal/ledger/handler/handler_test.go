package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/allocator"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/chain"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/service"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/store"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain"
	auditmem "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit/store/memory"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/audit/publisher"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/requestcontext"
)

// The handler suite drives the real service over in-memory stores
// through the router, so routing, decoding, status mapping and the
// domain flows are exercised together.
type HandlerSuite struct {
	suite.Suite

	router    chi.Router
	actor     domain.ActorID
	portfolio domain.PortfolioID
	authed    bool
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stores := store.NewMemoryStores()
	auditor := publisher.NewPublisher(auditmem.NewInMemoryStore())
	alloc := allocator.NewService(stores.Subjects, auditor, nil,
		allocator.WithRetryPolicy(3, time.Millisecond))
	chainSvc := chain.NewService(stores.Records, stores.Revisions, auditor, nil)
	svc := service.NewService(stores, alloc, chainSvc, auditor, nil,
		service.WithLogger(logger))

	s.actor = domain.ActorID(uuid.New())
	s.portfolio = domain.PortfolioID(uuid.New())
	s.authed = true

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := req.Context()
			if s.authed {
				ctx = requestcontext.WithActorID(ctx, s.actor)
			}
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	New(svc, logger).Register(r)
	s.router = r
}

func (s *HandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *HandlerSuite) decode(w *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func (s *HandlerSuite) createBody() map[string]any {
	return map[string]any{
		"portfolio_id": s.portfolio.String(),
		"base":         "RF743916765US",
		"group":        33,
		"category":     "insurance",
		"title":        "Policy - Hanover 884",
		"business_key": "hanover/884",
		"payload":      map[string]any{"carrier": "Hanover", "policy": "884"},
	}
}

func (s *HandlerSuite) createRecord() map[string]any {
	w := s.do(http.MethodPost, "/records", s.createBody())
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	return s.decode(w)
}

func (s *HandlerSuite) recordID(created map[string]any) string {
	record := created["record"].(map[string]any)
	return record["id"].(string)
}

func (s *HandlerSuite) TestCreateRecord() {
	created := s.createRecord()

	s.Equal("RF743916765US-33.001", created["display_id"])
	s.Equal(true, created["first_entry"])

	record := created["record"].(map[string]any)
	s.Equal("draft", record["status"])
	s.Equal("insurance", record["category"])
	s.Equal(s.actor.String(), record["created_by"])

	revision := created["revision"].(map[string]any)
	s.Equal(float64(1), revision["version"])

	second := s.createRecord()
	s.Equal("RF743916765US-33.002", second["display_id"])
	s.Equal(false, second["first_entry"])
}

func (s *HandlerSuite) TestCreateRecordValidation() {
	cases := map[string]func(body map[string]any){
		"missing title":       func(b map[string]any) { b["title"] = "" },
		"unknown category":    func(b map[string]any) { b["category"] = "receipts" },
		"group out of range":  func(b map[string]any) { b["group"] = 150 },
		"empty payload":       func(b map[string]any) { delete(b, "payload") },
		"malformed portfolio": func(b map[string]any) { b["portfolio_id"] = "not-a-uuid" },
	}
	for name, mutate := range cases {
		s.Run(name, func() {
			body := s.createBody()
			mutate(body)
			w := s.do(http.MethodPost, "/records", body)
			s.Equal(http.StatusBadRequest, w.Code)
			s.Equal("validation", s.decode(w)["error"])
		})
	}
}

func (s *HandlerSuite) TestCreateRequiresAuth() {
	s.authed = false
	w := s.do(http.MethodPost, "/records", s.createBody())
	s.Equal(http.StatusUnauthorized, w.Code)
	s.Equal("unauthorized", s.decode(w)["error"])
}

func (s *HandlerSuite) TestFinalizeRecord() {
	created := s.createRecord()
	id := s.recordID(created)

	w := s.do(http.MethodPost, "/records/"+id+"/finalize", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal("finalized", s.decode(w)["status"])

	// Finalizing again is a terminal conflict, not an internal error.
	w = s.do(http.MethodPost, "/records/"+id+"/finalize", nil)
	s.Equal(http.StatusConflict, w.Code)
	s.Equal("already_finalized", s.decode(w)["error"])
}

func (s *HandlerSuite) TestReviseAndFinalizeRevision() {
	created := s.createRecord()
	id := s.recordID(created)
	s.do(http.MethodPost, "/records/"+id+"/finalize", nil)

	w := s.do(http.MethodPost, "/records/"+id+"/revisions", map[string]any{
		"payload":       map[string]any{"carrier": "Hanover", "policy": "884-R1"},
		"change_reason": "policy renewal",
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	rev := s.decode(w)
	s.Equal(float64(2), rev["version"])
	s.NotEmpty(rev["parent_hash"])

	w = s.do(http.MethodPost, "/revisions/"+rev["id"].(string)+"/finalize", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.NotEmpty(s.decode(w)["content_hash"])

	w = s.do(http.MethodGet, "/records/"+id+"/revisions", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var history []map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &history))
	s.Len(history, 2)
}

func (s *HandlerSuite) TestReviseRequiresChangeReason() {
	created := s.createRecord()
	id := s.recordID(created)
	s.do(http.MethodPost, "/records/"+id+"/finalize", nil)

	w := s.do(http.MethodPost, "/records/"+id+"/revisions", map[string]any{
		"payload": map[string]any{"carrier": "Hanover"},
	})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlerSuite) TestAmendRecord() {
	created := s.createRecord()
	id := s.recordID(created)
	s.do(http.MethodPost, "/records/"+id+"/finalize", nil)

	w := s.do(http.MethodPost, "/records/"+id+"/amend", map[string]any{
		"payload":       map[string]any{"carrier": "Hanover", "policy": "884-A"},
		"change_reason": "carrier reissued the policy",
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	amended := s.decode(w)
	s.Equal("RF743916765US-33.002", amended["display_id"])

	// The predecessor now points forward to its successor.
	w = s.do(http.MethodGet, "/records/"+id, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	successor := amended["record"].(map[string]any)
	s.Equal(successor["id"], s.decode(w)["amended_by_id"])

	// A record can only be amended once.
	w = s.do(http.MethodPost, "/records/"+id+"/amend", map[string]any{
		"payload":       map[string]any{"carrier": "Hanover"},
		"change_reason": "second amendment",
	})
	s.Equal(http.StatusConflict, w.Code)
	s.Equal("conflict", s.decode(w)["error"])
}

func (s *HandlerSuite) TestVoidRecord() {
	created := s.createRecord()
	id := s.recordID(created)

	w := s.do(http.MethodPost, "/records/"+id+"/void", map[string]any{
		"reason": "entered against the wrong subject",
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	body := s.decode(w)
	s.Equal("voided", body["status"])
	s.Equal("entered against the wrong subject", body["void_reason"])

	w = s.do(http.MethodPost, "/records/"+id+"/void", map[string]any{"reason": "again"})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlerSuite) TestGetRecordNotFound() {
	w := s.do(http.MethodGet, "/records/"+uuid.NewString(), nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("not_found", s.decode(w)["error"])
}

func (s *HandlerSuite) TestGetRecordRejectsMalformedID() {
	w := s.do(http.MethodGet, "/records/not-a-uuid", nil)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlerSuite) TestSubjectSummaries() {
	s.createRecord()
	s.createRecord()

	w := s.do(http.MethodGet, "/portfolios/"+s.portfolio.String()+"/subjects", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var summaries []map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &summaries))
	s.Require().Len(summaries, 1)
	s.Equal(float64(2), summaries[0]["record_count"])
	s.Equal("RF743916765US-33.003", summaries[0]["rm_id_preview"])
}

func (s *HandlerSuite) TestRecordsBySubject() {
	created := s.createRecord()
	record := created["record"].(map[string]any)
	subjectID := record["subject_id"].(string)

	w := s.do(http.MethodGet, "/subjects/"+subjectID+"/records", nil)
	s.Require().Equal(http.StatusOK, w.Code)

	var records []map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &records))
	s.Require().Len(records, 1)
	s.Equal("RF743916765US-33.001", records[0]["display_id"])
}

func (s *HandlerSuite) TestAuditTrail() {
	created := s.createRecord()
	id := s.recordID(created)
	s.do(http.MethodPost, "/records/"+id+"/finalize", nil)

	w := s.do(http.MethodGet, "/records/"+id+"/audit", nil)
	s.Require().Equal(http.StatusOK, w.Code)

	var events []map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &events))
	types := make([]string, 0, len(events))
	for _, ev := range events {
		types = append(types, ev["type"].(string))
	}
	s.Contains(types, "created")
	s.Contains(types, "finalized")
}

func (s *HandlerSuite) TestMalformedBodyIsBadRequest() {
	req := httptest.NewRequest(http.MethodPost, "/records", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Equal(http.StatusBadRequest, w.Code)
}
