package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"sanctum/internal/merge"
	"sanctum/internal/merge/handler/mocks"
	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
	"sanctum/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/merge-mocks.go -package=mocks Engine

// MergeHandlerSuite drives the handler against an engine double, pinning the
// response mapping for each engine outcome without any store plumbing.
type MergeHandlerSuite struct {
	suite.Suite
	therapist id.TherapistID
	couple    id.CoupleID
}

func (s *MergeHandlerSuite) SetupSuite() {
	s.therapist = id.TherapistID(uuid.New())
	s.couple = id.CoupleID(uuid.New())
}

func TestMergeHandlerSuite(t *testing.T) {
	suite.Run(t, new(MergeHandlerSuite))
}

func (s *MergeHandlerSuite) newHandler() (*Handler, *mocks.MockEngine) {
	ctrl := gomock.NewController(s.T())
	s.T().Cleanup(ctrl.Finish)
	engine := mocks.NewMockEngine(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(engine, logger), engine
}

func (s *MergeHandlerSuite) serve(h *Handler, payload map[string]any) *httptest.ResponseRecorder {
	s.T().Helper()
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/merge", payload)
	req = testutil.WithTherapist(req, s.therapist.String())

	r := chi.NewRouter()
	h.Register(r)
	return testutil.DoRequest(r, req)
}

func (s *MergeHandlerSuite) TestCompletedMergeMapsToView() {
	h, engine := s.newHandler()
	entryID := id.EntryID(uuid.New())
	created := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	var captured merge.MergeRequest
	engine.EXPECT().
		Merge(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req merge.MergeRequest) (*merge.MergeResult, error) {
			captured = req
			return &merge.MergeResult{
				View: &merge.MergedFrameworkView{
					CoupleID:      s.couple,
					PolicyName:    "couples-merge-v1",
					PolicyVersion: 1,
					Fields: map[string][]any{
						"themes": {"communication", "finances"},
					},
					SourceContextVersions: map[string]int64{"a": 1, "b": 2},
					CreatedAt:             created,
				},
				AuditEntryID: entryID,
			}, nil
		})

	rec := s.serve(h, map[string]any{"couple_id": s.couple.String()})
	testutil.AssertStatus(s.T(), rec, http.StatusOK)
	assert.Equal(s.T(), s.couple, captured.CoupleID)

	resp := testutil.DecodeJSON[MergeResponse](s.T(), rec)
	assert.Equal(s.T(), entryID.String(), resp.AuditEntryID)
	assert.Equal(s.T(), "couples-merge-v1", resp.View.Policy)
	assert.ElementsMatch(s.T(), []any{"communication", "finances"}, resp.View.Fields["themes"])
}

func (s *MergeHandlerSuite) TestRejectedMergeCarriesLedgerReference() {
	h, engine := s.newHandler()
	entryID := id.EntryID(uuid.New())

	engine.EXPECT().
		Merge(gomock.Any(), gomock.Any()).
		Return(&merge.MergeResult{AuditEntryID: entryID},
			dErrors.New(dErrors.CodeAuthorization, "couple does not resolve for this therapist"))

	rec := s.serve(h, map[string]any{"couple_id": s.couple.String()})
	recorded := testutil.AssertDenied(s.T(), rec, http.StatusForbidden, "authorization_error")
	assert.Equal(s.T(), entryID.String(), recorded)
}

func (s *MergeHandlerSuite) TestFailedMergeMapsToUnavailable() {
	h, engine := s.newHandler()
	entryID := id.EntryID(uuid.New())

	engine.EXPECT().
		Merge(gomock.Any(), gomock.Any()).
		Return(&merge.MergeResult{AuditEntryID: entryID},
			dErrors.New(dErrors.CodeUnavailable, "partner context read failed"))

	rec := s.serve(h, map[string]any{"couple_id": s.couple.String()})
	recorded := testutil.AssertDenied(s.T(), rec, http.StatusServiceUnavailable, "unavailable")
	assert.Equal(s.T(), entryID.String(), recorded)
}

func (s *MergeHandlerSuite) TestUnrecordedFailureCarriesNoLedgerReference() {
	h, engine := s.newHandler()

	engine.EXPECT().
		Merge(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeAuditWriteFailure, "ledger write exhausted retries"))

	rec := s.serve(h, map[string]any{"couple_id": s.couple.String()})
	recorded := testutil.AssertDenied(s.T(), rec, http.StatusServiceUnavailable, "audit_write_failure")
	assert.Empty(s.T(), recorded, "an unrecorded failure carries no ledger reference")
}
