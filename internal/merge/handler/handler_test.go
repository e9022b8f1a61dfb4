package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sanctum/internal/clientcontext"
	"sanctum/internal/merge"
	"sanctum/internal/policy"
	id "sanctum/pkg/domain"
	"sanctum/pkg/platform/audit"
	auditmem "sanctum/pkg/platform/audit/store/memory"
	"sanctum/pkg/requestcontext"
)

type mergeEnv struct {
	router    http.Handler
	therapist id.TherapistID
	couple    id.CoupleID
	partnerA  id.ClientID
	partnerB  id.ClientID
}

func newMergeEnv(t *testing.T) *mergeEnv {
	t.Helper()
	env := &mergeEnv{
		therapist: id.TherapistID(uuid.New()),
		couple:    id.CoupleID(uuid.New()),
		partnerA:  id.ClientID(uuid.New()),
		partnerB:  id.ClientID(uuid.New()),
	}

	contexts := clientcontext.NewInMemory()
	ccA, err := clientcontext.NewClientContext(env.partnerA, env.therapist, 1, []clientcontext.Field{
		{Name: "notes", Value: "raw clinical narrative", Sensitivity: id.SensitivityPHICritical},
		{Name: "themes", Value: []string{"communication", "trust"}, Sensitivity: id.SensitivityPHIDerived},
	})
	require.NoError(t, err)
	require.NoError(t, contexts.PutContext(context.Background(), ccA))

	ccB, err := clientcontext.NewClientContext(env.partnerB, env.therapist, 1, []clientcontext.Field{
		{Name: "themes", Value: []string{"finances"}, Sensitivity: id.SensitivityPHIDerived},
	})
	require.NoError(t, err)
	require.NoError(t, contexts.PutContext(context.Background(), ccB))

	link, err := clientcontext.NewCoupleLink(env.couple, env.partnerA, env.partnerB, env.therapist)
	require.NoError(t, err)
	require.NoError(t, contexts.PutCoupleLink(context.Background(), link))

	policies := policy.NewInMemory()
	require.NoError(t, policy.SeedStore(context.Background(), policies))

	recorder := audit.NewRecorder(auditmem.NewInMemoryStore(),
		audit.WithRetry(2, time.Millisecond, 2*time.Millisecond))
	engine := merge.NewEngine(contexts, policies, recorder)

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h := New(engine, logger)

	r := chi.NewRouter()
	r.Use(injectTherapist(env.therapist))
	h.Register(r)
	env.router = r
	return env
}

// injectTherapist stands in for the JWT middleware.
func injectTherapist(therapist id.TherapistID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Test-Anonymous") != "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := requestcontext.WithTherapistID(r.Context(), therapist)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (env *mergeEnv) post(t *testing.T, payload map[string]any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/merge", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func TestHandleMergeSuccess(t *testing.T) {
	env := newMergeEnv(t)

	rec := env.post(t, map[string]any{"couple_id": env.couple.String()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp MergeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.AuditEntryID)
	assert.Equal(t, env.couple.String(), resp.View.CoupleID)
	assert.Equal(t, policy.SeedCouplesPolicyName, resp.View.Policy)
	assert.ElementsMatch(t, []any{"communication", "finances", "trust"}, resp.View.Fields["themes"])
	assert.NotContains(t, resp.View.Fields, "notes")
	assert.Len(t, resp.View.SourceContextVersions, 2)
}

func TestHandleMergeRejectedCarriesLedgerReference(t *testing.T) {
	env := newMergeEnv(t)

	// A couple the injected therapist does not hold.
	rec := env.post(t, map[string]any{"couple_id": uuid.NewString()})
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	var resp struct {
		Error        string `json:"error"`
		AuditEntryID string `json:"audit_entry_id"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "authorization_error", resp.Error)
	assert.NotEmpty(t, resp.AuditEntryID, "rejections carry their ledger reference")
}

func TestHandleMergeNonCouplesPolicy(t *testing.T) {
	env := newMergeEnv(t)

	rec := env.post(t, map[string]any{
		"couple_id":   env.couple.String(),
		"policy_name": policy.SeedIndividualPolicyName,
	})
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "policy_violation", resp.Error)
}

func TestHandleMergeRequiresAuth(t *testing.T) {
	env := newMergeEnv(t)

	rec := env.post(t, map[string]any{"couple_id": env.couple.String()}, "X-Test-Anonymous", "1")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleMergeValidation(t *testing.T) {
	env := newMergeEnv(t)

	t.Run("missing couple id", func(t *testing.T) {
		rec := env.post(t, map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed couple id", func(t *testing.T) {
		rec := env.post(t, map[string]any{"couple_id": "not-a-uuid"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("both policy id and name", func(t *testing.T) {
		rec := env.post(t, map[string]any{
			"couple_id":   env.couple.String(),
			"policy_id":   uuid.NewString(),
			"policy_name": policy.SeedCouplesPolicyName,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
