package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sanctum/internal/merge"
	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
	"sanctum/pkg/platform/httputil"
	"sanctum/pkg/requestcontext"
)

// Engine defines the interface for merge operations.
type Engine interface {
	Merge(ctx context.Context, req merge.MergeRequest) (*merge.MergeResult, error)
}

// Handler wires the merge endpoint to the merge engine.
type Handler struct {
	engine Engine
	logger *slog.Logger
}

// New constructs a merge handler.
func New(engine Engine, logger *slog.Logger) *Handler {
	return &Handler{
		engine: engine,
		logger: logger,
	}
}

// Register mounts the merge endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/merge", h.HandleMerge)
}

// HandleMerge handles POST /v1/merge requests.
func (h *Handler) HandleMerge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	if requestcontext.TherapistID(ctx).IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[MergeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.engine.Merge(ctx, req.Domain())
	if err != nil {
		h.logger.WarnContext(ctx, "merge not completed",
			"request_id", requestID,
			"couple_id", req.CoupleID,
			"error", err,
		)
		// A recorded rejection still hands the caller its ledger reference.
		var entryID id.EntryID
		if result != nil {
			entryID = result.AuditEntryID
		}
		httputil.WriteDenied(w, err, entryIDString(entryID))
		return
	}

	h.logger.InfoContext(ctx, "merge completed",
		"request_id", requestID,
		"couple_id", req.CoupleID,
		"policy", result.View.PolicyName,
		"field_count", len(result.View.Fields),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, FromResult(result))
}

func entryIDString(entryID id.EntryID) string {
	if entryID.IsNil() {
		return ""
	}
	return entryID.String()
}
