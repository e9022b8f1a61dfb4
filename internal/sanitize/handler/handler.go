package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sanctum/internal/sanitize"
	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
	"sanctum/pkg/platform/httputil"
	"sanctum/pkg/requestcontext"
)

// Service defines the interface for sanitized query operations.
type Service interface {
	SanitizeAndQuery(ctx context.Context, text string) (*sanitize.QueryResult, error)
}

// Handler wires the sanitize-query endpoint to the gate service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a sanitize-query handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the sanitize-query endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/sanitize-query", h.HandleSanitizeQuery)
}

// HandleSanitizeQuery handles POST /v1/sanitize-query requests. A blocked
// query is a 200 with decision "blocked"; only transport and ledger failures
// become error responses.
func (h *Handler) HandleSanitizeQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	if requestcontext.TherapistID(ctx).IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[QueryRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.SanitizeAndQuery(ctx, req.Text)
	if err != nil {
		h.logger.WarnContext(ctx, "sanitized query failed",
			"request_id", requestID,
			"error", err,
		)
		// An allow that died on the wire still hands back its ledger reference.
		var entryID id.EntryID
		if result != nil {
			entryID = result.AuditEntryID
		}
		httputil.WriteDenied(w, err, entryIDString(entryID))
		return
	}

	h.logger.InfoContext(ctx, "sanitized query decided",
		"request_id", requestID,
		"decision", result.Decision,
		"span_count", len(result.Spans),
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
