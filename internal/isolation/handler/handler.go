package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sanctum/internal/isolation"
	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
	"sanctum/pkg/platform/httputil"
	"sanctum/pkg/requestcontext"
)

// Service defines the interface for extraction operations.
type Service interface {
	Extract(ctx context.Context, req isolation.ExtractRequest) (*isolation.ExtractResult, error)
}

// Handler wires the extraction endpoint to the isolation service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an extraction handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the extraction endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/extract", h.HandleExtract)
}

// HandleExtract handles POST /v1/extract requests.
func (h *Handler) HandleExtract(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	if requestcontext.TherapistID(ctx).IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[ExtractRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Extract(ctx, req.Domain())
	if err != nil {
		h.logger.WarnContext(ctx, "extract denied",
			"request_id", requestID,
			"client_id", req.ClientID,
			"error", err,
		)
		// A recorded denial still hands the caller its ledger reference.
		var entryID id.EntryID
		if result != nil {
			entryID = result.AuditEntryID
		}
		httputil.WriteDenied(w, err, entryIDString(entryID))
		return
	}

	h.logger.InfoContext(ctx, "context extracted",
		"request_id", requestID,
		"client_id", req.ClientID,
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
