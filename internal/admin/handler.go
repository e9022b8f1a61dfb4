// Package admin exposes the compliance read path over the disclosure ledger.
// It is mounted behind the admin token middleware, never behind therapist
// auth: reviewers are not actors in the ledger they inspect.
package admin

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	dErrors "sanctum/pkg/domain-errors"
	"sanctum/pkg/platform/audit"
	"sanctum/pkg/platform/httputil"
	"sanctum/pkg/requestcontext"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Ledger is the read-only slice of the audit recorder the review surface
// needs. No append: this package must not be able to write history.
type Ledger interface {
	ListByResource(ctx context.Context, resourceType, resourceID string) ([]audit.Entry, error)
	ListByActor(ctx context.Context, actor string) ([]audit.Entry, error)
	ListRange(ctx context.Context, from, to time.Time, limit int) ([]audit.Entry, error)
}

// Handler serves the audit review endpoint.
type Handler struct {
	ledger Ledger
	logger *slog.Logger
}

// New constructs an audit review handler.
func New(ledger Ledger, logger *slog.Logger) *Handler {
	return &Handler{
		ledger: ledger,
		logger: logger,
	}
}

// Register mounts the review endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit", h.HandleListEntries)
}

// HandleListEntries handles GET /admin/audit requests. Exactly one filter
// family applies per request: resource, actor, or time range, in that order
// of precedence.
func (h *Handler) HandleListEntries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	q := r.URL.Query()

	var (
		entries []audit.Entry
		err     error
	)
	switch {
	case q.Get("resource_id") != "":
		resourceType := q.Get("resource_type")
		if resourceType == "" {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "resource_id requires resource_type"))
			return
		}
		entries, err = h.ledger.ListByResource(ctx, resourceType, q.Get("resource_id"))
	case q.Get("actor") != "":
		entries, err = h.ledger.ListByActor(ctx, q.Get("actor"))
	default:
		var from, to time.Time
		if from, to, err = parseRange(q.Get("from"), q.Get("to"), requestcontext.Now(ctx)); err != nil {
			httputil.WriteError(w, err)
			return
		}
		limit := defaultListLimit
		if raw := q.Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit <= 0 {
				httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer"))
				return
			}
			limit = min(limit, maxListLimit)
		}
		entries, err = h.ledger.ListRange(ctx, from, to, limit)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "audit review query failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "audit store unavailable"))
		return
	}

	h.logger.InfoContext(ctx, "audit entries listed",
		"request_id", requestID,
		"entry_count", len(entries),
	)

	httputil.WriteJSON(w, http.StatusOK, FromEntries(entries))
}

// parseRange interprets the optional from/to query values. An absent from
// means the beginning of the ledger; an absent to means now.
func parseRange(rawFrom, rawTo string, now time.Time) (time.Time, time.Time, error) {
	var from, to time.Time
	if rawFrom != "" {
		parsed, err := time.Parse(time.RFC3339, rawFrom)
		if err != nil {
			return from, to, dErrors.New(dErrors.CodeValidation, "from must be RFC 3339")
		}
		from = parsed
	}
	to = now
	if rawTo != "" {
		parsed, err := time.Parse(time.RFC3339, rawTo)
		if err != nil {
			return from, to, dErrors.New(dErrors.CodeValidation, "to must be RFC 3339")
		}
		to = parsed
	}
	if to.Before(from) {
		return from, to, dErrors.New(dErrors.CodeValidation, "to must not precede from")
	}
	return from, to, nil
}
