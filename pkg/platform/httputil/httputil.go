// Package httputil centralizes JSON encoding and error mapping for HTTP
// handlers. Handlers never set status codes by hand for domain errors; the
// mapping from error code to status lives here and nowhere else.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "sanctum/pkg/domain-errors"
)

// Validatable is implemented by request types that validate themselves after
// decoding. DecodeAndPrepare calls Validate when the decoded type provides it.
type Validatable interface {
	Validate() error
}

// errorResponse is the wire shape for all error responses. AuditEntryID is
// set only by WriteDenied, for gate denials that were durably recorded.
type errorResponse struct {
	Error        string `json:"error"`
	Description  string `json:"error_description,omitempty"`
	AuditEntryID string `json:"audit_entry_id,omitempty"`
}

// statusEntry pairs the HTTP status with the outward wire code.
type statusEntry struct {
	status int
	wire   string
}

// statusByCode maps domain error codes to transport. Internal-class errors
// deliberately omit descriptions so store and invariant detail never reaches
// a client.
var statusByCode = map[dErrors.Code]statusEntry{
	dErrors.CodeValidation:         {http.StatusBadRequest, "validation_error"},
	dErrors.CodeInvalidInput:       {http.StatusBadRequest, "invalid_input"},
	dErrors.CodeInvalidRequest:     {http.StatusBadRequest, "invalid_request"},
	dErrors.CodeBadRequest:         {http.StatusBadRequest, "bad_request"},
	dErrors.CodeNotFound:           {http.StatusNotFound, "not_found"},
	dErrors.CodeConflict:           {http.StatusConflict, "conflict"},
	dErrors.CodeUnauthorized:       {http.StatusUnauthorized, "unauthorized"},
	dErrors.CodeForbidden:          {http.StatusForbidden, "forbidden"},
	dErrors.CodeTimeout:            {http.StatusGatewayTimeout, "timeout"},
	dErrors.CodeUnavailable:        {http.StatusServiceUnavailable, "unavailable"},
	dErrors.CodeInternal:           {http.StatusInternalServerError, "internal_error"},
	dErrors.CodeInvariantViolation: {http.StatusInternalServerError, "internal_error"},

	dErrors.CodePolicyViolation:   {http.StatusForbidden, "policy_violation"},
	dErrors.CodeAuthorization:     {http.StatusForbidden, "authorization_error"},
	dErrors.CodeDetectionFailure:  {http.StatusBadGateway, "detection_failure"},
	dErrors.CodeAuditWriteFailure: {http.StatusServiceUnavailable, "audit_write_failure"},
}

// WriteJSON encodes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	// Headers are committed; an encode failure here can only truncate the body.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a domain error to its HTTP representation. Errors without
// a recognized code are treated as internal.
func WriteError(w http.ResponseWriter, err error) {
	WriteDenied(w, err, "")
}

// WriteDenied is WriteError for gate denials: it additionally carries the id
// of the audit entry that recorded the denial, so every boundary decision,
// allowed or denied, hands the caller its ledger reference.
func WriteDenied(w http.ResponseWriter, err error, auditEntryID string) {
	code := dErrors.CodeOf(err)
	entry, ok := statusByCode[code]
	if !ok {
		entry = statusEntry{http.StatusInternalServerError, "internal_error"}
	}

	resp := errorResponse{Error: entry.wire, AuditEntryID: auditEntryID}
	if entry.status != http.StatusInternalServerError {
		resp.Description = errorMessage(err)
	}

	WriteJSON(w, entry.status, resp)
}

// errorMessage returns the outward-safe message: the coded message when the
// error is a domain error, the full text otherwise.
func errorMessage(err error) string {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return de.Message()
	}
	return err.Error()
}

// DecodeAndPrepare decodes the request body into T and validates it when *T
// implements Validatable. On failure it writes the error response and returns
// ok=false; handlers just return.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if logger != nil {
			logger.WarnContext(ctx, "request decode failed",
				"request_id", requestID,
				"error", err,
			)
		}
		WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body"))
		return nil, false
	}

	if v, ok := any(&req).(Validatable); ok {
		if err := v.Validate(); err != nil {
			if logger != nil {
				logger.WarnContext(ctx, "request validation failed",
					"request_id", requestID,
					"error", err,
				)
			}
			WriteError(w, err)
			return nil, false
		}
	}

	return &req, true
}
