package handler

import (
	"strings"

	dErrors "sanctum/pkg/domain-errors"
)

// QueryRequest is the payload for POST /sanitize-query.
type QueryRequest struct {
	Text string `json:"text"`
}

// Validate checks the request. The text is passed through untouched so that
// reported span offsets stay valid; only an effectively empty text is
// rejected.
func (r *QueryRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return dErrors.New(dErrors.CodeValidation, "text is required")
	}
	return nil
}
