package handler

import (
	"sanctum/internal/sanitize"
)

// QueryResponse is the payload returned for POST /sanitize-query. Both
// decisions are successful responses; a blocked query reports the span
// locations so the caller can rewrite, never the matched text.
type QueryResponse struct {
	Decision     string         `json:"decision"`
	Reason       string         `json:"reason,omitempty"`
	Spans        []SpanResponse `json:"spans,omitempty"`
	Response     string         `json:"response,omitempty"`
	AuditEntryID string         `json:"audit_entry_id"`
}

// SpanResponse locates one detected span by offset.
type SpanResponse struct {
	Kind  string `json:"kind"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// FromResult converts a domain query result into the response payload.
func FromResult(result *sanitize.QueryResult) QueryResponse {
	resp := QueryResponse{
		Decision:     string(result.Decision),
		Reason:       result.Reason,
		Response:     result.Response,
		AuditEntryID: result.AuditEntryID.String(),
	}
	if len(result.Spans) > 0 {
		resp.Spans = make([]SpanResponse, len(result.Spans))
		for i, s := range result.Spans {
			resp.Spans[i] = SpanResponse{
				Kind:  string(s.Kind),
				Start: s.Start,
				End:   s.End,
			}
		}
	}
	return resp
}
