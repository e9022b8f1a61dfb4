package handler

import (
	"sanctum/internal/isolation"
)

// ExtractResponse is the HTTP response for POST /v1/extract.
type ExtractResponse struct {
	View         ViewResponse `json:"view"`
	AuditEntryID string       `json:"audit_entry_id"`
}

// ViewResponse is the abstracted view portion of the response. Values carry
// only whitelisted, cap-checked data by construction.
type ViewResponse struct {
	ClientID       string         `json:"client_id"`
	ContextVersion int64          `json:"context_version"`
	Policy         string         `json:"policy"`
	PolicyVersion  int            `json:"policy_version"`
	Fields         map[string]any `json:"fields"`
}

// FromResult converts a domain ExtractResult to an HTTP response.
func FromResult(result *isolation.ExtractResult) *ExtractResponse {
	view := result.View
	fields := make(map[string]any, len(view.Fields))
	for name, field := range view.Fields {
		fields[name] = field.Value
	}
	return &ExtractResponse{
		View: ViewResponse{
			ClientID:       view.ClientID.String(),
			ContextVersion: view.ContextVersion,
			Policy:         view.PolicyName,
			PolicyVersion:  view.PolicyVersion,
			Fields:         fields,
		},
		AuditEntryID: result.AuditEntryID.String(),
	}
}
