package handler

import (
	"time"

	"sanctum/internal/merge"
)

// MergeResponse is the HTTP response for POST /v1/merge.
type MergeResponse struct {
	View         ViewResponse `json:"view"`
	AuditEntryID string       `json:"audit_entry_id"`
}

// ViewResponse is the merged framework view. Field values are unattributed
// unions; nothing in the payload ties a value to one partner.
type ViewResponse struct {
	CoupleID              string           `json:"couple_id"`
	Policy                string           `json:"policy"`
	PolicyVersion         int              `json:"policy_version"`
	Fields                map[string][]any `json:"fields"`
	SourceContextVersions map[string]int64 `json:"source_context_versions"`
	CreatedAt             time.Time        `json:"created_at"`
}

// FromResult converts a domain MergeResult to an HTTP response.
func FromResult(result *merge.MergeResult) *MergeResponse {
	view := result.View
	return &MergeResponse{
		View: ViewResponse{
			CoupleID:              view.CoupleID.String(),
			Policy:                view.PolicyName,
			PolicyVersion:         view.PolicyVersion,
			Fields:                view.Fields,
			SourceContextVersions: view.SourceContextVersions,
			CreatedAt:             view.CreatedAt,
		},
		AuditEntryID: result.AuditEntryID.String(),
	}
}
