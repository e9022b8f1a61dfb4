package admin

import (
	"time"

	"sanctum/pkg/platform/audit"
)

// EntryResponse is the review DTO for one ledger entry. It mirrors the
// stored entry; the ledger never holds PHI, so nothing is redacted here.
type EntryResponse struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	EventType    string         `json:"event_type"`
	Actor        string         `json:"actor"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Action       string         `json:"action"`
	Result       string         `json:"result"`
	IPAddress    string         `json:"ip_address"`
	UserAgent    string         `json:"user_agent"`
	Details      map[string]any `json:"details,omitempty"`
}

// EntriesResponse wraps the entry list for HTTP responses.
type EntriesResponse struct {
	Entries []EntryResponse `json:"entries"`
	Total   int             `json:"total"`
}

// FromEntries maps ledger entries to the review DTO.
func FromEntries(entries []audit.Entry) EntriesResponse {
	out := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, EntryResponse{
			ID:           e.ID.String(),
			Timestamp:    e.Timestamp,
			EventType:    string(e.EventType),
			Actor:        e.Actor,
			ResourceType: e.ResourceType,
			ResourceID:   e.ResourceID,
			Action:       string(e.Action),
			Result:       string(e.Result),
			IPAddress:    e.IPAddress,
			UserAgent:    e.UserAgent,
			Details:      e.Details,
		})
	}
	return EntriesResponse{Entries: out, Total: len(out)}
}
