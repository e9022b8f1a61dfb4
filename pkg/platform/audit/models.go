// Package audit provides the append-only disclosure ledger.
//
// Every gated operation (extract, merge, sanitize) records exactly one Entry
// before its result is final. The write path is fail-closed: when an entry
// cannot be durably recorded, the operation that produced it must fail, even
// if its own logic succeeded. No update or delete is exposed anywhere.
package audit

import (
	"context"
	"time"

	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
)

// EventType identifies the boundary decision an Entry records.
type EventType string

const (
	EventContextExtracted EventType = "context_extracted"
	EventExtractDenied    EventType = "extract_denied"
	EventMergeCompleted   EventType = "merge_completed"
	EventMergeRejected    EventType = "merge_rejected"
	EventMergeFailed      EventType = "merge_failed"
	EventQueryAllowed     EventType = "query_allowed"
	EventQueryBlocked     EventType = "query_blocked"
)

// Action is the gated operation family an Entry belongs to.
type Action string

const (
	ActionExtract  Action = "extract"
	ActionMerge    Action = "merge"
	ActionSanitize Action = "sanitize"
)

// Result records whether the gated operation as a whole succeeded. A Blocked
// sanitize decision and a Rejected merge are failures here even though their
// HTTP responses are not error statuses.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// Entry is one immutable row of the disclosure ledger. ID and Timestamp are
// assigned by the Recorder; everything else is supplied by the gate that made
// the decision.
//
// Details must never carry field values, note text, or span excerpts. Field
// names, policy names, span kinds and offsets are fine; anything that could
// reproduce PHI inside the ledger is not.
type Entry struct {
	ID           id.EntryID     `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	EventType    EventType      `json:"event_type"`
	Actor        string         `json:"user_id"` // authenticated therapist id
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Action       Action         `json:"action"`
	Result       Result         `json:"result"`
	IPAddress    string         `json:"ip_address"`
	UserAgent    string         `json:"user_agent"`
	Details      map[string]any `json:"details,omitempty"`
}

// Validate checks the fields the caller is responsible for. ID and Timestamp
// are excluded because the Recorder assigns them.
func (e Entry) Validate() error {
	if e.EventType == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "audit entry requires an event type")
	}
	if e.Actor == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "audit entry requires an actor")
	}
	switch e.Action {
	case ActionExtract, ActionMerge, ActionSanitize:
	default:
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown audit action %q", e.Action)
	}
	switch e.Result {
	case ResultSuccess, ResultFailure:
	default:
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown audit result %q", e.Result)
	}
	return nil
}

// Store persists entries. Append must be idempotent on Entry.ID so the
// Recorder can retry an ambiguous failure without double-appending.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByResource(ctx context.Context, resourceType, resourceID string) ([]Entry, error)
	ListByActor(ctx context.Context, actor string) ([]Entry, error)
	ListRange(ctx context.Context, from, to time.Time, limit int) ([]Entry, error)
}
