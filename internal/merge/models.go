// Package merge builds couples framework views: both partner contexts pass
// through the extraction gate under a couples-scope policy and only the
// combined, abstracted result ever leaves the package. Per-partner views stay
// local to a single invocation and are never stored.
package merge

import (
	"fmt"
	"sort"
	"time"

	"sanctum/internal/isolation"
	id "sanctum/pkg/domain"
)

// State is one step of a merge invocation. Every invocation starts at
// StateRequested and ends at exactly one of the terminal states.
type State string

const (
	StateRequested   State = "requested"
	StateAuthorized  State = "authorized"
	StateExtractingA State = "extracting_a"
	StateExtractingB State = "extracting_b"
	StateMerging     State = "merging"
	StateCompleted   State = "completed"
	StateRejected    State = "rejected"
	StateFailed      State = "failed"
)

// Terminal reports whether the state ends an invocation.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateRejected, StateFailed:
		return true
	}
	return false
}

// TransitionHook observes state transitions of a merge invocation. Hooks run
// inline while the invocation holds its couple lock, so a slow hook slows the
// merge.
type TransitionHook func(coupleID id.CoupleID, state State)

// invocation tracks one merge through its states. It lives on the stack of a
// single Merge call and is never shared across calls.
type invocation struct {
	coupleID id.CoupleID
	state    State
	hook     TransitionHook
}

func newInvocation(coupleID id.CoupleID, hook TransitionHook) *invocation {
	inv := &invocation{coupleID: coupleID, hook: hook}
	inv.to(StateRequested)
	return inv
}

func (inv *invocation) to(s State) {
	inv.state = s
	if inv.hook != nil {
		inv.hook(inv.coupleID, s)
	}
}

// MergeRequest asks for a couples framework view. The policy reference is
// optional; when both are empty the engine falls back to its configured
// couples policy.
type MergeRequest struct {
	CoupleID   id.CoupleID
	PolicyID   id.PolicyID
	PolicyName string
}

// MergedFrameworkView is the only artifact a merge produces. Field values are
// unattributed unions of both partners' abstracted values; nothing in the
// view says which partner contributed what.
type MergedFrameworkView struct {
	CoupleID              id.CoupleID      `json:"couple_id"`
	PolicyName            string           `json:"policy"`
	PolicyVersion         int              `json:"policy_version"`
	Fields                map[string][]any `json:"fields"`
	SourceContextVersions map[string]int64 `json:"source_context_versions"`
	CreatedAt             time.Time        `json:"created_at"`
}

// FieldNames returns the merged field names in sorted order.
func (v *MergedFrameworkView) FieldNames() []string {
	names := make([]string, 0, len(v.Fields))
	for name := range v.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MergeResult pairs the view with the ledger entry that recorded the
// decision. On a rejected or failed merge the view is nil and the entry id
// references the recorded rejection or failure.
type MergeResult struct {
	View         *MergedFrameworkView
	AuditEntryID id.EntryID
}

// combine folds two per-partner views into one unattributed framework view.
// List-valued fields become a deduplicated, sorted union; scalar values are
// collected the same way. The inputs are discarded by the caller right after.
func combine(coupleID id.CoupleID, a, b *isolation.AbstractedView, now time.Time) *MergedFrameworkView {
	names := map[string]struct{}{}
	for name := range a.Fields {
		names[name] = struct{}{}
	}
	for name := range b.Fields {
		names[name] = struct{}{}
	}

	fields := make(map[string][]any, len(names))
	for name := range names {
		fields[name] = unionValues(a, b, name)
	}

	return &MergedFrameworkView{
		CoupleID:      coupleID,
		PolicyName:    a.PolicyName,
		PolicyVersion: a.PolicyVersion,
		Fields:        fields,
		SourceContextVersions: map[string]int64{
			a.ClientID.String(): a.ContextVersion,
			b.ClientID.String(): b.ContextVersion,
		},
		CreatedAt: now,
	}
}

func unionValues(a, b *isolation.AbstractedView, name string) []any {
	seen := map[string]struct{}{}
	merged := make([]any, 0, 4)
	for _, view := range []*isolation.AbstractedView{a, b} {
		field, ok := view.Fields[name]
		if !ok {
			continue
		}
		for _, el := range elements(field.Value) {
			key := fmt.Sprintf("%v", el)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, el)
		}
	}
	sort.Slice(merged, func(i, j int) bool {
		return fmt.Sprintf("%v", merged[i]) < fmt.Sprintf("%v", merged[j])
	})
	return merged
}

// elements flattens list-valued fields so unions work element-wise. Scalars
// pass through as single elements.
func elements(v any) []any {
	switch vv := v.(type) {
	case []string:
		out := make([]any, len(vv))
		for i, s := range vv {
			out[i] = s
		}
		return out
	case []any:
		return vv
	default:
		return []any{v}
	}
}
