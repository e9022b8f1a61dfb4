// Package isolation is the whitelist extraction gate. Everything that leaves
// a client's therapeutic context passes through Project, which admits only
// policy-listed fields at or below the policy's sensitivity cap and fails
// closed on anything else.
package isolation

import (
	"sort"

	"sanctum/internal/clientcontext"
	id "sanctum/pkg/domain"
)

// AbstractedView is a projection of one client context through one whitelist
// policy. Its field set is always a subset of the policy's AllowedFields and
// nothing in it exceeds the policy's sensitivity cap.
type AbstractedView struct {
	ClientID       id.ClientID                    `json:"client_id"`
	ContextVersion int64                          `json:"context_version"`
	PolicyName     string                         `json:"policy"`
	PolicyVersion  int                            `json:"policy_version"`
	Fields         map[string]clientcontext.Field `json:"fields"`
}

// FieldNames returns the projected field names in stable sorted order.
func (v *AbstractedView) FieldNames() []string {
	names := make([]string, 0, len(v.Fields))
	for name := range v.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExtractRequest names the context to project and the policy to project it
// through. Exactly one of PolicyID or PolicyName must be set; Fields empty
// means every policy-allowed field present in the context.
type ExtractRequest struct {
	ClientID       id.ClientID
	ContextVersion int64 // clientcontext.LatestVersion for the newest snapshot
	PolicyID       id.PolicyID
	PolicyName     string
	Fields         []string
}

// ExtractResult couples the view with the ledger entry that made it final.
type ExtractResult struct {
	View         *AbstractedView
	AuditEntryID id.EntryID
}
