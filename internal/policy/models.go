// Package policy holds whitelist disclosure policies: the named, versioned
// field lists that decide what may cross each trust boundary.
package policy

import (
	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
	strutil "sanctum/pkg/platform/strings"
)

// Mode controls how an extraction treats requested fields missing from the
// whitelist.
type Mode string

const (
	// ModeStrict fails the whole call when any requested field is unlisted.
	// The only mode allowed on couples and external paths.
	ModeStrict Mode = "strict"

	// ModePermissive silently drops unlisted requested fields. Individual
	// therapist views only.
	ModePermissive Mode = "permissive"
)

// IsValid checks whether the mode is a supported value.
func (m Mode) IsValid() bool {
	return m == ModeStrict || m == ModePermissive
}

// Scope names the trust boundary a policy is written for.
type Scope string

const (
	ScopeIndividual Scope = "individual"
	ScopeCouples    Scope = "couples"
	ScopeExternal   Scope = "external"
)

// IsValid checks whether the scope is a supported value.
func (s Scope) IsValid() bool {
	return s == ScopeIndividual || s == ScopeCouples || s == ScopeExternal
}

// WhitelistPolicy is a named, versioned list of fields permitted to cross
// one trust boundary. Absence means exclusion: a context field added after
// the policy was written stays excluded until a new policy version names it.
//
// Invariants:
//   - Name non-empty, at most 128 characters
//   - Version >= 1
//   - at least one allowed field after trimming and deduplication
//   - couples and external scopes are strict with MaxSensitivity PHIDerived
//   - permissive mode is individual-scope only
type WhitelistPolicy struct {
	ID             id.PolicyID    `json:"id"`
	Name           string         `json:"name"`
	Version        int            `json:"version"`
	Mode           Mode           `json:"mode"`
	Scope          Scope          `json:"scope"`
	AllowedFields  []string       `json:"allowed_fields"`
	MaxSensitivity id.Sensitivity `json:"max_sensitivity"`
	Active         bool           `json:"active"`
}

// NewWhitelistPolicy constructs a validated, active policy.
func NewWhitelistPolicy(policyID id.PolicyID, name string, version int, mode Mode, scope Scope, allowedFields []string, maxSensitivity id.Sensitivity) (*WhitelistPolicy, error) {
	if policyID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "policy requires an id")
	}
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "policy name cannot be empty")
	}
	if len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "policy name must be 128 characters or less")
	}
	if version < 1 {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "policy version must be >= 1, got %d", version)
	}
	if !mode.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "unknown policy mode %q", mode)
	}
	if !scope.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "unknown policy scope %q", scope)
	}
	if !maxSensitivity.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "unknown sensitivity cap %q", maxSensitivity)
	}

	fields := strutil.DedupeAndTrim(allowedFields)
	if len(fields) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "policy must allow at least one field")
	}

	// Boundary-crossing scopes never get looser than strict + derived data.
	if scope == ScopeCouples || scope == ScopeExternal {
		if mode != ModeStrict {
			return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "%s-scope policies must be strict", scope)
		}
		if maxSensitivity != id.SensitivityPHIDerived {
			return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "%s-scope policies must cap sensitivity at %s", scope, id.SensitivityPHIDerived)
		}
	}
	if mode == ModePermissive && scope != ScopeIndividual {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "permissive mode is limited to individual-scope policies")
	}

	return &WhitelistPolicy{
		ID:             policyID,
		Name:           name,
		Version:        version,
		Mode:           mode,
		Scope:          scope,
		AllowedFields:  fields,
		MaxSensitivity: maxSensitivity,
		Active:         true,
	}, nil
}

// Allows reports whether the field name is on the whitelist.
func (p *WhitelistPolicy) Allows(name string) bool {
	for _, f := range p.AllowedFields {
		if f == name {
			return true
		}
	}
	return false
}

// Clone returns an independent copy so store internals cannot be mutated
// through a returned policy.
func (p *WhitelistPolicy) Clone() *WhitelistPolicy {
	cp := *p
	cp.AllowedFields = append([]string{}, p.AllowedFields...)
	return &cp
}
