package domain

import dErrors "sanctum/pkg/domain-errors"

// Sensitivity classifies how disclosable a context field is. The scale is
// ordered: Internal < PHIDerived < PHISensitive < PHICritical. A policy's
// MaxSensitivity is a cap on this scale; anything above the cap never leaves
// the boundary under that policy.
//
// Construct via ParseSensitivity at trust boundaries; direct casting bypasses
// validation.
type Sensitivity string

// Supported sensitivity levels.
const (
	// SensitivityPHICritical marks raw session narrative, verbatim quotes,
	// crisis notes. Never crosses any boundary.
	SensitivityPHICritical Sensitivity = "phi_critical"

	// SensitivityPHISensitive marks diagnoses, medication, identifying facts.
	SensitivityPHISensitive Sensitivity = "phi_sensitive"

	// SensitivityPHIDerived marks abstracted themes, patterns and goals
	// produced from PHI but carrying none of it verbatim.
	SensitivityPHIDerived Sensitivity = "phi_derived"

	// SensitivityInternal marks bookkeeping fields with no clinical content.
	SensitivityInternal Sensitivity = "internal"
)

// sensitivityRank orders levels for cap comparison. Higher rank means more
// sensitive. The map is the single source of truth for valid levels.
var sensitivityRank = map[Sensitivity]int{
	SensitivityInternal:     0,
	SensitivityPHIDerived:   1,
	SensitivityPHISensitive: 2,
	SensitivityPHICritical:  3,
}

// ParseSensitivity constructs a Sensitivity from external input.
//
// Errors: CodeInvalidInput when the value is empty or not a supported level.
func ParseSensitivity(s string) (Sensitivity, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "sensitivity cannot be empty")
	}
	v := Sensitivity(s)
	if !v.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid sensitivity level")
	}
	return v, nil
}

// IsValid checks whether the level is one of the supported enum values.
func (s Sensitivity) IsValid() bool {
	_, ok := sensitivityRank[s]
	return ok
}

// Exceeds reports whether s is strictly more sensitive than limit. Unknown
// levels compare as exceeding everything so an unvalidated value can never
// slip under a cap.
func (s Sensitivity) Exceeds(limit Sensitivity) bool {
	sr, sOK := sensitivityRank[s]
	lr, lOK := sensitivityRank[limit]
	if !sOK || !lOK {
		return true
	}
	return sr > lr
}

// String returns the string representation of the level.
func (s Sensitivity) String() string {
	return string(s)
}
