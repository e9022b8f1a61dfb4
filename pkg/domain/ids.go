// Package domain holds the shared vocabulary of the trust boundary: typed
// identifiers and the sensitivity scale. Typed IDs exist so a client id can
// never be passed where a couple id is expected; the compiler enforces what
// code review would otherwise have to catch.
package domain

import (
	"github.com/google/uuid"

	dErrors "sanctum/pkg/domain-errors"
)

// TherapistID identifies the clinician acting through this layer.
type TherapistID uuid.UUID

// ClientID identifies a therapy client whose context is isolated.
type ClientID uuid.UUID

// CoupleID identifies a couples-therapy link between two clients.
type CoupleID uuid.UUID

// PolicyID identifies a whitelist disclosure policy.
type PolicyID uuid.UUID

// EntryID identifies an audit trail entry.
type EntryID uuid.UUID

// parseUUID enforces the shared invariant: IDs must be valid, non-empty,
// non-nil UUIDs. All Parse functions funnel through here so every ID type
// rejects the same inputs.
func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind+" id")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id cannot be nil")
	}
	return u, nil
}

// ParseTherapistID constructs a TherapistID from external input.
func ParseTherapistID(s string) (TherapistID, error) {
	u, err := parseUUID(s, "therapist")
	return TherapistID(u), err
}

// ParseClientID constructs a ClientID from external input.
func ParseClientID(s string) (ClientID, error) {
	u, err := parseUUID(s, "client")
	return ClientID(u), err
}

// ParseCoupleID constructs a CoupleID from external input.
func ParseCoupleID(s string) (CoupleID, error) {
	u, err := parseUUID(s, "couple")
	return CoupleID(u), err
}

// ParsePolicyID constructs a PolicyID from external input.
func ParsePolicyID(s string) (PolicyID, error) {
	u, err := parseUUID(s, "policy")
	return PolicyID(u), err
}

// ParseEntryID constructs an EntryID from external input.
func ParseEntryID(s string) (EntryID, error) {
	u, err := parseUUID(s, "entry")
	return EntryID(u), err
}

func (id TherapistID) String() string { return uuid.UUID(id).String() }
func (id ClientID) String() string    { return uuid.UUID(id).String() }
func (id CoupleID) String() string    { return uuid.UUID(id).String() }
func (id PolicyID) String() string    { return uuid.UUID(id).String() }
func (id EntryID) String() string     { return uuid.UUID(id).String() }

func (id TherapistID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ClientID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id CoupleID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id PolicyID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id EntryID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

// Text marshaling keeps IDs as canonical uuid strings in JSON payloads.
// Unmarshal is mechanical decode only; the nil check stays in the Parse
// functions, which are what request boundaries must use.

func (id TherapistID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id ClientID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id CoupleID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id PolicyID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id EntryID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }

func (id *TherapistID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*id = TherapistID(u)
	return nil
}

func (id *ClientID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*id = ClientID(u)
	return nil
}

func (id *CoupleID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*id = CoupleID(u)
	return nil
}

func (id *PolicyID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*id = PolicyID(u)
	return nil
}

func (id *EntryID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*id = EntryID(u)
	return nil
}
