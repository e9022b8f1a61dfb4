// Package clientcontext holds the read side of the client data this layer
// guards. Contexts and couple links are owned by the wider platform; inside
// the trust boundary they are read-only inputs to the gates.
package clientcontext

import (
	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
)

// Field is one named, sensitivity-tagged value of a client context.
//
// Invariants:
//   - Name is non-empty
//   - Sensitivity is one of the known levels
//
// The sensitivity tag is attached at construction so an outbound path can be
// denied on the tag alone; there is no untagged way to hold client data here.
type Field struct {
	Name        string         `json:"name"`
	Value       any            `json:"value"`
	Sensitivity id.Sensitivity `json:"sensitivity"`
}

// NewField constructs a validated field.
func NewField(name string, value any, sensitivity id.Sensitivity) (Field, error) {
	if name == "" {
		return Field{}, dErrors.New(dErrors.CodeInvariantViolation, "field name cannot be empty")
	}
	if !sensitivity.IsValid() {
		return Field{}, dErrors.Newf(dErrors.CodeInvariantViolation, "field %q has unknown sensitivity %q", name, sensitivity)
	}
	return Field{Name: name, Value: value, Sensitivity: sensitivity}, nil
}

// ClientContext is one versioned snapshot of a client's data.
//
// Invariants:
//   - ClientID and TherapistID are non-nil
//   - Version >= 1
//   - every field passed NewField validation
//
// Contexts are never mutated inside this layer; a new version replaces the
// old one upstream.
type ClientContext struct {
	ClientID    id.ClientID      `json:"client_id"`
	TherapistID id.TherapistID   `json:"therapist_id"`
	Version     int64            `json:"version"`
	Fields      map[string]Field `json:"fields"`
}

// NewClientContext constructs a validated context snapshot. Fields are keyed
// by their own names so a key can never disagree with its field.
func NewClientContext(clientID id.ClientID, therapistID id.TherapistID, version int64, fields []Field) (*ClientContext, error) {
	if clientID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "context requires a client id")
	}
	if therapistID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "context requires a therapist id")
	}
	if version < 1 {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "context version must be >= 1, got %d", version)
	}

	byName := make(map[string]Field, len(fields))
	for _, f := range fields {
		validated, err := NewField(f.Name, f.Value, f.Sensitivity)
		if err != nil {
			return nil, err
		}
		if _, dup := byName[validated.Name]; dup {
			return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "duplicate field %q", validated.Name)
		}
		byName[validated.Name] = validated
	}

	return &ClientContext{
		ClientID:    clientID,
		TherapistID: therapistID,
		Version:     version,
		Fields:      byName,
	}, nil
}

// Clone returns an independent copy so store internals cannot be mutated
// through a returned context.
func (c *ClientContext) Clone() *ClientContext {
	fields := make(map[string]Field, len(c.Fields))
	for name, f := range c.Fields {
		fields[name] = f
	}
	return &ClientContext{
		ClientID:    c.ClientID,
		TherapistID: c.TherapistID,
		Version:     c.Version,
		Fields:      fields,
	}
}

// CoupleLink binds two clients into a couples-therapy pair under one
// therapist.
//
// Invariants:
//   - all ids non-nil
//   - partners are distinct
//
// Whether both partner contexts actually carry the link's TherapistID is
// checked during merge authorization, where stale links are turned away.
type CoupleLink struct {
	CoupleID    id.CoupleID    `json:"couple_id"`
	PartnerA    id.ClientID    `json:"partner_a"`
	PartnerB    id.ClientID    `json:"partner_b"`
	TherapistID id.TherapistID `json:"therapist_id"`
}

// NewCoupleLink constructs a validated couple link.
func NewCoupleLink(coupleID id.CoupleID, partnerA, partnerB id.ClientID, therapistID id.TherapistID) (*CoupleLink, error) {
	if coupleID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "couple link requires a couple id")
	}
	if partnerA.IsNil() || partnerB.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "couple link requires both partner ids")
	}
	if partnerA == partnerB {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "couple partners must be distinct clients")
	}
	if therapistID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "couple link requires a therapist id")
	}
	return &CoupleLink{
		CoupleID:    coupleID,
		PartnerA:    partnerA,
		PartnerB:    partnerB,
		TherapistID: therapistID,
	}, nil
}
