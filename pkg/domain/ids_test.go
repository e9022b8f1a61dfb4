package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "sanctum/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseClientID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseClientID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseClientID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseClientID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, ClientID(validUUID), id)
	})
}

// TestTypeDistinction verifies the compiler enforces type safety.
// This is a compile-time check - if this compiles, the invariant holds.
func TestTypeDistinction(t *testing.T) {
	clientID := ClientID(uuid.New())
	coupleID := CoupleID(uuid.New())

	// These would fail to compile if types were interchangeable:
	// var _ ClientID = coupleID   // compile error
	// var _ CoupleID = clientID   // compile error

	// Verify they're distinct at runtime too
	assert.NotEqual(t, uuid.UUID(clientID), uuid.UUID(coupleID))
}

// TestParseID_SecurityInvariants validates security-critical parsing rules.
//
// Parsing must reject attack vectors at API entry points.
func TestParseID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		// Attack vectors
		{"SQL injection attempt", "'; DROP TABLE audit_entries;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Unicode zero-width space", "550e8400​-e29b-41d4-a716-446655440000", true},

		// Edge cases
		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},

		// Valid
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseClientID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// TestClientIsolation_DistinctIdentity encodes the foundational invariant:
// two clients are never the same resource, even inside one couple.
func TestClientIsolation_DistinctIdentity(t *testing.T) {
	partnerA := ClientID(uuid.New())
	partnerB := ClientID(uuid.New())

	assert.NotEqual(t, partnerA, partnerB, "different clients must have different IDs")
	assert.NotEqual(t, uuid.UUID(partnerA), uuid.UUID(partnerB), "UUID values must differ")
}

// TestAllIDTypes_ConsistentBehavior ensures all ID types have identical
// parsing behavior. Inconsistent validation across ID types could create
// security holes.
func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	validUUID := uuid.New().String()
	invalidInputs := []string{"", "invalid", uuid.Nil.String()}

	t.Run("all accept valid UUID", func(t *testing.T) {
		_, errTherapist := ParseTherapistID(validUUID)
		_, errClient := ParseClientID(validUUID)
		_, errCouple := ParseCoupleID(validUUID)
		_, errPolicy := ParsePolicyID(validUUID)
		_, errEntry := ParseEntryID(validUUID)

		require.NoError(t, errTherapist)
		require.NoError(t, errClient)
		require.NoError(t, errCouple)
		require.NoError(t, errPolicy)
		require.NoError(t, errEntry)
	})

	for _, input := range invalidInputs {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errTherapist := ParseTherapistID(input)
			_, errClient := ParseClientID(input)
			_, errCouple := ParseCoupleID(input)
			_, errPolicy := ParsePolicyID(input)
			_, errEntry := ParseEntryID(input)

			require.Error(t, errTherapist)
			require.Error(t, errClient)
			require.Error(t, errCouple)
			require.Error(t, errPolicy)
			require.Error(t, errEntry)
		})
	}
}
