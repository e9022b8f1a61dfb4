package policy

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	id "sanctum/pkg/domain"
)

// Fixed identities so every environment agrees on the shipped policies and
// re-seeding stays idempotent under the stores' upsert semantics.
var (
	SeedIndividualPolicyID = id.PolicyID(uuid.MustParse("7f3c1a2e-0001-4a5b-9c8d-1b2e3f4a5c6d"))
	SeedCouplesPolicyID    = id.PolicyID(uuid.MustParse("7f3c1a2e-0002-4a5b-9c8d-1b2e3f4a5c6d"))
	SeedExternalPolicyID   = id.PolicyID(uuid.MustParse("7f3c1a2e-0003-4a5b-9c8d-1b2e3f4a5c6d"))
)

// Policy names callers resolve through GetActiveByName.
const (
	SeedIndividualPolicyName = "individual-therapist-view"
	SeedCouplesPolicyName    = "couples-merge-v1"
	SeedExternalPolicyName   = "external-summary-v1"
)

// SeedPolicies builds the policies shipped with the service. The individual
// view is the only permissive policy and the only one allowed to carry
// phi_sensitive fields; everything crossing a client boundary is strict and
// capped at phi_derived.
func SeedPolicies() ([]*WhitelistPolicy, error) {
	individual, err := NewWhitelistPolicy(
		SeedIndividualPolicyID,
		SeedIndividualPolicyName,
		1,
		ModePermissive,
		ScopeIndividual,
		[]string{
			"themes",
			"patterns",
			"goals",
			"communication",
			"diagnoses",
			"attachment_style",
			"session_frequency",
		},
		id.SensitivityPHISensitive,
	)
	if err != nil {
		return nil, fmt.Errorf("seed %s: %w", SeedIndividualPolicyName, err)
	}

	couples, err := NewWhitelistPolicy(
		SeedCouplesPolicyID,
		SeedCouplesPolicyName,
		1,
		ModeStrict,
		ScopeCouples,
		[]string{
			"themes",
			"patterns",
			"goals",
			"communication",
		},
		id.SensitivityPHIDerived,
	)
	if err != nil {
		return nil, fmt.Errorf("seed %s: %w", SeedCouplesPolicyName, err)
	}

	external, err := NewWhitelistPolicy(
		SeedExternalPolicyID,
		SeedExternalPolicyName,
		1,
		ModeStrict,
		ScopeExternal,
		[]string{
			"themes",
			"patterns",
		},
		id.SensitivityPHIDerived,
	)
	if err != nil {
		return nil, fmt.Errorf("seed %s: %w", SeedExternalPolicyName, err)
	}

	return []*WhitelistPolicy{individual, couples, external}, nil
}

// SeedStore writes the shipped policies into store. Safe to run on every
// startup; stores upsert by policy id.
func SeedStore(ctx context.Context, store Store) error {
	policies, err := SeedPolicies()
	if err != nil {
		return err
	}
	for _, p := range policies {
		if err := store.Put(ctx, p); err != nil {
			return fmt.Errorf("seed policy %s: %w", p.Name, err)
		}
	}
	return nil
}
