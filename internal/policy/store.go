package policy

import (
	"context"

	id "sanctum/pkg/domain"
)

// Store provides policy lookup and administration. Gates resolve policies by
// id or by name; Put exists for seeding and policy rollout.
//
// Transient failures surface sentinel.ErrUnavailable; a missing policy is
// sentinel.ErrNotFound.
type Store interface {
	GetByID(ctx context.Context, policyID id.PolicyID) (*WhitelistPolicy, error)
	GetActiveByName(ctx context.Context, name string) (*WhitelistPolicy, error)
	Put(ctx context.Context, p *WhitelistPolicy) error
	List(ctx context.Context) ([]*WhitelistPolicy, error)
}
