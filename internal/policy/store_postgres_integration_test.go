//go:build integration

package policy_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"sanctum/internal/policy"
	id "sanctum/pkg/domain"
	"sanctum/pkg/platform/sentinel"
	"sanctum/pkg/testutil/containers"
)

type PostgresPolicySuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *policy.PostgresStore
	ctx   context.Context
}

func TestPostgresPolicySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresPolicySuite))
}

func (s *PostgresPolicySuite) SetupSuite() {
	mgr := containers.GetManager()
	s.pg = mgr.GetPostgres(s.T())
	s.store = policy.NewPostgres(s.pg.DB)
	s.ctx = context.Background()
}

func (s *PostgresPolicySuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(s.ctx, "whitelist_policies"))
}

func (s *PostgresPolicySuite) newPolicy(name string, version int) *policy.WhitelistPolicy {
	p, err := policy.NewWhitelistPolicy(id.PolicyID(uuid.New()), name, version, policy.ModeStrict,
		policy.ScopeIndividual, []string{"themes", "goals", "patterns"}, id.SensitivityPHIDerived)
	s.Require().NoError(err)
	return p
}

func (s *PostgresPolicySuite) TestPutAndGetByID() {
	p := s.newPolicy("view", 1)
	s.Require().NoError(s.store.Put(s.ctx, p))

	found, err := s.store.GetByID(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(p.Name, found.Name)
	s.Equal(p.Version, found.Version)
	s.Equal(p.Mode, found.Mode)
	s.Equal(p.Scope, found.Scope)
	s.Equal(p.AllowedFields, found.AllowedFields)
	s.Equal(p.MaxSensitivity, found.MaxSensitivity)
	s.True(found.Active)
}

func (s *PostgresPolicySuite) TestGetByIDNotFound() {
	_, err := s.store.GetByID(s.ctx, id.PolicyID(uuid.New()))
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresPolicySuite) TestGetActiveByNamePicksNewestActive() {
	v1 := s.newPolicy("view", 1)
	v2 := s.newPolicy("view", 2)
	v3 := s.newPolicy("view", 3)
	v3.Active = false

	for _, p := range []*policy.WhitelistPolicy{v1, v2, v3} {
		s.Require().NoError(s.store.Put(s.ctx, p))
	}

	found, err := s.store.GetActiveByName(s.ctx, "view")
	s.Require().NoError(err)
	s.Equal(2, found.Version)
}

func (s *PostgresPolicySuite) TestPutUpdatesActiveFlag() {
	p := s.newPolicy("view", 1)
	s.Require().NoError(s.store.Put(s.ctx, p))

	p.Active = false
	s.Require().NoError(s.store.Put(s.ctx, p))

	_, err := s.store.GetActiveByName(s.ctx, "view")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	found, err := s.store.GetByID(s.ctx, p.ID)
	s.Require().NoError(err)
	s.False(found.Active)
}

func (s *PostgresPolicySuite) TestNameVersionUniqueness() {
	first := s.newPolicy("view", 1)
	s.Require().NoError(s.store.Put(s.ctx, first))

	// A different id claiming the same (name, version) must be rejected by
	// the schema.
	dup := s.newPolicy("view", 1)
	err := s.store.Put(s.ctx, dup)
	s.Require().Error(err)
	s.Require().ErrorIs(err, sentinel.ErrUnavailable)
}

func (s *PostgresPolicySuite) TestListOrdersByNameThenVersion() {
	s.Require().NoError(s.store.Put(s.ctx, s.newPolicy("b-view", 2)))
	s.Require().NoError(s.store.Put(s.ctx, s.newPolicy("a-view", 1)))
	s.Require().NoError(s.store.Put(s.ctx, s.newPolicy("b-view", 1)))

	policies, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(policies, 3)
	s.Equal("a-view", policies[0].Name)
	s.Equal(1, policies[1].Version)
	s.Equal(2, policies[2].Version)
}

func (s *PostgresPolicySuite) TestSeedStoreIsIdempotent() {
	s.Require().NoError(policy.SeedStore(s.ctx, s.store))
	s.Require().NoError(policy.SeedStore(s.ctx, s.store))

	policies, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Len(policies, 3)

	couples, err := s.store.GetActiveByName(s.ctx, policy.SeedCouplesPolicyName)
	s.Require().NoError(err)
	s.Equal(policy.ModeStrict, couples.Mode)
	s.Equal(id.SensitivityPHIDerived, couples.MaxSensitivity)
}
