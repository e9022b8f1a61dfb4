//go:build integration

package policy_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"sanctum/internal/policy"
	id "sanctum/pkg/domain"
	"sanctum/pkg/testutil/containers"
)

type PolicyCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *policy.InMemory
	cache *policy.Cache
	ctx   context.Context
}

func TestPolicyCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PolicyCacheSuite))
}

func (s *PolicyCacheSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.ctx = context.Background()
}

func (s *PolicyCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
	s.store = policy.NewInMemory()
	s.cache = policy.NewCache(s.store, s.redis.Client)
}

func (s *PolicyCacheSuite) newPolicy(name string, version int) *policy.WhitelistPolicy {
	p, err := policy.NewWhitelistPolicy(id.PolicyID(uuid.New()), name, version, policy.ModeStrict,
		policy.ScopeCouples, []string{"themes", "patterns"}, id.SensitivityPHIDerived)
	s.Require().NoError(err)
	return p
}

func (s *PolicyCacheSuite) TestReadThroughRoundTrip() {
	p := s.newPolicy("couples-merge-v1", 1)
	s.Require().NoError(s.store.Put(s.ctx, p))

	// First read populates Redis.
	found, err := s.cache.GetActiveByName(s.ctx, "couples-merge-v1")
	s.Require().NoError(err)
	s.Equal(p.ID, found.ID)
	s.Equal(p.AllowedFields, found.AllowedFields)

	// A second cache over an empty store can only answer from Redis.
	emptyBacked := policy.NewCache(policy.NewInMemory(), s.redis.Client)
	cached, err := emptyBacked.GetActiveByName(s.ctx, "couples-merge-v1")
	s.Require().NoError(err)
	s.Equal(p.ID, cached.ID)
	s.Equal(p.Mode, cached.Mode)
	s.Equal(p.Scope, cached.Scope)
	s.Equal(p.MaxSensitivity, cached.MaxSensitivity)
}

func (s *PolicyCacheSuite) TestPutInvalidatesBothKeys() {
	p := s.newPolicy("couples-merge-v1", 1)
	s.Require().NoError(s.cache.Put(s.ctx, p))

	_, err := s.cache.GetByID(s.ctx, p.ID)
	s.Require().NoError(err)
	_, err = s.cache.GetActiveByName(s.ctx, "couples-merge-v1")
	s.Require().NoError(err)

	v2 := s.newPolicy("couples-merge-v1", 2)
	s.Require().NoError(s.cache.Put(s.ctx, v2))

	found, err := s.cache.GetActiveByName(s.ctx, "couples-merge-v1")
	s.Require().NoError(err)
	s.Equal(2, found.Version)
}

func (s *PolicyCacheSuite) TestSeededStoreThroughCache() {
	s.Require().NoError(policy.SeedStore(s.ctx, s.cache))

	for _, name := range []string{
		policy.SeedIndividualPolicyName,
		policy.SeedCouplesPolicyName,
		policy.SeedExternalPolicyName,
	} {
		p, err := s.cache.GetActiveByName(s.ctx, name)
		s.Require().NoError(err, "seed policy %s must resolve", name)
		s.True(p.Active)
	}
}
