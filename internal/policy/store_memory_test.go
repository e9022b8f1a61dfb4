package policy

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "sanctum/pkg/domain"
	"sanctum/pkg/platform/sentinel"
)

type PolicyStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *PolicyStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestPolicyStoreSuite(t *testing.T) {
	suite.Run(t, new(PolicyStoreSuite))
}

func (s *PolicyStoreSuite) newPolicy(name string, version int) *WhitelistPolicy {
	p, err := NewWhitelistPolicy(id.PolicyID(uuid.New()), name, version, ModeStrict, ScopeIndividual,
		[]string{"themes", "goals"}, id.SensitivityPHIDerived)
	s.Require().NoError(err)
	return p
}

func (s *PolicyStoreSuite) TestGetByID() {
	s.Run("returns stored policy", func() {
		p := s.newPolicy("view", 1)
		s.Require().NoError(s.store.Put(s.ctx, p))

		found, err := s.store.GetByID(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Equal(p.Name, found.Name)
		s.Equal(p.AllowedFields, found.AllowedFields)
	})

	s.Run("returns ErrNotFound for unknown id", func() {
		_, err := s.store.GetByID(s.ctx, id.PolicyID(uuid.New()))
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PolicyStoreSuite) TestGetActiveByName() {
	s.Run("resolves the highest active version", func() {
		v1 := s.newPolicy("view", 1)
		v2 := s.newPolicy("view", 2)
		v3 := s.newPolicy("view", 3)
		v3.Active = false

		for _, p := range []*WhitelistPolicy{v1, v2, v3} {
			s.Require().NoError(s.store.Put(s.ctx, p))
		}

		found, err := s.store.GetActiveByName(s.ctx, "view")
		s.Require().NoError(err)
		s.Equal(2, found.Version, "inactive v3 must be skipped")
	})

	s.Run("returns ErrNotFound when every version is inactive", func() {
		p := s.newPolicy("retired", 1)
		p.Active = false
		s.Require().NoError(s.store.Put(s.ctx, p))

		_, err := s.store.GetActiveByName(s.ctx, "retired")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returns ErrNotFound for unknown name", func() {
		_, err := s.store.GetActiveByName(s.ctx, "nope")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PolicyStoreSuite) TestList() {
	s.Require().NoError(s.store.Put(s.ctx, s.newPolicy("b-view", 2)))
	s.Require().NoError(s.store.Put(s.ctx, s.newPolicy("a-view", 1)))
	s.Require().NoError(s.store.Put(s.ctx, s.newPolicy("b-view", 1)))

	policies, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(policies, 3)
	s.Equal("a-view", policies[0].Name)
	s.Equal("b-view", policies[1].Name)
	s.Equal(1, policies[1].Version)
	s.Equal(2, policies[2].Version)
}

func (s *PolicyStoreSuite) TestReturnedPolicyIsIsolated() {
	p := s.newPolicy("view", 1)
	s.Require().NoError(s.store.Put(s.ctx, p))

	first, err := s.store.GetByID(s.ctx, p.ID)
	s.Require().NoError(err)
	first.AllowedFields[0] = "tampered"

	second, err := s.store.GetByID(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal("themes", second.AllowedFields[0], "mutating a returned policy must not corrupt the store")
}
