package merge

import (
	"github.com/cucumber/godog"
	"github.com/google/uuid"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GetResponseField(field string) (interface{}, error)
}

// RegisterSteps registers merge engine step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &mergeSteps{tc: tc}

	ctx.Step(`^I request a merge for an unknown couple$`, steps.mergeUnknownCouple)
	ctx.Step(`^I request a merge for couple "([^"]*)"$`, steps.mergeCouple)
	ctx.Step(`^I request a merge without a couple id$`, steps.mergeMissingCouple)
	ctx.Step(`^the rejection should carry a ledger reference$`, steps.rejectionCarriesLedgerReference)
}

type mergeSteps struct {
	tc TestContext
}

func (s *mergeSteps) mergeUnknownCouple() error {
	return s.tc.POST("/v1/merge", map[string]interface{}{
		"couple_id": uuid.NewString(),
	})
}

func (s *mergeSteps) mergeCouple(coupleID string) error {
	return s.tc.POST("/v1/merge", map[string]interface{}{
		"couple_id": coupleID,
	})
}

func (s *mergeSteps) mergeMissingCouple() error {
	return s.tc.POST("/v1/merge", map[string]interface{}{})
}

func (s *mergeSteps) rejectionCarriesLedgerReference() error {
	_, err := s.tc.GetResponseField("audit_entry_id")
	return err
}
