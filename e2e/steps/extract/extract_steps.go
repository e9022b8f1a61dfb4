package extract

import (
	"strings"

	"github.com/cucumber/godog"
	"github.com/google/uuid"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
}

// RegisterSteps registers extraction gate step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &extractSteps{tc: tc}

	ctx.Step(`^I request extraction for an unknown client with policy "([^"]*)"$`, steps.extractUnknownClient)
	ctx.Step(`^I request extraction for client "([^"]*)" with policy "([^"]*)"$`, steps.extractClient)
	ctx.Step(`^I request extraction for client "([^"]*)" with policy "([^"]*)" and fields "([^"]*)"$`, steps.extractClientFields)
	ctx.Step(`^I request extraction without a client id$`, steps.extractMissingClient)
}

type extractSteps struct {
	tc TestContext
}

func (s *extractSteps) extractUnknownClient(policyName string) error {
	return s.tc.POST("/v1/extract", map[string]interface{}{
		"client_id":   uuid.NewString(),
		"policy_name": policyName,
	})
}

func (s *extractSteps) extractClient(clientID, policyName string) error {
	return s.tc.POST("/v1/extract", map[string]interface{}{
		"client_id":   clientID,
		"policy_name": policyName,
	})
}

func (s *extractSteps) extractClientFields(clientID, policyName, fields string) error {
	return s.tc.POST("/v1/extract", map[string]interface{}{
		"client_id":   clientID,
		"policy_name": policyName,
		"fields":      strings.Split(fields, ","),
	})
}

func (s *extractSteps) extractMissingClient() error {
	return s.tc.POST("/v1/extract", map[string]interface{}{
		"policy_name": "individual-therapist-view",
	})
}
