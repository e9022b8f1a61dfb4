package e2e

import (
	"github.com/cucumber/godog"

	"sanctum/e2e/steps/common"
	"sanctum/e2e/steps/extract"
	"sanctum/e2e/steps/merge"
	"sanctum/e2e/steps/sanitize"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (authentication, generic requests, assertions)
	common.RegisterSteps(ctx, tc)

	// Register gate-specific steps
	extract.RegisterSteps(ctx, tc)
	merge.RegisterSteps(ctx, tc)
	sanitize.RegisterSteps(ctx, tc)
}
