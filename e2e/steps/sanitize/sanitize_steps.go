package sanitize

import (
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GetResponseField(field string) (interface{}, error)
	GetLastResponseBody() []byte
}

// RegisterSteps registers sanitized-query gate step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &sanitizeSteps{tc: tc}

	ctx.Step(`^I submit the query "([^"]*)"$`, steps.submitQuery)
	ctx.Step(`^I submit an empty query$`, steps.submitEmptyQuery)
	ctx.Step(`^the query should be blocked for "([^"]*)"$`, steps.queryBlockedFor)
	ctx.Step(`^the blocked spans should include kind "([^"]*)"$`, steps.spansIncludeKind)
}

type sanitizeSteps struct {
	tc TestContext
}

func (s *sanitizeSteps) submitQuery(text string) error {
	return s.tc.POST("/v1/sanitize-query", map[string]interface{}{"text": text})
}

func (s *sanitizeSteps) submitEmptyQuery() error {
	return s.tc.POST("/v1/sanitize-query", map[string]interface{}{"text": ""})
}

func (s *sanitizeSteps) queryBlockedFor(reason string) error {
	decision, err := s.tc.GetResponseField("decision")
	if err != nil {
		return err
	}
	if decision != "blocked" {
		return fmt.Errorf("expected decision blocked, got %v (body: %s)", decision, s.tc.GetLastResponseBody())
	}
	got, err := s.tc.GetResponseField("reason")
	if err != nil {
		return err
	}
	if got != reason {
		return fmt.Errorf("expected reason %q, got %v", reason, got)
	}
	return nil
}

func (s *sanitizeSteps) spansIncludeKind(kind string) error {
	spans, err := s.tc.GetResponseField("spans")
	if err != nil {
		return err
	}
	list, ok := spans.([]interface{})
	if !ok {
		return fmt.Errorf("spans is not a list: %v", spans)
	}
	for _, raw := range list {
		span, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if span["kind"] == kind {
			return nil
		}
	}
	return fmt.Errorf("no span of kind %q in %s", kind, s.tc.GetLastResponseBody())
}
