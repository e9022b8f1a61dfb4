package common

import (
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Authenticate(role string) error
	ClearAuthentication()
	GET(path string, headers map[string]string) error
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetResponseField(field string) (interface{}, error)
	ResponseContains(field string) bool
}

// RegisterSteps registers authentication and generic assertion steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^I am authenticated as a therapist$`, steps.authenticatedAsTherapist)
	ctx.Step(`^I am authenticated as a "([^"]*)"$`, steps.authenticatedAs)
	ctx.Step(`^I am not authenticated$`, steps.notAuthenticated)
	ctx.Step(`^I GET "([^"]*)"$`, steps.get)

	ctx.Step(`^the response status should be (\d+)$`, steps.responseStatusShouldBe)
	ctx.Step(`^the response should contain "([^"]*)"$`, steps.responseShouldContainField)
	ctx.Step(`^the response should not contain "([^"]*)"$`, steps.responseShouldNotContainField)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, steps.responseFieldShouldBe)
	ctx.Step(`^the response body should not mention "([^"]*)"$`, steps.responseBodyShouldNotMention)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) authenticatedAsTherapist() error {
	return s.tc.Authenticate("therapist")
}

func (s *commonSteps) authenticatedAs(role string) error {
	return s.tc.Authenticate(role)
}

func (s *commonSteps) notAuthenticated() error {
	s.tc.ClearAuthentication()
	return nil
}

func (s *commonSteps) get(path string) error {
	return s.tc.GET(path, nil)
}

func (s *commonSteps) responseStatusShouldBe(expected int) error {
	if got := s.tc.GetLastResponseStatus(); got != expected {
		return fmt.Errorf("expected status %d, got %d (body: %s)", expected, got, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *commonSteps) responseShouldContainField(field string) error {
	if !s.tc.ResponseContains(field) {
		return fmt.Errorf("field %q not found in response: %s", field, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *commonSteps) responseShouldNotContainField(field string) error {
	if s.tc.ResponseContains(field) {
		return fmt.Errorf("field %q unexpectedly present in response: %s", field, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *commonSteps) responseFieldShouldBe(field, expected string) error {
	value, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if fmt.Sprintf("%v", value) != expected {
		return fmt.Errorf("expected %q to be %q, got %v", field, expected, value)
	}
	return nil
}

func (s *commonSteps) responseBodyShouldNotMention(text string) error {
	if strings.Contains(string(s.tc.GetLastResponseBody()), text) {
		return fmt.Errorf("response body leaks %q: %s", text, s.tc.GetLastResponseBody())
	}
	return nil
}
