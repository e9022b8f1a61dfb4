package testutil

import "testing"

// Given, When, and Then wrap t.Run with scenario-style naming. The in-process
// suites use these for routing scaffold checks; full BDD coverage lives in
// the godog e2e module.
func Given(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Given "+desc, fn)
}

func When(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("When "+desc, fn)
}

func Then(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Then "+desc, fn)
}
