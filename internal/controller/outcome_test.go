package controller

import "testing"

func TestHandlerOutcome_String(t *testing.T) {
	cases := []struct {
		name     string
		outcome  HandlerOutcome[string]
		expected string
	}{
		{"transition", Transition("Ready"), `Transition(Ready)`},
		{"transition with reason", TransitionWithReason("Configuring", "waiting"), `Transition(Configuring, "waiting")`},
		{"wait", Wait[string]("backend not ready"), `Wait("backend not ready")`},
		{"do nothing", DoNothing[string](), "DoNothing"},
		{"deleted", Deleted[string](), "Deleted"},
		{"err", Err[string](NewMissingDataError("obj1", "snapshot")), "Err(MissingData)"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.outcome.String(); got != tc.expected {
				t.Errorf("String() = %q, want %q", got, tc.expected)
			}
		})
	}
}

func TestHandlerOutcome_Next(t *testing.T) {
	next, ok := Transition("Ready").Next()
	if !ok || next != "Ready" {
		t.Errorf("Next() = (%q, %v), want (\"Ready\", true)", next, ok)
	}

	if _, ok := Wait[string]("reason").Next(); ok {
		t.Error("Next() on a Wait outcome reported hasNext=true")
	}
}

func TestHandlerOutcome_Kind(t *testing.T) {
	if Transition("x").Kind() != OutcomeTransition {
		t.Error("Transition outcome did not report OutcomeTransition")
	}
	if Err[string](NewHandlerError("obj1", "boom")).Kind() != OutcomeError {
		t.Error("Err outcome did not report OutcomeError")
	}
}
