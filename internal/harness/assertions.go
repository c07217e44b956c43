package harness

import (
	"fmt"
	"strings"
)

// Assertion type constants.
const (
	AssertCommandContains = "command_contains"
	AssertCommandOrder    = "command_order"
	AssertCommandCount    = "command_count"
	AssertNoCommand       = "no_command"
)

// Assertion validates the final command trace.
type Assertion struct {
	// Type selects the assertion:
	//  - "command_contains": a command of Kind (optionally for Ref,
	//    optionally matching the payload fields) appears in the trace
	//  - "command_order": commands of the given kinds appear in order
	//  - "command_count": commands of Kind appear exactly Count times
	//  - "no_command": no command of Kind appears
	Type string `yaml:"type"`

	// Command is the command kind name (command_contains, command_count,
	// no_command).
	Command string `yaml:"command,omitempty"`

	// Ref restricts the match to the uncombinable effect bound under
	// this name.
	Ref string `yaml:"ref,omitempty"`

	// Payload matchers for command_contains. Nil fields are not checked.
	X      *int32  `yaml:"x,omitempty"`
	Y      *int32  `yaml:"y,omitempty"`
	Strong *uint32 `yaml:"strong,omitempty"`
	Weak   *uint32 `yaml:"weak,omitempty"`

	// Failed restricts command_contains to commands the back-end
	// rejected (true) or accepted (false). Nil matches either.
	Failed *bool `yaml:"failed,omitempty"`

	// Count is the expected number of occurrences (command_count).
	Count int `yaml:"count,omitempty"`

	// Commands is the expected kind order (command_order).
	Commands []string `yaml:"commands,omitempty"`
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, refs map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertCommandContains, AssertNoCommand:
		if a.Command == "" {
			return fmt.Errorf("assertions[%d]: command is required for %s", index, a.Type)
		}
	case AssertCommandCount:
		if a.Command == "" {
			return fmt.Errorf("assertions[%d]: command is required for command_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertCommandOrder:
		if len(a.Commands) == 0 {
			return fmt.Errorf("assertions[%d]: commands list is required for command_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.Ref != "" && !refs[a.Ref] {
		return fmt.Errorf("assertions[%d]: ref %q not bound by any submit step", index, a.Ref)
	}
	return nil
}

// AssertionError reports a failed assertion with enough context to
// debug it from the test log alone.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] tick=%d %s%s\n", i+1, event.Tick, event.Command, event.payloadSummary())
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against the result's trace
// and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string
	for _, a := range assertions {
		var err error
		switch a.Type {
		case AssertCommandContains:
			err = assertCommandContains(result, a)
		case AssertCommandOrder:
			err = assertCommandOrder(result.Trace, a)
		case AssertCommandCount:
			err = assertCommandCount(result, a)
		case AssertNoCommand:
			err = assertNoCommand(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

func assertCommandContains(result *Result, a Assertion) error {
	for _, event := range result.Trace {
		if matchEvent(result, event, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertCommandContains,
		Expected: describeMatcher(a),
		Actual:   "not found in trace",
		Trace:    result.Trace,
	}
}

func assertCommandCount(result *Result, a Assertion) error {
	count := 0
	for _, event := range result.Trace {
		if matchEvent(result, event, a) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertCommandCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, describeMatcher(a)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertNoCommand(result *Result, a Assertion) error {
	for _, event := range result.Trace {
		if matchEvent(result, event, a) {
			return &AssertionError{
				Type:     AssertNoCommand,
				Expected: fmt.Sprintf("no %s", describeMatcher(a)),
				Actual:   fmt.Sprintf("found at tick %d seq %d", event.Tick, event.Seq),
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

// assertCommandOrder checks that the first occurrences of the given
// kinds appear in order. Intervening commands are allowed.
func assertCommandOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		for _, kind := range a.Commands {
			if event.Command == kind && positions[kind] == 0 {
				positions[kind] = i + 1 // 1-indexed for readability
			}
		}
	}

	for _, kind := range a.Commands {
		if positions[kind] == 0 {
			return &AssertionError{
				Type:     AssertCommandOrder,
				Expected: fmt.Sprintf("all commands present: %v", a.Commands),
				Actual:   fmt.Sprintf("missing command: %s", kind),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Commands); i++ {
		prev, curr := a.Commands[i-1], a.Commands[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertCommandOrder,
				Expected: fmt.Sprintf("commands in order: %v", a.Commands),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

func matchEvent(result *Result, event TraceEvent, a Assertion) bool {
	if a.Command != "" && event.Command != a.Command {
		return false
	}
	if a.Ref != "" {
		id, ok := result.Refs[a.Ref]
		if !ok || event.EffectID != id {
			return false
		}
	}
	if a.X != nil && (event.X == nil || *event.X != *a.X) {
		return false
	}
	if a.Y != nil && (event.Y == nil || *event.Y != *a.Y) {
		return false
	}
	if a.Strong != nil && (event.Strong == nil || *event.Strong != *a.Strong) {
		return false
	}
	if a.Weak != nil && (event.Weak == nil || *event.Weak != *a.Weak) {
		return false
	}
	if a.Failed != nil && *a.Failed != (event.Error != "") {
		return false
	}
	return true
}

func describeMatcher(a Assertion) string {
	var parts []string
	parts = append(parts, a.Command)
	if a.Ref != "" {
		parts = append(parts, fmt.Sprintf("ref=%s", a.Ref))
	}
	if a.X != nil {
		parts = append(parts, fmt.Sprintf("x=%d", *a.X))
	}
	if a.Y != nil {
		parts = append(parts, fmt.Sprintf("y=%d", *a.Y))
	}
	if a.Strong != nil {
		parts = append(parts, fmt.Sprintf("strong=%d", *a.Strong))
	}
	if a.Weak != nil {
		parts = append(parts, fmt.Sprintf("weak=%d", *a.Weak))
	}
	if a.Failed != nil {
		parts = append(parts, fmt.Sprintf("failed=%t", *a.Failed))
	}
	return strings.Join(parts, " ")
}
