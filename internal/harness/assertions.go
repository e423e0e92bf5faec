package harness

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/infobase/internal/testutil"
	"github.com/roach88/infobase/internal/thing"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string           // Assertion type for categorization
	Expected string           // Human-readable expected outcome
	Actual   string           // Human-readable actual outcome
	Trace    []testutil.Entry // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, entry := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %s\n", entry.Seq, entry.Kind, entry.Name, entry.Key)
		}
	}
	return buf.String()
}

// StateReader reads the latest revision of a key.
type StateReader interface {
	Get(ctx context.Context, key string, revision int) (*thing.Thing, error)
}

// matches reports whether entry satisfies every non-empty field of m.
func (m Matcher) matches(entry testutil.Entry) bool {
	return (m.Kind == "" || m.Kind == entry.Kind) &&
		(m.Name == "" || m.Name == entry.Name) &&
		(m.Key == "" || m.Key == entry.Key)
}

func (m Matcher) String() string {
	parts := []string{m.Kind}
	if m.Name != "" {
		parts = append(parts, "name="+m.Name)
	}
	if m.Key != "" {
		parts = append(parts, "key="+m.Key)
	}
	return strings.Join(parts, " ")
}

// assertTraceCount checks that exactly Count entries match.
func assertTraceCount(trace []testutil.Entry, assertion Assertion) error {
	count := 0
	for _, entry := range trace {
		if assertion.Matcher.matches(entry) {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Matcher),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceOrder checks that the first occurrences of the matchers
// appear in sequence order. Entries in between are allowed.
func assertTraceOrder(trace []testutil.Entry, assertion Assertion) error {
	positions := make([]int, len(assertion.Sequence))
	for i, m := range assertion.Sequence {
		positions[i] = -1
		for j, entry := range trace {
			if m.matches(entry) {
				positions[i] = j
				break
			}
		}
		if positions[i] < 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("entry matching %s", m),
				Actual:   "not found in trace",
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(positions); i++ {
		if positions[i-1] >= positions[i] {
			prev, curr := assertion.Sequence[i-1], assertion.Sequence[i]
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("%s before %s", prev, curr),
				Actual: fmt.Sprintf("%s (pos %d) is not before %s (pos %d)",
					prev, positions[i-1]+1, curr, positions[i]+1),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertFinalState compares the latest document of Key with Expect using
// subset semantics. Values compare by canonical JSON.
func assertFinalState(ctx context.Context, r StateReader, assertion Assertion, state map[string]thing.Data) error {
	t, err := r.Get(ctx, assertion.Key, 0)
	if err != nil {
		return fmt.Errorf("final_state %s: %w", assertion.Key, err)
	}

	if t == nil {
		state[assertion.Key] = nil
		if len(assertion.Expect) == 0 {
			return nil
		}
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("thing %s", assertion.Key),
			Actual:   "not found",
		}
	}

	doc := t.Document()
	state[assertion.Key] = doc
	if len(assertion.Expect) == 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("no thing %s", assertion.Key),
			Actual:   fmt.Sprintf("revision %d of type %s", t.Revision, t.Type),
		}
	}

	fields := make([]string, 0, len(assertion.Expect))
	for field := range assertion.Expect {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		expected := assertion.Expect[field]
		var actual any
		if field == "type" {
			if key, ok := thing.RefKey(expected); ok {
				expected, actual = key, t.Type
			}
		} else {
			var exists bool
			if actual, exists = doc[field]; !exists {
				return &AssertionError{
					Type:     AssertFinalState,
					Expected: fmt.Sprintf("field %q = %v", field, expected),
					Actual:   fmt.Sprintf("field %q not present", field),
				}
			}
		}

		equal, err := canonicalEqual(expected, actual)
		if err != nil {
			return fmt.Errorf("final_state %s.%s: %w", assertion.Key, field, err)
		}
		if !equal {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v", field, expected),
				Actual:   fmt.Sprintf("field %q = %v", field, actual),
			}
		}
	}
	return nil
}

// canonicalEqual compares two values by their canonical JSON encoding, so
// YAML ints and stored int64s compare equal.
func canonicalEqual(a, b any) (bool, error) {
	ab, err := thing.MarshalCanonical(thing.Normalize(a))
	if err != nil {
		return false, err
	}
	bb, err := thing.MarshalCanonical(thing.Normalize(b))
	if err != nil {
		return false, err
	}
	return bytes.Equal(ab, bb), nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(ctx context.Context, result *Result, assertions []Assertion, r StateReader) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertFinalState:
			if r == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires a state reader", i)
			} else {
				err = assertFinalState(ctx, r, assertion, result.State)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
