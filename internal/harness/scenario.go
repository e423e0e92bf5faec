package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is one executable write-pipeline scenario.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Site is the name of the site the scenario creates. Defaults to
	// DefaultSite.
	Site string `yaml:"site,omitempty"`

	// Triggers lists type keys that get a recording trigger before the
	// first step. The trigger records under the type key.
	Triggers []string `yaml:"triggers,omitempty"`

	// FailingListener registers a listener that fails on every event,
	// after the recording listener.
	FailingListener bool `yaml:"failing_listener,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// DefaultSite is the site name used when a scenario names none.
const DefaultSite = "scenario"

// Step operations.
const (
	OpWrite      = "write"
	OpSave       = "save"
	OpSaveMany   = "save_many"
	OpAddTrigger = "add_trigger"
)

// Step is one operation against the site.
type Step struct {
	// Op is one of write, save, save_many or add_trigger.
	Op string `yaml:"op"`

	// As is the acting username. Empty means anonymous.
	As string `yaml:"as,omitempty"`

	// Query is the write query (write).
	Query any `yaml:"query,omitempty"`

	// Key and Data are the target and replacement document (save).
	Key  string         `yaml:"key,omitempty"`
	Data map[string]any `yaml:"data,omitempty"`

	// Docs are the replacement documents (save_many).
	Docs []map[string]any `yaml:"docs,omitempty"`

	// Type is the type key a recording trigger is added for (add_trigger).
	Type string `yaml:"type,omitempty"`

	Comment string `yaml:"comment,omitempty"`

	// Expect checks the outcome. If nil the step must merely succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is the expected outcome of a step.
type Expect struct {
	Created []string `yaml:"created,omitempty"`
	Updated []string `yaml:"updated,omitempty"`

	// Unchanged expects a save to persist nothing.
	Unchanged bool `yaml:"unchanged,omitempty"`

	// Error is the expected error code, e.g. PERMISSION_DENIED.
	Error string `yaml:"error,omitempty"`
}

// Matcher selects trace entries. Empty fields match anything.
type Matcher struct {
	Kind string `yaml:"kind"`
	Name string `yaml:"name,omitempty"`
	Key  string `yaml:"key,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is trace_count, trace_order or final_state.
	Type string `yaml:"type"`

	// Matcher selects entries (trace_count).
	Matcher `yaml:",inline"`

	// Count is the expected number of matching entries (trace_count).
	Count int `yaml:"count,omitempty"`

	// Sequence is the expected order (trace_order).
	Sequence []Matcher `yaml:"sequence,omitempty"`

	// Expect is a subset of the latest document of Key (final_state).
	// "type" compares against the type key; an empty map expects the key
	// to be absent.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceCount = "trace_count"
	AssertTraceOrder = "trace_order"
	AssertFinalState = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	switch st.Op {
	case OpWrite:
		if st.Query == nil {
			return fmt.Errorf("steps[%d]: query is required for write", index)
		}
	case OpSave:
		if st.Key == "" {
			return fmt.Errorf("steps[%d]: key is required for save", index)
		}
		if st.Data == nil {
			return fmt.Errorf("steps[%d]: data is required for save", index)
		}
	case OpSaveMany:
		if len(st.Docs) == 0 {
			return fmt.Errorf("steps[%d]: docs is required for save_many", index)
		}
	case OpAddTrigger:
		if st.Type == "" {
			return fmt.Errorf("steps[%d]: type is required for add_trigger", index)
		}
		if st.Expect != nil {
			return fmt.Errorf("steps[%d]: add_trigger takes no expect", index)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}

	if e := st.Expect; e != nil && e.Error != "" && (len(e.Created) > 0 || len(e.Updated) > 0 || e.Unchanged) {
		return fmt.Errorf("steps[%d].expect: error excludes created, updated and unchanged", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Sequence) < 2 {
			return fmt.Errorf("assertions[%d]: sequence needs at least two matchers for trace_order", index)
		}
		for j, m := range a.Sequence {
			if m.Kind == "" {
				return fmt.Errorf("assertions[%d].sequence[%d]: kind is required", index, j)
			}
		}
	case AssertFinalState:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for final_state", index)
		}
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
