package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/infobase/internal/testutil"
	"github.com/roach88/infobase/internal/thing"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string           `json:"scenario_name"`
	Trace        []testutil.Entry `json:"trace"`
	Failures     int              `json:"failures,omitempty"`
}

// toCanonicalMap converts a TraceSnapshot to a map for canonical JSON
// serialization. Empty entry fields are omitted.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, e := range s.Trace {
		m := map[string]any{
			"seq":  e.Seq,
			"kind": e.Kind,
			"name": e.Name,
			"key":  e.Key,
		}
		optional := map[string]string{
			"site":     e.Site,
			"type":     e.Type,
			"author":   e.Author,
			"old_type": e.OldType,
			"new_type": e.NewType,
		}
		for k, v := range optional {
			if v != "" {
				m[k] = v
			}
		}
		if e.OldRev != 0 {
			m["old_revision"] = e.OldRev
		}
		if e.NewRev != 0 {
			m["new_revision"] = e.NewRev
		}
		traceList[i] = m
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
	if s.Failures != 0 {
		result["failures"] = s.Failures
	}
	return result
}

// Snapshot renders the canonical JSON golden form of a result.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
		Failures:     len(result.Failures),
	}
	return thing.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can check Pass. Test failure (via goldie)
// occurs if the trace doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
