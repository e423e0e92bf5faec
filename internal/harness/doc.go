// Package harness runs write-pipeline scenarios against a real infobase.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: type_change
//	description: "A type change fires the old type's triggers first"
//	site: t1
//	triggers: [/type/t1, /type/t2]
//	failing_listener: false
//	steps:
//	  - op: write
//	    as: admin
//	    query: {key: /type/t1, type: /type/type}
//	    expect: {created: [/type/t1]}
//	  - op: add_trigger
//	    type: /type/t1
//	  - op: save
//	    as: admin
//	    key: /k1
//	    data: {type: /type/t1, title: hello}
//	  - op: save_many
//	    as: admin
//	    docs:
//	      - {key: /k2, type: /type/t1}
//	assertions:
//	  - type: trace_count
//	    kind: trigger
//	    name: /type/t1
//	    count: 1
//	  - type: trace_order
//	    sequence:
//	      - {kind: trigger, name: /type/t1}
//	      - {kind: trigger, name: /type/t2}
//	  - type: final_state
//	    key: /k1
//	    expect: {revision: 3, type: /type/t2}
//
// # Assertion Types
//
//   - trace_count: the number of trace entries matching kind, name and key
//   - trace_order: matchers whose first occurrences appear in the given order
//   - final_state: a subset match against the latest document of a key
//
// # Deterministic Testing
//
// Each scenario runs in a fresh site under a temporary directory with a
// stepping clock and sequential event ids. Bootstrap events are not traced.
// Trace entries carry a logical sequence instead of wall-clock time so
// golden snapshots compare byte for byte.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/type_change.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
