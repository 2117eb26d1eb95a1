// Package harness provides conformance testing for conditional pushdown.
//
// A scenario pairs queries written the natural way, with a conditional
// choosing between collections, against the same queries with the
// conditional already pushed into each branch by hand. The harness proves
// the rewriter produces the hand-written form and that every backend
// returns the same rows.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	dataset: gh1879
//	root: Employee
//	cases:
//	  - name: where
//	    conditional: 'q => q.Where(e => (e.A ? e.Xs : e.Ys).Any())'
//	    expected: 'q => q.Where(e => e.A ? e.Xs.Any() : e.Ys.Any())'
//	    results: [Andy, Bart]
//	assertions:
//	  - type: sql_contains
//	    case: where
//	    text: "CASE WHEN"
//
// # Assertion Types
//
//   - rewritten_equals: the rewritten conditional query prints as text
//   - sql_contains: the translated SQL contains text
//   - sql_params: the translated SQL binds exactly params, in order
//   - pushdown_required: the conditional query, before rewriting, is
//     rejected by the SQL translator
//
// # Deterministic Testing
//
// Every scenario runs in a fresh in-memory SQLite database seeded with
// sequential IDs (testutil.SequentialIDs), so rows, rewritten forms and
// golden snapshots are identical across runs.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/gh1879.yaml")
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
