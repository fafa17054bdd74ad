// Package harness replays recorded capture scenarios against a live session.
//
// A scenario is a timed stream of pointer, wheel and keyboard events plus
// the assertions the resulting script must satisfy. The harness drives a
// real session.Session, so the classifier, the insertion queue, template
// capture, live insertion and persistence are all exercised together.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: login_flow
//	description: "Logs into the admin console"
//	display: { width: 800, height: 600 }
//	remote: { width: 1600, height: 1200 }
//	mode: normal
//	events:
//	  - at: 1.0
//	    kind: click
//	    x: 100
//	    y: 50
//	  - at: 2.0
//	    kind: type
//	    text: "ab"
//	  - advance: 0.5
//	    kind: key_down
//	    key: Enter
//	assertions:
//	  - type: step_types
//	    types: [click, type, type, key_press]
//	  - type: source_contains
//	    text: "vnc.click(200, 100)"
//
// Events move the clock first (at: absolute seconds, advance: relative),
// then switch mode if asked, then deliver the event. click, drag and type
// are shorthands that expand into primitive events.
//
// # Assertion Types
//
//   - step_types: the recorded step types, in order
//   - step_count: the number of recorded steps
//   - source_contains / source_not_contains: a fragment of the final source
//   - findings: the exact validator finding codes
//   - warning_count: the number of capture warnings inserted
//   - template_count: the number of stored templates
//
// # Deterministic Testing
//
// The harness uses:
//   - a fake clock starting at testutil.Epoch; debounce timers fire as it moves
//   - sequential step ids (step-1, step-2, ...)
//   - a fresh in-memory SQLite store per scenario
//   - a solid frame, so captured templates are reproducible
//
// This makes the synthesized source byte-identical across runs, which is
// what RunWithGolden compares against testdata/golden/<name>.golden.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/login_flow.yaml")
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
