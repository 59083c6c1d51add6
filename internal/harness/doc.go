// Package harness runs reconciliation scenarios against the real resolver
// and history store.
//
// The harness drives a manual clock and a scripted profile source, so every
// run of a scenario produces the same trace, which makes scenarios usable as
// golden-file regression tests.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: name_change
//	description: "What this scenario validates"
//	start: 1000                      # clock, ms since epoch
//	policy:
//	  unchanged_ttl: 12h
//	  changed_ttl: 1000              # bare integers are milliseconds
//	accounts:
//	  u1: 00000000-0000-0000-0000-000000000001
//	seed:                            # optional pre-existing state
//	  - account: u1
//	    names:
//	      - { name: Bob, changedToAt: 500 }
//	    checked: { at: 500, changed: true }
//	steps:
//	  - upstream: { account: u1, name: Carol }
//	  - advance: 600
//	  - resolve: u1
//	    expect:
//	      names: [Bob, Carol]
//	      fetches: 1
//	assertions:
//	  - type: history
//	    account: u1
//	    names: [Bob, Carol]
//
// # Steps
//
//   - advance: moves the clock forward by a duration
//   - upstream: sets the name the profile source answers with, or with
//     fail: unavailable|transport|malformed makes it fail
//   - resolve: runs one lookup (or `concurrent` parallel lookups) and checks
//     the optional expect clause
//
// # Assertion Types
//
//   - history: the stored names of an account, in order
//   - metadata: the stored check metadata of an account (or its absence)
//   - fetch_count: how many times the profile source was asked for an account
//   - identifiers: how many identifiers have stored history
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/name_change.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        log.Println(e)
//	    }
//	}
package harness
