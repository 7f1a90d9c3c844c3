// Package harness runs conformance scenarios against the real dispatcher.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: addition_op1_change
//	description: "Changing op1 confirms, then derives the sum"
//	config: ../../../../configs/addition
//	parquet_files: [FGBMU8_20080901.parquet]
//	flow:
//	  - session: s-1
//	    send: {nd_type: DataChange, cache_key: op1, new_value: 7}
//	    expect:
//	      - {nd_type: DataChangeConfirmed, cache_key: op1, new_value: 7}
//	      - {nd_type: DataChange, cache_key: op1_plus_op2, new_value: 10}
//	assertions:
//	  - type: final_state
//	    key: op1_plus_op2
//	    value: 10
//
// config is a directory of CUE files, relative to the scenario file. Each
// flow step sends one message and settles it: every query it causes runs
// against a fresh in-memory SQLite engine before the next step. A step's
// expect lists the messages the step produces, in order, each matched as a
// subset of fields. raw sends the text as is, for malformed input.
//
// # Assertion Types
//
//   - trace_contains: some outbound message matches message
//   - trace_order: outbound kinds appear in the given order
//   - trace_count: exactly count outbound messages match message
//   - final_state: data key holds value at the end
//   - journal: a session's journal holds exactly statements
//
// # Deterministic Testing
//
// Session ids come from the scenario's sessions list and trace events are
// numbered by the engine clock, so traces compare byte for byte against
// testdata/golden/<name>.golden.
package harness
