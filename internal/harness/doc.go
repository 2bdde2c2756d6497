// Package harness runs workflow scenarios described in YAML.
//
// A scenario seeds hosts and guests, drives the workflow through a list of
// operations, and checks assertions against the resulting store. Every run
// uses a fresh database, a fake clock starting on the reference Friday and
// sequential match ids (m-1, m-2, ...), so the step log and final state
// are stable enough for golden snapshots.
//
// # Scenario Format
//
//	name: host_accepts
//	description: "A host accepts and the guest attends"
//	policy: proposal            # or request; defaults to proposal
//	hosts:
//	  - id: h1
//	    seats: 4
//	guests:
//	  - id: g1
//	    party_size: 2
//	flow:
//	  - op: generate
//	  - op: send_request
//	    match: m-1
//	  - op: respond
//	    link: {template: match_request_to_host, match: m-1}
//	    action: accept
//	    expect: {status: accepted}
//	assertions:
//	  - type: match_status
//	    match: m-1
//	    status: accepted
//
// Steps that address a link take the raw token from the newest queued
// notification of that template for the match or host, the way a
// recipient would click it.
//
// # Assertion Types
//
//   - match_status: a match is in the given status
//   - remaining: a host has exactly count seats left
//   - notification_count: count notifications of a template were queued
//   - activity_order: the audit trail of a target has the given types, in order
//   - capacity_consistent: every host's counter equals its recomputed commitment
package harness
