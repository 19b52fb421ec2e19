// Package harness runs bounty lifecycle scenarios against a real store.
//
// A scenario is a YAML file listing activity steps and assertions about the
// final state of the bounties they touched. Steps run through the same code
// paths production does:
//
//   - origin internal: the activity pipeline (engine write, then side
//     effects);
//   - origin external: a bare engine write, as the web client makes, after
//     which the reconciler drains the change feed and replays it.
//
// # Scenario Format
//
//	name: evergreen_limit
//	description: "Three claims close a parent with claimLimit 3"
//	customer: guild-1
//	steps:
//	  - activity: create
//	    as: parent
//	    actor: creator
//	    payload: { title: "Translate the README", evergreen: true, claimLimit: 3 }
//	  - activity: claim
//	    bounty: parent
//	    as: child1
//	    actor: hunter
//	    origin: external
//	  - activity: submit
//	    bounty: child1
//	    actor: hunter
//	    expect_error: PRECONDITION_FAILED
//	assertions:
//	  - bounty: parent
//	    status: deleted
//	    children: 3
//
// Bounty references are labels bound with "as"; anything else is used as a
// raw id. Actor names are used as actor ids.
//
// # Deterministic Runs
//
// Every run uses a fresh database, a step clock and sequential ids (b-1,
// b-2, ...), so traces are identical across runs and can be compared with
// golden files.
package harness
