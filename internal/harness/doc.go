// Package harness runs claim-lifecycle scenarios described in YAML.
//
// A scenario ingests documents, then drives claims through proposals,
// votes and reviewer decisions, and finally asserts on the trace, the
// relational state and the ledgers.
//
// # Scenario Format
//
//	name: quorum_promotion
//	description: "Three upvotes promote a claim"
//	quorum: 3                 # optional, defaults to 3
//	vote_policy: permissive   # optional
//	setup:
//	  - filename: water.txt
//	    text: "Water boils at 100C at sea level"
//	    title: Boiling point
//	flow:
//	  - propose: { text: "Water boils at 100C", doc: water.txt, sources: [doc1] }
//	    expect: { case: ok, result: { created: true, status: pending } }
//	  - vote: { claim: "Water boils at 100C", decision: approve, voter: alice }
//	    expect: { result: { net: 1 } }
//	  - decide: { claim: "Water boils at 100C", decision: rejected, reviewer: carol }
//	  - ask: { query: water, limit: 3 }
//	  - search: { query: water }
//	assertions:
//	  - type: trace_count
//	    action: vote
//	    count: 1
//	  - type: final_state
//	    table: claims
//	    where: { claim_id: clm_570eb14867a88e1e }
//	    expect: { status: verified, promoted: 1 }
//	  - type: ledger_count
//	    stream: verified
//	    count: 1
//	  - type: tally
//	    claim: "Water boils at 100C"
//	    expect: { up: 1, down: 0, net: 1 }
//
// A claim reference is either a claim id ("clm_...") or the claim text,
// which is hashed to its id. A step's expect case is "ok" or the error
// code the step must fail with (VALIDATION, NOT_FOUND).
//
// # Determinism
//
// Every scenario runs against an in-memory database and filesystem, and
// every timestamp is testutil.Epoch, so the verified ledger a scenario
// produces is byte-for-byte reproducible and can be compared to a golden
// file with RunWithGolden.
package harness
