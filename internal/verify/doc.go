// Package verify runs the claim lifecycle.
//
// A claim's status moves through one state machine with two triggers:
//
//   - SetClaimStatus: a reviewer decision (verified, contested, rejected)
//     becomes the status directly. Every decision is audited in the
//     verified ledger as a DECISION entry.
//   - CastVote: each vote is normalized, recorded and tallied. When the
//     net tally reaches the threshold (3 by default, inclusive) the claim
//     is promoted: status becomes verified and a VERIFIED entry carrying
//     the claim text is appended to the verified ledger.
//
// Promotion is guarded by a persisted marker on the claim row, so it
// happens at most once per claim no matter how many later votes keep the
// tally above the threshold.
//
// Ask layers verification state on top of search.
package verify
