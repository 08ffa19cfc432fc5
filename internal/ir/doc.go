// Package ir holds the domain types shared by every other package:
// documents, claims, votes, tallies and ledger entries, plus the
// identifier functions and the canonical JSON encoding of ledger lines.
//
// ir imports nothing internal. All other internal packages import ir.
//
// Key constraints:
//   - A cid is the hex SHA-256 of the payload bytes, nothing else
//   - A claim id is "clm_" + 16 hex chars of SHA-1(text)
//   - Ledger lines are RFC 8785 canonical JSON: no floats, no nulls
//   - Timestamps are UTC with second precision (TimeLayout)
package ir
