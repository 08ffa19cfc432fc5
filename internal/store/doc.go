// Package store provides the SQLite-backed relational projection: the
// document index with its full-text shadow, and the claims table.
//
// The ledgers are the audit source of truth. Everything here can be
// rebuilt from them, except seed imports, which bypass the ledgers.
//
// # Tables
//
//   - documents: one row per cid, overwritten on re-ingest
//   - documents_fts: FTS4 shadow, one row per live document
//   - claims: integer id for seed exchange, text digest claim_id for lookup,
//     status and the promotion marker
//
// # Consistency
//
// UpsertDocument writes the metadata row and then replaces the shadow row
// in two statements, with no wrapping transaction. A crash between them
// leaves the shadow stale until the next upsert of that cid.
//
// Promotion is guarded by the promoted column: MarkPromoted flips it with
// a conditional UPDATE so only one caller ever wins.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
