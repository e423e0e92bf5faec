// Package sqlite implements the store contracts on SQLite, one database file
// per site.
//
// Each database holds:
//   - things: one row per key with its current type and latest revision
//   - versions: one immutable row per (key, revision) with canonical JSON data
//   - seq: per-prefix counters backing NewKey
//   - accounts: credential records, outside the versioned thing space
//
// # Revisions
//
// SaveMany runs in a single transaction. Each item is assigned the key's
// latest revision plus one, or 1 when the key is new. An item repeated in
// one batch receives consecutive revisions.
//
// # Deterministic Query Results
//
// Every compiled query carries an ORDER BY with a key/revision tiebreaker so
// identical data yields identical result order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package sqlite
