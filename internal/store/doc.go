// Package store provides SQLite-backed durable storage for dinnermatch.
//
// Tables:
//   - guests, hosts: registration records written by intake
//   - host_capacity: running committed-seat counter per host
//   - matches: guest-host pairings and their lifecycle timestamps
//   - action_tokens: digests of emailed action links, consumed once
//   - notifications: the outbound message outbox
//   - activity_log: audit trail of every transition
//
// # Atomicity
//
// The pool holds a single connection, so transactions opened with WithTx
// never interleave. A match transition, its ledger update and its token
// consumption commit together or not at all. Notifications are enqueued
// inside a savepoint so a failed enqueue never undoes the transition.
//
// # Idempotency
//
//   - ConsumeToken only updates rows whose consumed_at is NULL
//   - The outbox dedupe_key is UNIQUE and enqueue uses ON CONFLICT DO NOTHING
//   - A partial unique index keeps each guest to one live match
//
// # Deterministic Reads
//
// List queries order by creation time then id, so listings and golden
// snapshots are stable. Timestamps are stored as fixed-width UTC text.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Builds with cgo use github.com/mattn/go-sqlite3, builds without it use
// the pure-Go modernc.org/sqlite driver.
package store
