// Package domain defines the records the matching core reads and writes.
//
// Guests and hosts are owned by intake. The core only mutates the
// reliability fields of a Guest (no_show_count) and never edits a Host.
// Matches and action tokens are owned by the workflow.
//
// # Closed Variants
//
// Match status, token purpose, host response actions, kosher levels and
// contribution buckets are string-backed enums with Valid/Parse helpers.
// Code that switches over them should handle every case explicitly so a
// new variant fails loudly in review instead of silently at runtime.
//
// # Derived Fields
//
// A host's remaining capacity and a guest's match status are never stored
// on the Guest/Host records. They are computed on read from the matches
// table and the capacity ledger (see internal/ledger).
package domain
