// Package store provides SQLite-backed storage for bounty documents.
//
// The store holds four tables:
//   - bounties: one JSON document per bounty, plus filter columns
//   - changes: the change feed, appended in the same transaction as the
//     mutation it reports
//   - feed_cursors: per-consumer feed positions, so a restarted reconciler
//     resumes where it stopped
//   - side_effects: the exactly-once ledger for rendering and notification
//
// # Conditional Writes
//
// ConditionalUpdate replaces a document only if the stored snapshot hash
// still equals the hash of the caller's previous read. A zero modified count
// means another writer got there first.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Infrastructure failures are returned as domain DependencyUnavailable
// errors; a missing bounty is a domain NotFound.
package store
