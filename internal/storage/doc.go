// Package storage is the orchestrator's durable client storage.
//
// Store is a small string key/value contract with two backends: Memory for
// tests and ephemeral sessions, and SQLite (pure Go, modernc.org/sqlite) for
// state that must survive restarts. On top of it sit the two records the
// orchestrator persists: per-project manifest hashes (HashHistory) and the
// last classified dev server failure (FailureSlot).
package storage
