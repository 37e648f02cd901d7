// Package store persists gallery queue state in SQLite.
//
// It owns the schema (galleries, per-image records, tabs, pending renames,
// secondary uploads), applies embedded migrations idempotently on every open,
// and provides the batch upsert keyed by gallery path that the queue manager
// relies on. A background Writer serializes durable writes: callers mark
// paths dirty and the writer flushes all pending paths in one transaction on
// a fixed interval, so rapid in-memory mutations coalesce into few I/O
// operations.
package store
