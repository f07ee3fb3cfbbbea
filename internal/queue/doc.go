// Package queue persists missions in SQLite and is the single source of truth
// for their status.
//
// The Store owns schema initialization, busy-retry handling, partial updates,
// paged listings, and the status-group queries the scheduler uses for FIFO
// admission and startup recovery. Ordering is always created_at then id so
// missions created in the same instant keep insertion order.
//
// Schema changes bump the version in schema.go; users delete the database to
// adopt the new schema.
package queue
