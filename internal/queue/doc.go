// Package queue owns durable task state: the SQLite schema, row-level
// operations, status transitions, and the enqueue API. Tasks are always
// scoped to a group; the unique (group, signature) index deduplicates
// logically identical work at insert time.
package queue
