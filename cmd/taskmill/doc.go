// Package main hosts the taskmill CLI entrypoint and command graph.
//
// The Cobra-based command tree covers the full lifecycle of a task group:
// schema management (init, deinit), enqueueing and inspection (queue add,
// list, show, status), maintenance (retry, pause, resume, delete, purge),
// and worker execution (run, stop). It centralizes configuration resolution
// and store access so subcommands stay declarative.
//
// Programs that embed the queue use the internal packages directly; this
// binary is the operator surface.
package main
