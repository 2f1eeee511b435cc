// Package store provides durable SQLite-backed storage for jobs, their
// lifecycle events, and their published outputs.
//
// The store is the single coordination point between the CLI and the
// engine: submissions land here, the engine claims work from here, and
// describe/list/get read from here. SQLite in WAL mode gives concurrent
// readers while the engine writes.
package store
