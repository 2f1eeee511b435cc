// Package model defines the job data model: job specs, job lifecycle
// states, lifecycle events, and content-addressed spec digests.
//
// Everything downstream (store, engine, CLI) speaks in these types.
// The model owns the state machine: which transitions are legal is
// decided here, not in the store or the engine.
package model
