// Package engine drives jobs through their lifecycle on this node.
//
// The engine is a single-writer loop: one goroutine dequeues job IDs
// and walks each job through Preparing, Running, Publishing and a
// terminal state, recording every transition in the store. Submissions
// arrive either through Submit (same process) or by landing in the
// store in Queued state, which the poller picks up (other processes,
// crash recovery).
package engine
