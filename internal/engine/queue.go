package engine

import "sync"

// jobQueue is a thread-safe FIFO queue of job IDs awaiting execution.
//
// The queue is unbounded so submissions never block. Thread-safety
// covers external enqueuing (CLI submissions) while the engine's Run
// loop dequeues.
//
// A buffered signal channel enables context-aware waiting in the Run
// loop; the buffer of one coalesces bursts of signals.
type jobQueue struct {
	mu     sync.Mutex
	ids    []string
	seen   map[string]bool
	closed bool
	signal chan struct{}
}

func newJobQueue() *jobQueue {
	return &jobQueue{
		ids:    make([]string, 0, 16),
		seen:   make(map[string]bool),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a job ID to the back of the queue.
// Duplicate IDs already waiting are ignored, which makes the store
// poller safe to run on an interval.
// Returns false if the queue is closed.
func (q *jobQueue) Enqueue(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if q.seen[id] {
		return true
	}
	q.seen[id] = true
	q.ids = append(q.ids, id)

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns ("", false) if the queue is empty.
func (q *jobQueue) TryDequeue() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ids) == 0 {
		return "", false
	}

	id := q.ids[0]
	q.ids[0] = ""
	delete(q.seen, id)

	if len(q.ids) == 1 {
		q.ids = q.ids[:0]
	} else {
		q.ids = q.ids[1:]
	}

	return id, true
}

// Wait returns the signal channel. A receive means the queue may have
// work; the channel closes when the queue closes.
func (q *jobQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued job IDs.
func (q *jobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

// Close stops the queue. Subsequent Enqueue calls return false.
func (q *jobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
