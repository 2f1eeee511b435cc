package executor

import (
	"context"
	"sync"
)

// Noop is a test executor that records executions and returns canned
// results without touching any runtime.
//
// Thread-safety: safe for concurrent use via internal mutex, though the
// engine's single-writer loop only ever calls it from one goroutine.
type Noop struct {
	mu sync.Mutex

	// Result is returned from every Run call.
	Result RunResult
	// Err, when non-nil, is returned from every Run call.
	Err error
	// RunFunc, when non-nil, overrides Result/Err entirely.
	RunFunc func(ctx context.Context, ex Execution) (RunResult, error)

	executions []Execution
}

var _ Executor = (*Noop)(nil)

// IsInstalled always reports true.
func (n *Noop) IsInstalled(ctx context.Context) (bool, error) {
	return true, nil
}

// Run records the execution and returns the configured outcome.
func (n *Noop) Run(ctx context.Context, ex Execution) (RunResult, error) {
	n.mu.Lock()
	n.executions = append(n.executions, ex)
	n.mu.Unlock()

	if n.RunFunc != nil {
		return n.RunFunc(ctx, ex)
	}
	if n.Err != nil {
		return RunResult{}, n.Err
	}
	return n.Result, nil
}

// Executions returns a copy of everything Run has been asked to execute.
func (n *Noop) Executions() []Execution {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Execution, len(n.executions))
	copy(out, n.executions)
	return out
}
