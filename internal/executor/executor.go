// Package executor runs a job's container against a local runtime.
//
// The runtime itself is an opaque external dependency: the docker
// implementation shells out to the docker binary rather than linking a
// client SDK, so the only contract is the CLI surface.
package executor

import "context"

// Mount binds a prepared host directory into the container.
type Mount struct {
	// Source is the absolute host path.
	Source string
	// Target is the mount point inside the container.
	Target string
	// ReadOnly is true for input volumes.
	ReadOnly bool
}

// Execution is everything the executor needs to run one job.
// Storage has already been prepared: every Mount's Source exists on the
// host by the time Run is called.
type Execution struct {
	JobID      string
	Image      string
	Entrypoint []string
	Env        []string
	WorkingDir string
	Mounts     []Mount

	// Resource requests, passed through to the runtime.
	CPU    string
	Memory string
	GPU    string
}

// RunResult captures the outcome of a container run.
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Executor abstracts the container runtime.
//
// IsInstalled tells you whether the required runtime is available on
// this machine; the engine checks it once before accepting work.
// Run executes a prepared job and blocks until it exits or the context
// is cancelled. A non-zero container exit code is reported through
// RunResult, not through the error.
type Executor interface {
	IsInstalled(ctx context.Context) (bool, error)
	Run(ctx context.Context, exec Execution) (RunResult, error)
}
