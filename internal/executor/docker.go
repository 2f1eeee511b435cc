package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// maxCapturedOutput bounds how much container stdout/stderr is kept in
// memory. Jobs write their real results to output volumes; the captured
// streams are for diagnostics only.
const maxCapturedOutput = 1 << 20 // 1MB

// Docker executes jobs with the local docker binary.
type Docker struct {
	// Binary is the docker executable, usually just "docker".
	Binary string
}

// NewDocker returns a Docker executor using the given binary.
// An empty binary defaults to "docker".
func NewDocker(binary string) *Docker {
	if binary == "" {
		binary = "docker"
	}
	return &Docker{Binary: binary}
}

var _ Executor = (*Docker)(nil)

// IsInstalled reports whether the docker binary exists and responds.
func (d *Docker) IsInstalled(ctx context.Context) (bool, error) {
	if _, err := exec.LookPath(d.Binary); err != nil {
		return false, nil
	}
	cmd := exec.CommandContext(ctx, d.Binary, "version", "--format", "{{.Client.Version}}")
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	return true, nil
}

// Run executes the container and waits for it to exit.
//
// The container is started with --rm so the runtime cleans it up, and
// with every mount passed as a bind volume. Cancellation of ctx kills
// the docker process, which tears the container down.
func (d *Docker) Run(ctx context.Context, ex Execution) (RunResult, error) {
	args := d.runArgs(ex)

	slog.Debug("starting container",
		"job_id", ex.JobID,
		"image", ex.Image,
		"args", strings.Join(args, " "),
	)

	cmd := exec.CommandContext(ctx, d.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &boundedWriter{w: &stdout, limit: maxCapturedOutput}
	cmd.Stderr = &boundedWriter{w: &stderr, limit: maxCapturedOutput}

	err := cmd.Run()

	result := RunResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// The container ran and exited non-zero. That is a job
			// outcome, not an executor failure.
			result.ExitCode = exitErr.ExitCode()
			slog.Debug("container exited non-zero",
				"job_id", ex.JobID,
				"exit_code", result.ExitCode,
			)
			return result, nil
		}
		if ctx.Err() != nil {
			return result, fmt.Errorf("container run cancelled: %w", ctx.Err())
		}
		return result, fmt.Errorf("docker run: %w", err)
	}

	return result, nil
}

// runArgs builds the docker run argument list for an execution.
func (d *Docker) runArgs(ex Execution) []string {
	args := []string{"run", "--rm"}

	for _, m := range ex.Mounts {
		spec := fmt.Sprintf("%s:%s", m.Source, m.Target)
		if m.ReadOnly {
			spec += ":ro"
		}
		args = append(args, "-v", spec)
	}
	for _, e := range ex.Env {
		args = append(args, "-e", e)
	}
	if ex.WorkingDir != "" {
		args = append(args, "-w", ex.WorkingDir)
	}
	if ex.CPU != "" {
		args = append(args, "--cpus", ex.CPU)
	}
	if ex.Memory != "" {
		args = append(args, "--memory", ex.Memory)
	}
	if ex.GPU != "" {
		args = append(args, "--gpus", ex.GPU)
	}

	args = append(args, ex.Image)
	args = append(args, ex.Entrypoint...)
	return args
}

// boundedWriter discards bytes past its limit.
type boundedWriter struct {
	w       *bytes.Buffer
	limit   int
	dropped bool
}

func (b *boundedWriter) Write(p []byte) (int, error) {
	remaining := b.limit - b.w.Len()
	if remaining <= 0 {
		b.dropped = true
		return len(p), nil
	}
	if len(p) > remaining {
		b.dropped = true
		b.w.Write(p[:remaining])
		return len(p), nil
	}
	return b.w.Write(p)
}
