package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/roach88/trawl/internal/executor"
	"github.com/roach88/trawl/internal/model"
	"github.com/roach88/trawl/internal/publisher"
	"github.com/roach88/trawl/internal/storage"
	"github.com/roach88/trawl/internal/store"
)

// DefaultPollInterval is how often the run loop scans the store for
// jobs submitted by other processes.
const DefaultPollInterval = 2 * time.Second

// Engine walks jobs through their lifecycle.
//
// CRITICAL: All state transitions happen in the single-writer Run loop
// goroutine (or in a direct ProcessOne call, which must not race with a
// running loop on the same job).
//
// Thread-safety model:
//   - Submit(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Engine struct {
	store        *store.Store
	exec         executor.Executor
	storage      *storage.Registry
	pub          publisher.Publisher
	queue        *jobQueue
	idGen        JobIDGenerator
	dataDir      string
	pollInterval time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithExecutor overrides the container executor.
func WithExecutor(e executor.Executor) Option {
	return func(eng *Engine) { eng.exec = e }
}

// WithPublisher overrides the results publisher.
func WithPublisher(p publisher.Publisher) Option {
	return func(eng *Engine) { eng.pub = p }
}

// WithStorage overrides the storage provider registry.
func WithStorage(r *storage.Registry) Option {
	return func(eng *Engine) { eng.storage = r }
}

// WithIDGenerator overrides the job ID generator (for testing).
func WithIDGenerator(g JobIDGenerator) Option {
	return func(eng *Engine) { eng.idGen = g }
}

// WithPollInterval overrides how often the store is scanned for
// queued jobs.
func WithPollInterval(d time.Duration) Option {
	return func(eng *Engine) { eng.pollInterval = d }
}

// New creates an Engine rooted at dataDir.
//
// Defaults: docker executor, local publisher under dataDir, ipfs and
// local storage providers, UUIDv7 job IDs. Options override each.
func New(st *store.Store, dataDir string, opts ...Option) *Engine {
	reg := storage.NewRegistry()
	reg.Register(model.StorageIPFS, storage.NewIPFS(""))
	reg.Register(model.StorageLocal, storage.Local{})

	e := &Engine{
		store:        st,
		exec:         executor.NewDocker(""),
		storage:      reg,
		pub:          &publisher.Local{DataDir: dataDir},
		queue:        newJobQueue(),
		idGen:        UUIDv7Generator{},
		dataDir:      dataDir,
		pollInterval: DefaultPollInterval,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Init prepares the engine for execution by verifying the container
// runtime is available. Submit-only callers can skip it: event ordering
// comes from the store, which allocates sequence numbers transactionally.
func (e *Engine) Init(ctx context.Context) error {
	installed, err := e.exec.IsInstalled(ctx)
	if err != nil {
		return fmt.Errorf("engine init: check runtime: %w", err)
	}
	if !installed {
		return fmt.Errorf("engine init: container runtime is not installed")
	}

	return nil
}

// Submit validates a spec, persists a new Queued job, and enqueues it
// for execution. Thread-safe: may be called from any goroutine.
func (e *Engine) Submit(ctx context.Context, spec model.JobSpec) (model.Job, error) {
	if err := spec.Validate(); err != nil {
		return model.Job{}, err
	}

	digest, err := model.SpecDigest(spec)
	if err != nil {
		return model.Job{}, err
	}

	now := time.Now().UTC()
	job := model.Job{
		ID:         e.idGen.Generate(),
		SpecDigest: digest,
		Spec:       spec,
		State:      model.StateQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := e.store.CreateJob(ctx, job); err != nil {
		return model.Job{}, err
	}

	if err := e.store.AppendEvent(ctx, model.JobEvent{
		JobID:     job.ID,
		State:     model.StateQueued,
		Message:   "job submitted",
		Timestamp: now,
	}); err != nil {
		return model.Job{}, err
	}

	e.queue.Enqueue(job.ID)

	slog.Info("job submitted",
		"job_id", job.ID,
		"image", spec.Engine.Image,
		"spec_digest", model.ShortID(digest),
	)

	return job, nil
}

// Run starts the single-writer execution loop.
// Blocks until the context is cancelled.
//
// ERROR HANDLING: A failing job is marked Failed with the error as its
// final event, and the loop continues with the next job. Only store
// corruption or context cancellation stop the loop.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "data_dir", e.dataDir)

	// Pick up jobs left Queued by a previous process before waiting
	// for new work.
	e.requeueFromStore(ctx)

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		id, ok := e.queue.TryDequeue()
		if ok {
			e.processJob(ctx, id)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			if e.queue.Len() == 0 {
				// Queue closed and drained.
				slog.Info("engine stopping: queue closed")
				return nil
			}

		case <-ticker.C:
			e.requeueFromStore(ctx)
		}
	}
}

// Stop gracefully shuts down the engine by closing its queue.
func (e *Engine) Stop() {
	e.queue.Close()
}

// ProcessOne synchronously executes a single job to a terminal state.
// Used by `docker run --local`, where no serve loop exists.
func (e *Engine) ProcessOne(ctx context.Context, jobID string) error {
	return e.processJob(ctx, jobID)
}

// QueueLen returns the number of jobs waiting in the queue.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// requeueFromStore enqueues every job the store reports as Queued.
// Duplicate enqueues are coalesced by the queue, so calling this on an
// interval is harmless.
func (e *Engine) requeueFromStore(ctx context.Context) {
	ids, err := e.store.ListJobsInState(ctx, model.StateQueued)
	if err != nil {
		slog.Error("requeue scan failed", "error", err)
		return
	}
	for _, id := range ids {
		e.queue.Enqueue(id)
	}
}

// processJob drives one job to a terminal state.
// CRITICAL: Called only from the Run goroutine (or ProcessOne).
func (e *Engine) processJob(ctx context.Context, jobID string) error {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		slog.Error("job lookup failed", "job_id", jobID, "error", err)
		return err
	}

	if job.State != model.StateQueued {
		// Another path already claimed it, or it is terminal.
		slog.Debug("skipping job not in Queued state", "job_id", jobID, "state", job.State)
		return nil
	}

	if err := e.runPipeline(ctx, job); err != nil {
		e.markFailed(job.ID, err)
		return err
	}

	return nil
}

// runPipeline executes the Preparing -> Running -> Publishing ->
// Completed sequence for a job. Any returned error means the job must
// be marked Failed.
func (e *Engine) runPipeline(ctx context.Context, job model.Job) error {
	execDir := filepath.Join(e.dataDir, "executions", job.ID)
	resultsDir := filepath.Join(execDir, "results")

	// Preparing: fetch every input volume onto local disk.
	if err := e.transition(ctx, job.ID, model.StatePreparing, "fetching input volumes"); err != nil {
		return err
	}

	var mounts []executor.Mount
	for i, in := range job.Spec.Inputs {
		dest := filepath.Join(execDir, "inputs", strconv.Itoa(i))
		provider, err := e.storage.Get(in.Kind)
		if err != nil {
			return err
		}
		if err := provider.Fetch(ctx, in, dest); err != nil {
			return fmt.Errorf("prepare input %d: %w", i, err)
		}
		mounts = append(mounts, executor.Mount{Source: dest, Target: in.Path, ReadOnly: true})
	}

	// Output volumes live inside the results dir so the published
	// artifact carries the documented volumes/<name> layout.
	for _, out := range job.Spec.Outputs {
		dir := filepath.Join(resultsDir, "volumes", out.Name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("prepare output %q: %w", out.Name, err)
		}
		mounts = append(mounts, executor.Mount{Source: dir, Target: out.Path})
	}

	// Running: hand off to the container runtime.
	if err := e.transition(ctx, job.ID, model.StateRunning, "container executing"); err != nil {
		return err
	}

	result, err := e.exec.Run(ctx, executor.Execution{
		JobID:      job.ID,
		Image:      job.Spec.Engine.Image,
		Entrypoint: job.Spec.Engine.Entrypoint,
		Env:        job.Spec.Engine.Env,
		WorkingDir: job.Spec.Engine.WorkingDir,
		Mounts:     mounts,
		CPU:        job.Spec.Resources.CPU,
		Memory:     job.Spec.Resources.Memory,
		GPU:        job.Spec.Resources.GPU,
	})
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}

	if err := writeRunArtifacts(resultsDir, result); err != nil {
		return err
	}

	if result.ExitCode != 0 {
		return fmt.Errorf("container exited with code %d", result.ExitCode)
	}

	// Publishing: move results to their served location.
	if err := e.transition(ctx, job.ID, model.StatePublishing, "publishing results"); err != nil {
		return err
	}

	outputs, err := e.pub.Publish(ctx, job.ID, resultsDir)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	if err := e.store.RecordOutputs(ctx, outputs); err != nil {
		return err
	}

	if err := e.transition(ctx, job.ID, model.StateCompleted, "job completed"); err != nil {
		return err
	}

	slog.Info("job completed", "job_id", job.ID, "outputs", outputs.Reference)
	return nil
}

// writeRunArtifacts records captured container streams and the exit
// code alongside the output volumes.
func writeRunArtifacts(resultsDir string, result executor.RunResult) error {
	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		return fmt.Errorf("write run artifacts: %w", err)
	}
	files := map[string]string{
		"stdout":   result.Stdout,
		"stderr":   result.Stderr,
		"exitCode": strconv.Itoa(result.ExitCode),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(resultsDir, name), []byte(content), 0o644); err != nil {
			return fmt.Errorf("write run artifacts: %w", err)
		}
	}
	return nil
}

// transition moves a job to the next state with a lifecycle event.
func (e *Engine) transition(ctx context.Context, jobID string, next model.JobState, message string) error {
	return e.store.UpdateJobState(ctx, jobID, next, message)
}

// markFailed records a job failure. Uses a fresh context so failures
// are still recorded when the triggering context is already cancelled.
func (e *Engine) markFailed(jobID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Error("job failed", "job_id", jobID, "error", cause)

	err := e.store.UpdateJobState(ctx, jobID, model.StateFailed, cause.Error())
	if err != nil {
		slog.Error("recording job failure failed", "job_id", jobID, "error", err)
	}
}

// WaitForJob polls the store until the job reaches a terminal state or
// the context is cancelled.
func WaitForJob(ctx context.Context, st *store.Store, jobID string, interval time.Duration) (model.Job, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := st.GetJob(ctx, jobID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return model.Job{}, err
		}
		if err == nil && job.State.IsTerminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return model.Job{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
