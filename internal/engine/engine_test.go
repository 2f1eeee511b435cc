package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trawl/internal/executor"
	"github.com/roach88/trawl/internal/model"
	"github.com/roach88/trawl/internal/publisher"
	"github.com/roach88/trawl/internal/storage"
	"github.com/roach88/trawl/internal/store"
)

func testEngine(t *testing.T, exec executor.Executor) (*Engine, *store.Store, string) {
	t.Helper()

	dataDir := t.TempDir()
	st, err := store.Open(filepath.Join(dataDir, "trawl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := storage.NewRegistry()
	reg.Register(model.StorageLocal, storage.Local{})

	eng := New(st, dataDir,
		WithExecutor(exec),
		WithStorage(reg),
		WithPublisher(&publisher.Local{DataDir: dataDir}),
		WithIDGenerator(NewFixedGenerator(
			"0198aaaa-0000-7000-8000-000000000001",
			"0198aaaa-0000-7000-8000-000000000002",
		)),
		WithPollInterval(10*time.Millisecond),
	)
	require.NoError(t, eng.Init(context.Background()))
	return eng, st, dataDir
}

func echoSpec() model.JobSpec {
	return model.JobSpec{
		Engine: model.EngineSpec{
			Image:      "ubuntu:22.04",
			Entrypoint: []string{"echo", "hello"},
		},
		Outputs: []model.StorageSpec{{Name: "outputs", Path: "/outputs"}},
	}
}

func TestSubmitCreatesQueuedJob(t *testing.T) {
	eng, st, _ := testEngine(t, &executor.Noop{})
	ctx := context.Background()

	job, err := eng.Submit(ctx, echoSpec())
	require.NoError(t, err)
	assert.Equal(t, "0198aaaa-0000-7000-8000-000000000001", job.ID)
	assert.Equal(t, model.StateQueued, job.State)
	assert.Len(t, job.SpecDigest, 64)

	events, err := st.ListEvents(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.StateQueued, events[0].State)
	assert.Equal(t, "job submitted", events[0].Message)
}

func TestSubmitRejectsInvalidSpec(t *testing.T) {
	eng, _, _ := testEngine(t, &executor.Noop{})

	bad := echoSpec()
	bad.Engine.Image = ""
	_, err := eng.Submit(context.Background(), bad)
	assert.Error(t, err)
	assert.Equal(t, 0, eng.QueueLen())
}

func TestProcessOneCompletesJob(t *testing.T) {
	noop := &executor.Noop{Result: executor.RunResult{Stdout: "hello\n"}}
	eng, st, dataDir := testEngine(t, noop)
	ctx := context.Background()

	job, err := eng.Submit(ctx, echoSpec())
	require.NoError(t, err)
	require.NoError(t, eng.ProcessOne(ctx, job.ID))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateCompleted, got.State)

	// Full lifecycle recorded, in order.
	events, err := st.ListEvents(ctx, job.ID)
	require.NoError(t, err)
	states := make([]model.JobState, len(events))
	for i, ev := range events {
		states[i] = ev.State
	}
	assert.Equal(t, []model.JobState{
		model.StateQueued,
		model.StatePreparing,
		model.StateRunning,
		model.StatePublishing,
		model.StateCompleted,
	}, states)

	// Outputs published and recorded.
	outputs, err := st.GetOutputs(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "local", outputs.Publisher)

	stdout, err := os.ReadFile(filepath.Join(outputs.Reference, "stdout"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(stdout))

	exitCode, err := os.ReadFile(filepath.Join(outputs.Reference, "exitCode"))
	require.NoError(t, err)
	assert.Equal(t, "0", string(exitCode))

	// The output volume directory exists in the published layout.
	_, err = os.Stat(filepath.Join(outputs.Reference, "volumes", "outputs"))
	assert.NoError(t, err)

	// The executor saw the right container.
	execs := noop.Executions()
	require.Len(t, execs, 1)
	assert.Equal(t, "ubuntu:22.04", execs[0].Image)
	assert.Equal(t, []string{"echo", "hello"}, execs[0].Entrypoint)
	require.Len(t, execs[0].Mounts, 1)
	assert.Equal(t, "/outputs", execs[0].Mounts[0].Target)
	assert.False(t, execs[0].Mounts[0].ReadOnly)

	// The execution work dir is rooted in the data dir.
	assert.Contains(t, execs[0].Mounts[0].Source, filepath.Join(dataDir, "executions", job.ID))
}

func TestProcessOnePreparesLocalInputs(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "structure.pdb"), []byte("ATOM"), 0o644))

	noop := &executor.Noop{}
	eng, _, _ := testEngine(t, noop)
	ctx := context.Background()

	spec := echoSpec()
	spec.Inputs = []model.StorageSpec{{Kind: model.StorageLocal, Source: src, Path: "/inputs"}}

	job, err := eng.Submit(ctx, spec)
	require.NoError(t, err)
	require.NoError(t, eng.ProcessOne(ctx, job.ID))

	execs := noop.Executions()
	require.Len(t, execs, 1)
	require.Len(t, execs[0].Mounts, 2)

	input := execs[0].Mounts[0]
	assert.Equal(t, "/inputs", input.Target)
	assert.True(t, input.ReadOnly)

	// The fetched content is on disk where the mount points.
	data, err := os.ReadFile(filepath.Join(input.Source, "structure.pdb"))
	require.NoError(t, err)
	assert.Equal(t, "ATOM", string(data))
}

func TestProcessOneMarksFailedOnExecutorError(t *testing.T) {
	noop := &executor.Noop{Err: errors.New("image pull failed")}
	eng, st, _ := testEngine(t, noop)
	ctx := context.Background()

	job, err := eng.Submit(ctx, echoSpec())
	require.NoError(t, err)
	require.Error(t, eng.ProcessOne(ctx, job.ID))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateFailed, got.State)

	events, err := st.ListEvents(ctx, job.ID)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, model.StateFailed, last.State)
	assert.Contains(t, last.Message, "image pull failed")
}

func TestProcessOneMarksFailedOnNonZeroExit(t *testing.T) {
	noop := &executor.Noop{Result: executor.RunResult{ExitCode: 137, Stderr: "oom"}}
	eng, st, _ := testEngine(t, noop)
	ctx := context.Background()

	job, err := eng.Submit(ctx, echoSpec())
	require.NoError(t, err)
	require.Error(t, eng.ProcessOne(ctx, job.ID))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateFailed, got.State)

	events, err := st.ListEvents(ctx, job.ID)
	require.NoError(t, err)
	assert.Contains(t, events[len(events)-1].Message, "exited with code 137")
}

func TestProcessOneSkipsNonQueuedJobs(t *testing.T) {
	noop := &executor.Noop{}
	eng, _, _ := testEngine(t, noop)
	ctx := context.Background()

	job, err := eng.Submit(ctx, echoSpec())
	require.NoError(t, err)
	require.NoError(t, eng.ProcessOne(ctx, job.ID))
	require.NoError(t, eng.ProcessOne(ctx, job.ID), "terminal job is skipped, not re-run")

	assert.Len(t, noop.Executions(), 1)
}

func TestRunLoopExecutesSubmittedJob(t *testing.T) {
	noop := &executor.Noop{}
	eng, st, _ := testEngine(t, noop)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	job, err := eng.Submit(ctx, echoSpec())
	require.NoError(t, err)

	final, err := WaitForJob(ctx, st, job.ID, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, model.StateCompleted, final.State)

	cancel()
	err = <-done
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunLoopPicksUpStoreQueuedJobs(t *testing.T) {
	// A job written to the store by "another process" (no Enqueue call)
	// must still get executed via the poller.
	noop := &executor.Noop{}
	eng, st, _ := testEngine(t, noop)
	ctx := context.Background()

	spec := echoSpec()
	now := time.Now().UTC()
	job := model.Job{
		ID:         model.NewJobID(),
		SpecDigest: model.MustSpecDigest(spec),
		Spec:       spec,
		State:      model.StateQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, st.CreateJob(ctx, job))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- eng.Run(runCtx) }()

	final, err := WaitForJob(ctx, st, job.ID, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, model.StateCompleted, final.State)

	cancel()
	<-done
}

func TestCrossProcessLifecycleRecordsEveryTransition(t *testing.T) {
	// One engine submits (the CLI), a second engine with its own store
	// handle executes (the serve daemon). Every transition must land in
	// the event history; the executing engine must not reuse the seq the
	// Queued event already holds.
	noop := &executor.Noop{}
	eng, st, dataDir := testEngine(t, noop)
	ctx := context.Background()

	job, err := eng.Submit(ctx, echoSpec())
	require.NoError(t, err)

	st2, err := store.Open(filepath.Join(dataDir, "trawl.db"))
	require.NoError(t, err)
	defer st2.Close()

	eng2 := New(st2, dataDir, WithExecutor(noop))
	require.NoError(t, eng2.ProcessOne(ctx, job.ID))

	events, err := st.ListEvents(ctx, job.ID)
	require.NoError(t, err)
	states := make([]model.JobState, len(events))
	for i, ev := range events {
		states[i] = ev.State
		assert.Equal(t, int64(i+1), ev.Seq, "seqs are dense and per-job")
	}
	assert.Equal(t, []model.JobState{
		model.StateQueued,
		model.StatePreparing,
		model.StateRunning,
		model.StatePublishing,
		model.StateCompleted,
	}, states)
}
