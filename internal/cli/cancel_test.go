package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trawl/internal/model"
)

func TestCancelQueuedJob(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	st := openTestStore(t, cfgPath)

	spec := model.JobSpec{Engine: model.EngineSpec{Image: "busybox"}}
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	job := seedJob(t, st, listJobID1, model.StateQueued, spec, created)

	cmd, buf := newTestCommand(t)
	err := runCancel(&RootOptions{Format: "text", ConfigPath: cfgPath}, cmd, "0198aaaa")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Job 0198aaaa cancelled")

	ctx := context.Background()
	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateCancelled, got.State)

	events, err := st.ListEvents(ctx, job.ID)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, model.StateCancelled, last.State)
	assert.Equal(t, "cancelled by user", last.Message)
}

func TestCancelTerminalJob(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	st := openTestStore(t, cfgPath)

	spec := model.JobSpec{Engine: model.EngineSpec{Image: "busybox"}}
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	seedJob(t, st, listJobID1, model.StateCompleted, spec, created)

	cmd, _ := newTestCommand(t)
	err := runCancel(&RootOptions{Format: "text", ConfigPath: cfgPath}, cmd, listJobID1)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "already Completed")

	got, err := st.GetJob(context.Background(), listJobID1)
	require.NoError(t, err)
	assert.Equal(t, model.StateCompleted, got.State, "terminal state untouched")
}

func TestCancelUnknownJob(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)

	cmd, _ := newTestCommand(t)
	err := runCancel(&RootOptions{Format: "text", ConfigPath: cfgPath}, cmd, "deadbeef")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
