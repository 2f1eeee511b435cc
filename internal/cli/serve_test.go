package cli

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trawl/internal/executor"
	"github.com/roach88/trawl/internal/model"
)

func TestServeExecutesQueuedJob(t *testing.T) {
	cfgPath, dataDir := writeTestConfig(t)

	// Fast polling so the loop picks up the seeded job quickly.
	writeConfigWithPoll(t, cfgPath, dataDir, "10ms")

	st := openTestStore(t, cfgPath)
	spec := model.JobSpec{
		Engine:  model.EngineSpec{Image: "busybox", Entrypoint: []string{"true"}},
		Outputs: []model.StorageSpec{{Name: "outputs", Path: "/outputs"}},
	}
	seedJob(t, st, listJobID1, model.StateQueued, spec, time.Now().UTC())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := &ServeOptions{
		RootOptions: &RootOptions{Format: "text", ConfigPath: cfgPath},
		Executor:    &executor.Noop{},
	}
	cmd := &cobra.Command{}
	buf := &outputBuffer{}
	cmd.SetOut(buf)
	cmd.SetContext(ctx)

	done := make(chan error, 1)
	go func() { done <- runServe(opts, cmd) }()

	// Wait for the loop to drive the job to a terminal state.
	deadline := time.Now().Add(5 * time.Second)
	for {
		job, err := st.GetJob(ctx, listJobID1)
		require.NoError(t, err)
		if job.State.IsTerminal() {
			assert.Equal(t, model.StateCompleted, job.State)
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never reached a terminal state, last state %s", job.State)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	require.NoError(t, <-done)
	assert.Contains(t, buf.String(), "Engine started.")
}
