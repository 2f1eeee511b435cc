package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trawl/internal/config"
	"github.com/roach88/trawl/internal/model"
	"github.com/roach88/trawl/internal/publisher"
	"github.com/roach88/trawl/internal/store"
)

// seedCompletedJob publishes a fake results directory for a Completed
// job, the way the engine would after a successful run.
func seedCompletedJob(t *testing.T, cfgPath string, st *store.Store, jobID string) {
	t.Helper()
	ctx := context.Background()

	spec := model.JobSpec{
		Engine:  model.EngineSpec{Image: "openmm/openmm:7.5.1"},
		Outputs: []model.StorageSpec{{Name: "outputs", Path: "/outputs"}},
	}
	seedJob(t, st, jobID, model.StateCompleted, spec,
		time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))

	resultsDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(resultsDir, "volumes", "outputs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(resultsDir, "volumes", "outputs", "final.pdbx"), []byte("atoms"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(resultsDir, "stdout"), []byte("done"), 0o644))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	pub := &publisher.Local{DataDir: cfg.DataDir}
	out, err := pub.Publish(ctx, jobID, resultsDir)
	require.NoError(t, err)
	require.NoError(t, st.RecordOutputs(ctx, out))
}

func TestGetDownloadsResults(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	st := openTestStore(t, cfgPath)
	seedCompletedJob(t, cfgPath, st, listJobID1)

	dest := filepath.Join(t.TempDir(), "results")
	opts := &GetOptions{
		RootOptions: &RootOptions{Format: "text", ConfigPath: cfgPath},
		OutputDir:   dest,
	}
	cmd, buf := newTestCommand(t)
	require.NoError(t, runGet(opts, cmd, "0198aaaa"))

	assert.Contains(t, buf.String(), "downloaded to "+dest)
	data, err := os.ReadFile(filepath.Join(dest, "volumes", "outputs", "final.pdbx"))
	require.NoError(t, err)
	assert.Equal(t, "atoms", string(data))
	_, err = os.Stat(filepath.Join(dest, "stdout"))
	require.NoError(t, err)
}

func TestGetRejectsNonCompletedJob(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	st := openTestStore(t, cfgPath)
	seedJob(t, st, listJobID1, model.StateRunning,
		model.JobSpec{Engine: model.EngineSpec{Image: "busybox"}},
		time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))

	opts := &GetOptions{RootOptions: &RootOptions{Format: "text", ConfigPath: cfgPath}}
	cmd, _ := newTestCommand(t)
	err := runGet(opts, cmd, listJobID1)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "Running")
}

func TestGetUnknownJob(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)

	opts := &GetOptions{RootOptions: &RootOptions{Format: "text", ConfigPath: cfgPath}}
	cmd, _ := newTestCommand(t)
	err := runGet(opts, cmd, "deadbeef")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
