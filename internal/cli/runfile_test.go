package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trawl/internal/engine"
	"github.com/roach88/trawl/internal/executor"
	"github.com/roach88/trawl/internal/model"
)

func TestRunFromFileLocal(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)

	specPath := filepath.Join(t.TempDir(), "job.yaml")
	specYAML := `
engine:
  image: "busybox"
  entrypoint: ["sh", "-c", "echo hi"]
outputs:
  - name: "outputs"
    path: "/outputs"
`
	require.NoError(t, os.WriteFile(specPath, []byte(specYAML), 0o644))

	opts := &RunFileOptions{
		RootOptions: &RootOptions{Format: "text", ConfigPath: cfgPath},
		Local:       true,
		Executor:    &executor.Noop{Result: executor.RunResult{Stdout: "hi\n"}},
		IDGenerator: engine.NewFixedGenerator(testJobID),
	}
	cmd, buf := newTestCommand(t)
	require.NoError(t, runFromFile(opts, cmd, specPath))

	assert.Contains(t, buf.String(), "Job submitted")
	assert.Contains(t, buf.String(), "Completed")
}

func TestRunFromFileSubmitOnly(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)

	specPath := filepath.Join(t.TempDir(), "job.yaml")
	specYAML := `
engine:
  image: "openmm/openmm:7.5.1"
inputs:
  - kind: "ipfs"
    cid: "QmUCJuFZyv7xGBt5dAbuCV4HBYa5NTh93m8zHjUPFvTpPM"
    path: "/project"
`
	require.NoError(t, os.WriteFile(specPath, []byte(specYAML), 0o644))

	opts := &RunFileOptions{
		RootOptions: &RootOptions{Format: "text", ConfigPath: cfgPath},
		IDGenerator: engine.NewFixedGenerator(testJobID),
	}
	cmd, _ := newTestCommand(t)
	require.NoError(t, runFromFile(opts, cmd, specPath))

	st := openTestStore(t, cfgPath)
	job, err := st.GetJob(context.Background(), testJobID)
	require.NoError(t, err)
	assert.Equal(t, model.StateQueued, job.State)
	require.Len(t, job.Spec.Inputs, 1)
	assert.Equal(t, "QmUCJuFZyv7xGBt5dAbuCV4HBYa5NTh93m8zHjUPFvTpPM", job.Spec.Inputs[0].CID)
}

func TestRunFromFileRejectsInvalidSpec(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)

	specPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(specPath, []byte("engine: {}\n"), 0o644))

	opts := &RunFileOptions{RootOptions: &RootOptions{Format: "text", ConfigPath: cfgPath}}
	cmd, _ := newTestCommand(t)
	err := runFromFile(opts, cmd, specPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
