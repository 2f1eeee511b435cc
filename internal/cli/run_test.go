package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trawl/internal/engine"
	"github.com/roach88/trawl/internal/executor"
	"github.com/roach88/trawl/internal/model"
)

const testJobID = "0198aaaa-0000-7000-8000-000000000001"

func TestDockerRunLocalCompletes(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	downloadDir := t.TempDir()

	// Executor stand-in that writes into the mounted output volume.
	exec := &executor.Noop{
		RunFunc: func(ctx context.Context, ex executor.Execution) (executor.RunResult, error) {
			for _, m := range ex.Mounts {
				if m.Target == "/outputs" {
					err := os.WriteFile(filepath.Join(m.Source, "final.pdbx"), []byte("atoms"), 0o644)
					require.NoError(t, err)
				}
			}
			return executor.RunResult{ExitCode: 0, Stdout: "simulation done"}, nil
		},
	}

	opts := &DockerRunOptions{
		RootOptions: &RootOptions{Format: "text", ConfigPath: cfgPath},
		Local:       true,
		Download:    true,
		DownloadDir: downloadDir,
		Executor:    exec,
		IDGenerator: engine.NewFixedGenerator(testJobID),
	}

	cmd, buf := newTestCommand(t)
	err := runDockerRun(opts, cmd, []string{"openmm/openmm:7.5.1", "python", "run_openmm_simulation.py"})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "Job submitted: "+model.ShortID(testJobID))
	assert.Contains(t, buf.String(), "Completed")

	dest := filepath.Join(downloadDir, "job-"+model.ShortID(testJobID))
	data, err := os.ReadFile(filepath.Join(dest, "volumes", "outputs", "final.pdbx"))
	require.NoError(t, err)
	assert.Equal(t, "atoms", string(data))

	stdout, err := os.ReadFile(filepath.Join(dest, "stdout"))
	require.NoError(t, err)
	assert.Equal(t, "simulation done", string(stdout))

	// The container saw the entrypoint from the command line.
	execs := exec.Executions()
	require.Len(t, execs, 1)
	assert.Equal(t, []string{"python", "run_openmm_simulation.py"}, execs[0].Entrypoint)
}

func TestDockerRunLocalFailure(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)

	opts := &DockerRunOptions{
		RootOptions: &RootOptions{Format: "text", ConfigPath: cfgPath},
		Local:       true,
		Executor:    &executor.Noop{Result: executor.RunResult{ExitCode: 137}},
		IDGenerator: engine.NewFixedGenerator(testJobID),
	}

	cmd, buf := newTestCommand(t)
	err := runDockerRun(opts, cmd, []string{"busybox"})
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "ended Failed")
	assert.Contains(t, buf.String(), "Failed")
}

func TestDockerRunSubmitOnly(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)

	opts := &DockerRunOptions{
		RootOptions: &RootOptions{Format: "text", ConfigPath: cfgPath},
		Inputs:      []string{"QmUCJuFZyv7xGBt5dAbuCV4HBYa5NTh93m8zHjUPFvTpPM:/project"},
		IDGenerator: engine.NewFixedGenerator(testJobID),
	}

	cmd, buf := newTestCommand(t)
	err := runDockerRun(opts, cmd, []string{"busybox"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Job submitted")

	// Without --wait the job is left Queued for a serve process.
	st := openTestStore(t, cfgPath)
	job, err := st.GetJob(context.Background(), testJobID)
	require.NoError(t, err)
	assert.Equal(t, model.StateQueued, job.State)
	require.Len(t, job.Spec.Inputs, 1)
	assert.Equal(t, "/project", job.Spec.Inputs[0].Path)
	// Default output volume is attached when none is given.
	require.Len(t, job.Spec.Outputs, 1)
	assert.Equal(t, "outputs", job.Spec.Outputs[0].Name)
	assert.Equal(t, "/outputs", job.Spec.Outputs[0].Path)
}

func TestDockerRunJSONOutput(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)

	opts := &DockerRunOptions{
		RootOptions: &RootOptions{Format: "json", ConfigPath: cfgPath},
		Local:       true,
		Executor:    &executor.Noop{},
		IDGenerator: engine.NewFixedGenerator(testJobID),
	}

	cmd, buf := newTestCommand(t)
	err := runDockerRun(opts, cmd, []string{"busybox"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestDockerRunRejectsBadInput(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)

	opts := &DockerRunOptions{
		RootOptions: &RootOptions{Format: "text", ConfigPath: cfgPath},
		Inputs:      []string{"not-a-cid"},
	}

	cmd, _ := newTestCommand(t)
	err := runDockerRun(opts, cmd, []string{"busybox"})
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestParseInputFlag(t *testing.T) {
	spec, err := parseInputFlag("QmUCJuFZyv7xGBt5dAbuCV4HBYa5NTh93m8zHjUPFvTpPM")
	require.NoError(t, err)
	assert.Equal(t, model.StorageIPFS, spec.Kind)
	assert.Equal(t, "/inputs", spec.Path)

	spec, err = parseInputFlag("QmUCJuFZyv7xGBt5dAbuCV4HBYa5NTh93m8zHjUPFvTpPM:/data")
	require.NoError(t, err)
	assert.Equal(t, "/data", spec.Path)

	_, err = parseInputFlag("QmUCJuFZyv7xGBt5dAbuCV4HBYa5NTh93m8zHjUPFvTpPM:relative")
	require.Error(t, err)
}

func TestParseOutputFlag(t *testing.T) {
	spec, err := parseOutputFlag("outputs")
	require.NoError(t, err)
	assert.Equal(t, "outputs", spec.Name)
	assert.Equal(t, "/outputs", spec.Path)

	spec, err = parseOutputFlag("results:/var/results")
	require.NoError(t, err)
	assert.Equal(t, "results", spec.Name)
	assert.Equal(t, "/var/results", spec.Path)

	_, err = parseOutputFlag(":/nameless")
	require.Error(t, err)
}
