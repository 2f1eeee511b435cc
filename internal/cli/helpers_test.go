package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trawl/internal/config"
	"github.com/roach88/trawl/internal/model"
	"github.com/roach88/trawl/internal/store"
)

// writeTestConfig creates a config file rooting all tool state in a
// temp directory. Returns the config path and the data directory.
func writeTestConfig(t *testing.T) (string, string) {
	t.Helper()
	dataDir := t.TempDir()
	cfgPath := filepath.Join(dataDir, "config.yaml")
	content := fmt.Sprintf("data_dir: %q\n", dataDir)
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))
	return cfgPath, dataDir
}

// writeConfigWithPoll rewrites a test config with an explicit poll
// interval for serve-loop tests.
func writeConfigWithPoll(t *testing.T, cfgPath, dataDir, poll string) {
	t.Helper()
	content := fmt.Sprintf("data_dir: %q\npoll_interval: %s\n", dataDir, poll)
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))
}

// openTestStore opens the store a test config points at.
func openTestStore(t *testing.T, cfgPath string) *store.Store {
	t.Helper()
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	st, err := store.Open(cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// seedJob inserts a job in the given state with fixed timestamps.
func seedJob(t *testing.T, st *store.Store, id string, state model.JobState, spec model.JobSpec, created time.Time) model.Job {
	t.Helper()
	job := model.Job{
		ID:         id,
		SpecDigest: model.MustSpecDigest(spec),
		Spec:       spec,
		State:      state,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
	require.NoError(t, st.CreateJob(context.Background(), job))
	return job
}

// newTestCommand builds a bare command whose output lands in the
// returned buffer-backed writer.
func newTestCommand(t *testing.T) (*cobra.Command, *outputBuffer) {
	t.Helper()
	buf := &outputBuffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	return cmd, buf
}

// outputBuffer is a minimal threadsafe-enough byte sink for tests.
type outputBuffer struct {
	data []byte
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *outputBuffer) String() string { return string(b.data) }
func (b *outputBuffer) Bytes() []byte  { return b.data }
