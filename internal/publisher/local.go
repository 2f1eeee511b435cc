package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/trawl/internal/model"
	"github.com/roach88/trawl/internal/storage"
)

// Local publishes results into the data directory, under
// executions/<job-id>/outputs. The reference is that directory.
type Local struct {
	// DataDir is the root of the runner's on-disk state.
	DataDir string
}

var _ Publisher = (*Local)(nil)

func (p *Local) Name() string { return "local" }

// Publish copies resultsDir into the data directory.
// Publishing the same job twice overwrites the previous copy, which
// keeps retries idempotent.
func (p *Local) Publish(ctx context.Context, jobID string, resultsDir string) (model.JobOutputs, error) {
	dest := filepath.Join(p.DataDir, "executions", jobID, "outputs")
	if err := os.RemoveAll(dest); err != nil {
		return model.JobOutputs{}, fmt.Errorf("local publish: %w", err)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return model.JobOutputs{}, fmt.Errorf("local publish: %w", err)
	}
	if err := storage.CopyDir(resultsDir, dest); err != nil {
		return model.JobOutputs{}, fmt.Errorf("local publish: %w", err)
	}

	slog.Debug("results published", "job_id", jobID, "dest", dest)

	return model.JobOutputs{
		JobID:     jobID,
		Publisher: p.Name(),
		Reference: dest,
	}, nil
}

// Retrieve copies published results into destDir.
//
// Published results already carry the documented on-disk layout
// (volumes/<name>/..., stdout, stderr), so retrieval is a plain copy:
// downloading a job yields destDir/volumes/outputs/... as promised.
func (p *Local) Retrieve(ctx context.Context, out model.JobOutputs, destDir string) error {
	if _, err := os.Stat(out.Reference); err != nil {
		return fmt.Errorf("local retrieve: published outputs missing: %w", err)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("local retrieve: %w", err)
	}
	if err := storage.CopyDir(out.Reference, destDir); err != nil {
		return fmt.Errorf("local retrieve: %w", err)
	}
	return nil
}
