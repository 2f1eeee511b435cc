// Package publisher moves a job's results from its execution directory
// to wherever they are served from afterwards.
//
// The local publisher keeps results inside the data directory and is
// what `get` reads from. The s3 publisher exports an archive to a
// presigned URL for handing results to object storage.
package publisher

import (
	"context"

	"github.com/roach88/trawl/internal/model"
)

// Publisher persists a job's results directory and later materializes
// it again for download.
type Publisher interface {
	// Name identifies the publisher in job_outputs records.
	Name() string
	// Publish stores resultsDir and returns a publisher-specific
	// reference to the stored results.
	Publish(ctx context.Context, jobID string, resultsDir string) (model.JobOutputs, error)
	// Retrieve copies previously published results into destDir.
	Retrieve(ctx context.Context, out model.JobOutputs, destDir string) error
}
