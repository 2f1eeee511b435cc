package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/trawl/internal/config"
	"github.com/roach88/trawl/internal/model"
	"github.com/roach88/trawl/internal/publisher"
)

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	OutputDir string
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <job-id>",
		Short: "Download a job's published results",
		Long: `Download the published results of a completed job.

The job may be named by its full ID or by any unambiguous prefix.
Results land in a job-<id> directory (override with --output-dir)
laid out as volumes/<name>/... plus the captured stdout, stderr,
and exitCode.

Examples:
  trawl get 0198aaaa
  trawl get 0198aaaa --output-dir ./results`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.OutputDir, "output-dir", "", "directory to download results into (default job-<id>)")

	return cmd
}

func runGet(opts *GetOptions, cmd *cobra.Command, idOrPrefix string) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	job, err := st.GetJob(ctx, idOrPrefix)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve job", err)
	}
	if job.State != model.StateCompleted {
		return NewExitError(ExitFailure, fmt.Sprintf("job %s is %s; results exist only for Completed jobs", model.ShortID(job.ID), job.State))
	}

	out, err := st.GetOutputs(ctx, job.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve outputs", err)
	}

	pub, err := publisherFor(cfg, out)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve publisher", err)
	}

	dest := opts.OutputDir
	if dest == "" {
		dest = resultsDestDir(".", job.ID)
	}
	if err := pub.Retrieve(ctx, out, dest); err != nil {
		return WrapExitError(ExitCommandError, "failed to download results", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		return formatter.Success(map[string]any{
			"job_id":     job.ID,
			"output_dir": dest,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Results for job %s downloaded to %s\n", model.ShortID(job.ID), dest)
	return nil
}

// publisherFor maps a stored outputs record to the publisher that can
// retrieve it.
func publisherFor(cfg config.Config, out model.JobOutputs) (publisher.Publisher, error) {
	switch out.Publisher {
	case "local":
		return &publisher.Local{DataDir: cfg.DataDir}, nil
	default:
		return nil, fmt.Errorf("unsupported publisher %q", out.Publisher)
	}
}

// resultsDestDir is where downloaded results land for a job.
func resultsDestDir(baseDir, jobID string) string {
	return filepath.Join(baseDir, "job-"+model.ShortID(jobID))
}
