package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/trawl/internal/engine"
	"github.com/roach88/trawl/internal/executor"
	"github.com/roach88/trawl/internal/jobspec"
)

// RunFileOptions holds flags for the run command.
type RunFileOptions struct {
	*RootOptions
	Wait        bool
	Download    bool
	DownloadDir string
	Local       bool

	// Executor allows overriding the container executor (for testing).
	Executor executor.Executor

	// IDGenerator allows overriding the job ID generator (for testing).
	IDGenerator engine.JobIDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunFileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <spec-file>",
		Short: "Submit a job from a spec file",
		Long: `Submit a job described by a declarative YAML spec file.

The file is validated against the job spec schema (see validate)
before submission. Flag behavior matches docker run.

Examples:
  trawl run job.yaml
  trawl run job.yaml --download --wait
  trawl run job.yaml --local`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFromFile(opts, cmd, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Wait, "wait", false, "block until the job reaches a terminal state")
	cmd.Flags().BoolVar(&opts.Download, "download", false, "download results when the job completes (implies --wait)")
	cmd.Flags().StringVar(&opts.DownloadDir, "download-dir", ".", "directory to download results into")
	cmd.Flags().BoolVar(&opts.Local, "local", false, "execute in-process instead of handing off to a serve daemon")

	return cmd
}

func runFromFile(opts *RunFileOptions, cmd *cobra.Command, path string) error {
	spec, err := jobspec.Load(path)
	if err != nil {
		return WrapExitError(ExitFailure, "invalid job spec", err)
	}

	return executeSubmission(opts.RootOptions, trackOptions{
		Wait:        opts.Wait,
		Download:    opts.Download,
		DownloadDir: opts.DownloadDir,
		Local:       opts.Local,
		Executor:    opts.Executor,
		IDGenerator: opts.IDGenerator,
	}, spec, cmd)
}
