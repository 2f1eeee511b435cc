package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/trawl/internal/model"
)

// NewCancelCommand creates the cancel command.
func NewCancelCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a job",
		Long: `Cancel a job that has not yet reached a terminal state.

The job may be named by its full ID or by any unambiguous prefix.
A serve process picks up the Cancelled state before starting the job;
a container already running is left to finish.

Examples:
  trawl cancel 0198aaaa`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCancel(rootOpts, cmd, args[0])
		},
	}

	return cmd
}

func runCancel(opts *RootOptions, cmd *cobra.Command, idOrPrefix string) error {
	cfg, err := loadConfig(opts)
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
	if job.State.IsTerminal() {
		return NewExitError(ExitFailure, fmt.Sprintf("job %s is already %s", model.ShortID(job.ID), job.State))
	}

	if err := st.UpdateJobState(ctx, job.ID, model.StateCancelled, "cancelled by user"); err != nil {
		return WrapExitError(ExitCommandError, "failed to cancel job", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		return formatter.Success(map[string]any{
			"job_id": job.ID,
			"state":  model.StateCancelled,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Job %s cancelled\n", model.ShortID(job.ID))
	return nil
}
