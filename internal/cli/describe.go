package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/trawl/internal/model"
	"github.com/roach88/trawl/internal/store"
)

// DescribeResult is the full description of one job.
type DescribeResult struct {
	Job     model.Job         `json:"job" yaml:"job"`
	Events  []model.JobEvent  `json:"events" yaml:"events"`
	Outputs *model.JobOutputs `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// NewDescribeCommand creates the describe command.
func NewDescribeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "describe <job-id>",
		Short: "Show a job's spec, state, and lifecycle events",
		Long: `Show everything recorded about a job: its spec, current state,
lifecycle event history, and published outputs.

The job may be named by its full ID or by any unambiguous prefix.
Text output is YAML; use --format json for the JSON envelope.

Examples:
  trawl describe 0198aaaa
  trawl describe 0198aaaa-0000-7000-8000-000000000001 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDescribe(rootOpts, cmd, args[0])
		},
	}

	return cmd
}

func runDescribe(opts *RootOptions, cmd *cobra.Command, idOrPrefix string) error {
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

	events, err := st.ListEvents(ctx, job.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list events", err)
	}

	result := DescribeResult{Job: job, Events: events}
	out, err := st.GetOutputs(ctx, job.ID)
	switch {
	case err == nil:
		result.Outputs = &out
	case errors.Is(err, store.ErrNotFound):
		// Not published yet.
	default:
		return WrapExitError(ExitCommandError, "failed to resolve outputs", err)
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.SuccessIndented(result)
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(result)
}
