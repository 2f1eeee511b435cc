package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/trawl/internal/jobspec"
	"github.com/roach88/trawl/internal/model"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <spec-file>",
		Short: "Validate a job spec file",
		Long: `Validate a declarative job spec file without submitting it.

Checks the YAML against the job spec schema and verifies semantic
constraints like CID shapes and mount paths.

Examples:
  trawl validate job.yaml
  trawl validate job.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd, args[0])
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, cmd *cobra.Command, path string) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	spec, err := jobspec.Load(path)
	if err != nil {
		if outErr := formatter.Error("E001", err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFailure, "validation failed", err)
	}

	digest, err := model.SpecDigest(spec)
	if err != nil {
		return WrapExitError(ExitFailure, "validation failed", err)
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{
			"file":        path,
			"spec_digest": digest,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ job spec valid (digest %s)\n", model.ShortID(digest))
	return nil
}
