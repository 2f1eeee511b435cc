package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/trawl/internal/model"
	"github.com/roach88/trawl/internal/publisher"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Archive   string
	UploadURL string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export <job-id>",
		Short: "Archive a job's results, optionally uploading them",
		Long: `Pack a completed job's published results into a tar.gz archive.

With --upload-url, the archive is also uploaded to a presigned object
storage URL via HTTP PUT.

Examples:
  trawl export 0198aaaa
  trawl export 0198aaaa --archive results.tar.gz
  trawl export 0198aaaa --upload-url "https://bucket.s3.amazonaws.com/results.tar.gz?X-Amz-..."`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Archive, "archive", "", "archive file to write (default <job-id>.tar.gz)")
	cmd.Flags().StringVar(&opts.UploadURL, "upload-url", "", "presigned URL to PUT the archive to")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command, idOrPrefix string) error {
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
	if out.Publisher != "local" {
		return WrapExitError(ExitCommandError, "failed to export", fmt.Errorf("unsupported publisher %q", out.Publisher))
	}

	archive := opts.Archive
	if archive == "" {
		archive = model.ShortID(job.ID) + ".tar.gz"
	}
	if err := publisher.ArchiveDir(out.Reference, archive); err != nil {
		return WrapExitError(ExitCommandError, "failed to build archive", err)
	}

	if opts.UploadURL != "" {
		if err := publisher.NewS3Upload().Put(ctx, opts.UploadURL, archive); err != nil {
			return WrapExitError(ExitFailure, "upload failed", err)
		}
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(map[string]any{
			"job_id":   job.ID,
			"archive":  archive,
			"uploaded": opts.UploadURL != "",
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Results for job %s archived to %s\n", model.ShortID(job.ID), archive)
	if opts.UploadURL != "" {
		fmt.Fprintln(cmd.OutOrStdout(), "Archive uploaded.")
	}
	return nil
}
