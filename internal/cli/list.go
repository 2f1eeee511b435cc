package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/trawl/internal/model"
	"github.com/roach88/trawl/internal/store"
)

// DefaultListLimit caps list output unless --number says otherwise.
const DefaultListLimit = 10

// listTimeFormat renders the CREATED column. Always UTC so output is
// stable across machines.
const listTimeFormat = "2006-01-02 15:04:05"

// maxJobColumnWidth truncates the JOB column in styled output.
const maxJobColumnWidth = 30

// ListRow is one row of list output.
type ListRow struct {
	Created   string `json:"created"`
	ID        string `json:"id"`
	Job       string `json:"job"`
	State     string `json:"state"`
	Published string `json:"published"`
}

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	IDFilter string
	Number   int
	NoStyle  bool
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		Long: `List jobs recorded in the store, newest first.

Shows the most recent jobs by default; raise --number to see more.
--id-filter restricts output to jobs whose ID starts with the given
prefix, and --no-style emits tab-separated values for scripting.

Examples:
  trawl list
  trawl list --number 50
  trawl list --id-filter 0198aaaa --no-style`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.IDFilter, "id-filter", "", "only show jobs whose ID has this prefix")
	cmd.Flags().IntVarP(&opts.Number, "number", "n", DefaultListLimit, "maximum number of jobs to show")
	cmd.Flags().BoolVar(&opts.NoStyle, "no-style", false, "plain tab-separated output")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
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

	jobs, err := st.ListJobs(ctx, opts.IDFilter, opts.Number)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list jobs", err)
	}

	rows := make([]ListRow, 0, len(jobs))
	for _, job := range jobs {
		published := "-"
		out, err := st.GetOutputs(ctx, job.ID)
		switch {
		case err == nil:
			published = out.Publisher
		case errors.Is(err, store.ErrNotFound):
			// Not published.
		default:
			return WrapExitError(ExitCommandError, "failed to resolve outputs", err)
		}

		rows = append(rows, ListRow{
			Created:   job.CreatedAt.UTC().Format(listTimeFormat),
			ID:        model.ShortID(job.ID),
			Job:       jobSummary(job.Spec),
			State:     string(job.State),
			Published: published,
		})
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.SuccessIndented(rows)
	}

	w := cmd.OutOrStdout()
	if opts.NoStyle {
		fmt.Fprintln(w, "CREATED\tID\tJOB\tSTATE\tPUBLISHED")
		for _, row := range rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", row.Created, row.ID, row.Job, row.State, row.Published)
		}
		return nil
	}

	fmt.Fprintf(w, "%-20s %-9s %-31s %-11s %s\n", "CREATED", "ID", "JOB", "STATE", "PUBLISHED")
	for _, row := range rows {
		fmt.Fprintf(w, "%-20s %-9s %-31s %-11s %s\n",
			row.Created, row.ID, truncate(row.Job, maxJobColumnWidth), row.State, row.Published)
	}
	return nil
}

// jobSummary renders a spec as a one-line command description.
func jobSummary(spec model.JobSpec) string {
	parts := append([]string{spec.Engine.Image}, spec.Engine.Entrypoint...)
	return strings.Join(parts, " ")
}

// truncate shortens s to max characters, marking the cut with "...".
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
