package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/bloodcheck/internal/journal"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
	RunID string
}

// RunEntry is the JSON form of a journal run.
type RunEntry struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Mode      string    `json:"mode"`
	Target    string    `json:"target,omitempty"`
	Queries   int       `json:"queries"`
	Failed    int       `json:"failed"`
	Rows      int       `json:"rows"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded query runs",
		Long: `Show the query runs recorded in the run journal, newest first, or the
per-query outcomes of one run with --run.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "number of runs to show (0 for all)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show the queries of this run")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx, stop := commandContext(cmd)
	defer stop()

	cfg, err := opts.loadConfig()
	if err != nil {
		return formatter.Fail(err)
	}
	if cfg.Journal.Path == "" {
		return formatter.Fail(NewExitError(ExitCommandError, "run journal disabled: set journal.path"))
	}
	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return formatter.Fail(WrapExitError(ExitCommandError, "failed to open run journal", err))
	}
	defer j.Close()

	if opts.RunID != "" {
		outcomes, err := j.Outcomes(ctx, opts.RunID)
		if err != nil {
			return formatter.Fail(WrapExitError(ExitFailure, "failed to read run", err))
		}
		if len(outcomes) == 0 {
			return formatter.Fail(NewExitError(ExitFailure, fmt.Sprintf("no queries recorded for run %s", opts.RunID)))
		}
		if formatter.JSON() {
			entries := make([]QueryOutcome, 0, len(outcomes))
			for _, o := range outcomes {
				entries = append(entries, QueryOutcome{Description: o.Description, Status: o.Status, Rows: o.Rows, File: o.File, Error: o.Error})
			}
			return formatter.Success(entries)
		}
		return printOutcomes(cmd, outcomes)
	}

	runs, err := j.Runs(ctx, opts.Limit)
	if err != nil {
		return formatter.Fail(WrapExitError(ExitFailure, "failed to read run journal", err))
	}
	if formatter.JSON() {
		entries := make([]RunEntry, 0, len(runs))
		for _, r := range runs {
			entries = append(entries, RunEntry(r))
		}
		return formatter.Success(entries)
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
		return nil
	}
	return printRuns(cmd, runs)
}

func printRuns(cmd *cobra.Command, runs []journal.Run) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 2, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tMODE\tTARGET\tQUERIES\tFAILED\tROWS")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Mode, r.Target, r.Queries, r.Failed, r.Rows)
	}
	return w.Flush()
}

func printOutcomes(cmd *cobra.Command, outcomes []journal.Outcome) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 2, 2, ' ', 0)
	fmt.Fprintln(w, "#\tQUERY\tSTATUS\tROWS\tFILE\tERROR")
	for _, o := range outcomes {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n", o.Seq, o.Description, o.Status, o.Rows, o.File, o.Error)
	}
	return w.Flush()
}
