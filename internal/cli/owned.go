package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/bloodcheck/internal/owned"
)

// OwnedResult is the JSON payload of the owned subcommands.
type OwnedResult struct {
	Operation string `json:"operation"`
	Applied   int    `json:"applied"`
	Failed    int    `json:"failed"`
	Wiped     bool   `json:"wiped,omitempty"`
}

// NewOwnedCommand creates the owned command and its subcommands.
func NewOwnedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "owned",
		Short: "Tag compromised principals in the graph",
		Long: `Mark principals as owned from a file of NAME[;WAVE] lines, undo such a
marking, or wipe every owned flag and wave from the graph.`,
	}

	cmd.AddCommand(newOwnedFileCommand(rootOpts, "inject", "Mark the principals of a file as owned"))
	cmd.AddCommand(newOwnedFileCommand(rootOpts, "undo", "Remove the owned marking of the principals of a file"))
	cmd.AddCommand(newOwnedWipeCommand(rootOpts))

	return cmd
}

func newOwnedFileCommand(opts *RootOptions, op, short string) *cobra.Command {
	return &cobra.Command{
		Use:           op + " <file>",
		Short:         short,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			out := formatter.Text()
			ctx, stop := commandContext(cmd)
			defer stop()

			cfg, err := opts.loadConfig()
			if err != nil {
				return formatter.Fail(err)
			}

			file, err := os.Open(args[0])
			if err != nil {
				return formatter.Fail(WrapExitError(ExitCommandError, "failed to open owned file", err))
			}
			entries, err := owned.ParseEntries(file)
			file.Close()
			if err != nil {
				return formatter.Fail(WrapExitError(ExitCommandError, "failed to read owned file", err))
			}

			session, err := opts.openSession(ctx, cmd, cfg, out)
			if err != nil {
				return formatter.Fail(err)
			}
			defer closeSession(ctx, session)

			annotator := owned.NewAnnotator(out)
			var sum owned.Summary
			if op == "inject" {
				sum = annotator.Inject(ctx, session, entries)
			} else {
				sum = annotator.Undo(ctx, session, entries)
			}
			if ctx.Err() != nil {
				aborted(ctx.Err(), out)
			}

			if formatter.JSON() {
				if err := formatter.Success(OwnedResult{Operation: op, Applied: sum.Applied, Failed: sum.Failed}); err != nil {
					return err
				}
			}
			if sum.Failed > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d of %d owned entries failed", sum.Failed, len(entries)))
			}
			return nil
		},
	}
}

func newOwnedWipeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "wipe",
		Short:         "Remove every owned marking from the graph",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			out := formatter.Text()
			ctx, stop := commandContext(cmd)
			defer stop()

			cfg, err := opts.loadConfig()
			if err != nil {
				return formatter.Fail(err)
			}
			session, err := opts.openSession(ctx, cmd, cfg, out)
			if err != nil {
				return formatter.Fail(err)
			}
			defer closeSession(ctx, session)

			wiped, err := owned.NewAnnotator(out).Wipe(ctx, session, opts.prompter(ctx, cmd, out))
			if aborted(err, out) {
				return nil
			}
			if err != nil {
				return formatter.Fail(WrapExitError(ExitFailure, "wipe failed", err))
			}
			if formatter.JSON() {
				return formatter.Success(OwnedResult{Operation: "wipe", Wiped: wiped})
			}
			return nil
		},
	}
}
