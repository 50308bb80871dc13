package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/bloodcheck/internal/graph"
	"github.com/roach88/bloodcheck/internal/pipeline"
	"github.com/roach88/bloodcheck/internal/prompt"
	"github.com/roach88/bloodcheck/internal/report"
	"github.com/roach88/bloodcheck/internal/service"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// The fields below replace the real implementations when set.
	OpenSession func(ctx context.Context, creds graph.Credentials) (graph.Session, error)
	Controller  service.Controller
	Prompter    prompt.Prompter
	Now         func() time.Time
	Suffixes    report.Generator
	RunIDs      report.Generator
	Publisher   report.Publisher
	Tracer      trace.Tracer
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the bloodcheck CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	var provider *sdktrace.TracerProvider

	cmd := &cobra.Command{
		Use:   "bloodcheck",
		Short: "BloodCheck - BloodHound database companion",
		Long: "Run Cypher query definitions against a BloodHound Neo4j database, merge the results " +
			"into a spreadsheet report and manage the local database instances.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}

			logLevel := slog.LevelWarn
			if opts.Verbose {
				logLevel = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel}))
			slog.SetDefault(logger)

			if opts.Verbose && opts.Tracer == nil {
				provider = pipeline.NewTracerProvider(logger)
				opts.Tracer = provider.Tracer(pipeline.TracerName)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if provider == nil {
				return nil
			}
			if err := provider.Shutdown(context.Background()); err != nil {
				slog.Warn("tracer shutdown failed", "error", err)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "configuration file (YAML)")

	// Add subcommands
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewDBCommand(opts))
	cmd.AddCommand(NewOwnedCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
