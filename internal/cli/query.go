package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/bloodcheck/internal/config"
	"github.com/roach88/bloodcheck/internal/pipeline"
	"github.com/roach88/bloodcheck/internal/querydef"
	"github.com/roach88/bloodcheck/internal/report"
)

// QueryOptions holds flags shared by the query subcommands.
type QueryOptions struct {
	*RootOptions
	Save   bool
	Output string // output directory, overrides output.directory
}

// QueryReport is the JSON payload of a query run.
type QueryReport struct {
	RunID      string         `json:"run_id"`
	OK         int            `json:"ok"`
	Empty      int            `json:"empty"`
	Failed     int            `json:"failed"`
	LoadFailed int            `json:"load_failed"`
	Merged     string         `json:"merged,omitempty"`
	Queries    []QueryOutcome `json:"queries"`
}

// QueryOutcome is the JSON form of one query outcome.
type QueryOutcome struct {
	Description string `json:"description"`
	Status      string `json:"status"`
	Rows        int    `json:"rows"`
	File        string `json:"file,omitempty"`
	Error       string `json:"error,omitempty"`
}

// loadFunc returns the definitions to run and the number that failed to load.
type loadFunc func(out io.Writer) ([]querydef.Definition, int, error)

// NewQueryCommand creates the query command and its subcommands.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run Cypher query definitions against the active database",
		Long: `Run query definitions (YAML files with Description, Headers and Query keys)
against the database, print a preview of every result and optionally save
each result to CSV and merge the run into one spreadsheet.`,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Save, "save", "s", false, "save results and merge them into a spreadsheet")
	cmd.PersistentFlags().StringVarP(&opts.Output, "output", "o", "", "output directory (default from configuration)")

	cmd.AddCommand(newQuerySubcommand(opts, "file <file>", "Run a single query definition file", "file",
		func(args []string) loadFunc { return loadFile(args[0]) }))
	cmd.AddCommand(newQuerySubcommand(opts, "dir <dir>", "Run every query definition file in a directory", "dir",
		func(args []string) loadFunc { return loadDirs(args[0], false) }))
	cmd.AddCommand(newQuerySubcommand(opts, "subdir <dir>", "Run a directory and its immediate subdirectories", "subdir",
		func(args []string) loadFunc { return loadDirs(args[0], true) }))
	cmd.AddCommand(newAnalyticsCommand(opts))

	return cmd
}

func newQuerySubcommand(opts *QueryOptions, use, short, mode string, load func(args []string) loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueries(opts, cmd, mode, args[0], load(args))
		},
	}
}

func newAnalyticsCommand(opts *QueryOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "analytics",
		Short:         "Run the built-in analytics queries",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueries(opts, cmd, "analytics", "", func(out io.Writer) ([]querydef.Definition, int, error) {
				fmt.Fprintf(out, "[+] Running analytics...\n")
				return pipeline.Analytics(), 0, nil
			})
		},
	}
}

func loadFile(path string) loadFunc {
	return func(out io.Writer) ([]querydef.Definition, int, error) {
		def, err := querydef.LoadFile(path)
		if err != nil {
			fmt.Fprintf(out, "[!] Error while loading the yaml file [%s]\n", path)
			return nil, 1, nil
		}
		return []querydef.Definition{def}, 0, nil
	}
}

// loadDirs loads root, and its immediate subdirectories when nested is set.
func loadDirs(root string, nested bool) loadFunc {
	return func(out io.Writer) ([]querydef.Definition, int, error) {
		dirs := []string{root}
		if nested {
			tree, err := querydef.Tree(root)
			if err != nil {
				return nil, 0, WrapExitError(ExitCommandError, "failed to read query directory", err)
			}
			dirs = tree
		}

		var (
			defs   []querydef.Definition
			failed int
		)
		for _, dir := range dirs {
			fmt.Fprintf(out, "[+] Loading query files from directory [%s]\n", dir)
			loaded, errs := querydef.LoadDir(dir)
			for _, err := range errs {
				var defErr *querydef.DefinitionError
				if !errors.As(err, &defErr) {
					return nil, 0, WrapExitError(ExitCommandError, "failed to read query directory", err)
				}
				fmt.Fprintf(out, "[!] Error while loading the yaml file [%s]\n", defErr.Path)
				failed++
			}
			fmt.Fprintf(out, "[+] %d %s loaded !\n", len(loaded), querydef.Plural(len(loaded), "query file", "query files"))
			defs = append(defs, loaded...)
		}
		return defs, failed, nil
	}
}

func runQueries(opts *QueryOptions, cmd *cobra.Command, mode, target string, load loadFunc) error {
	formatter := opts.formatter(cmd)
	out := formatter.Text()
	ctx, stop := commandContext(cmd)
	defer stop()

	cfg, err := opts.loadConfig()
	if err != nil {
		return formatter.Fail(err)
	}
	opts.logConfig(formatter, cfg)

	defs, loadFailed, err := load(out)
	if err != nil {
		return formatter.Fail(err)
	}
	if len(defs) == 0 {
		fmt.Fprintf(out, "[!] No query to run\n")
		if loadFailed > 0 {
			return formatter.Fail(NewExitError(ExitFailure, fmt.Sprintf("%d query %s could not be loaded",
				loadFailed, querydef.Plural(loadFailed, "definition", "definitions"))))
		}
		return nil
	}

	started := opts.now()
	rc := &pipeline.RunContext{
		RunID:   opts.runID(),
		Started: started,
		Mode:    mode,
		Target:  target,
		Save:    opts.Save,
		Tracer:  opts.Tracer,
		Out:     out,
	}
	if opts.Save {
		if err := opts.prepareOutput(ctx, formatter, cfg, rc); err != nil {
			return formatter.Fail(err)
		}
	}

	session, err := opts.openSession(ctx, cmd, cfg, out)
	if err != nil {
		return formatter.Fail(err)
	}
	defer closeSession(ctx, session)
	rc.Session = session

	if j := openJournal(cfg); j != nil {
		defer j.Close()
		rc.Journal = j
	}

	runner := pipeline.NewRunner()
	outcomes := runner.Run(ctx, rc, defs)
	if ctx.Err() != nil {
		aborted(ctx.Err(), out)
		return formatter.Fail(NewExitError(ExitFailure, "query run interrupted"))
	}
	sum, finishErr := runner.Finish(ctx, rc, outcomes)

	if formatter.JSON() {
		if err := formatter.Success(newQueryReport(rc.RunID, sum, loadFailed, outcomes)); err != nil {
			return err
		}
	}

	switch {
	case finishErr != nil:
		return WrapExitError(ExitFailure, "failed to finish run", finishErr)
	case sum.Failed > 0 || loadFailed > 0:
		return NewExitError(ExitFailure, fmt.Sprintf("%d %s failed, %d could not be loaded",
			sum.Failed, querydef.Plural(sum.Failed, "query", "queries"), loadFailed))
	}
	return nil
}

func (o *QueryOptions) runID() string {
	if o.RunIDs != nil {
		return o.RunIDs.Generate()
	}
	return pipeline.UUIDv7{}.Generate()
}

// prepareOutput creates the output directory, checks that it is writable and
// attaches the report writer and publisher to rc.
func (o *QueryOptions) prepareOutput(ctx context.Context, formatter *OutputFormatter, cfg *config.Config, rc *pipeline.RunContext) error {
	dir := o.Output
	if dir == "" {
		dir = cfg.Output.Directory
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return WrapExitError(ExitCommandError, "failed to create output directory", err)
	}
	if err := report.CheckWritable(dir); err != nil {
		return WrapExitError(ExitCommandError, "output directory is not writable", err)
	}
	fmt.Fprintf(rc.Out, "[+] Saving results to directory [%s]\n", dir)
	if abs, err := filepath.Abs(dir); err == nil {
		formatter.VerboseLog("[*] Output directory: %s", abs)
	}

	w := report.NewWriter(dir, rc.Started)
	if o.Suffixes != nil {
		w.Suffixes = o.Suffixes
	}
	rc.Writer = w

	switch {
	case o.Publisher != nil:
		rc.Publisher = o.Publisher
	case cfg.Publish.S3.Bucket != "":
		s3cfg := cfg.Publish.S3
		p, err := report.NewS3Publisher(ctx, report.S3Options{
			Bucket:       s3cfg.Bucket,
			Prefix:       s3cfg.Prefix,
			Region:       s3cfg.Region,
			Endpoint:     s3cfg.Endpoint,
			UsePathStyle: s3cfg.UsePathStyle,
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to configure report publishing", err)
		}
		rc.Publisher = p
	}
	return nil
}

func newQueryReport(runID string, sum pipeline.Summary, loadFailed int, outcomes []pipeline.Outcome) QueryReport {
	r := QueryReport{
		RunID:      runID,
		OK:         sum.OK,
		Empty:      sum.Empty,
		Failed:     sum.Failed,
		LoadFailed: loadFailed,
		Merged:     sum.Merged,
		Queries:    make([]QueryOutcome, 0, len(outcomes)),
	}
	for _, o := range outcomes {
		q := QueryOutcome{
			Description: o.Definition.Description,
			Status:      string(o.Status),
			Rows:        o.Rows,
			File:        o.File,
		}
		if o.Err != nil {
			q.Error = o.Err.Error()
		}
		r.Queries = append(r.Queries, q)
	}
	return r
}
