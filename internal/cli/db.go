package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/bloodcheck/internal/config"
	"github.com/roach88/bloodcheck/internal/dbms"
)

// DBOptions holds flags for the db subcommands.
type DBOptions struct {
	*RootOptions
	Restart bool // restart the service after switching
}

// DatabaseList is the JSON payload of db list.
type DatabaseList struct {
	Active    string   `json:"active"`
	Databases []string `json:"databases"`
}

// DatabaseChange is the JSON payload of db generate, switch and purge.
// Database is empty when the operation was declined.
type DatabaseChange struct {
	Operation string `json:"operation"`
	Database  string `json:"database,omitempty"`
	Restarted bool   `json:"restarted,omitempty"`
}

// NewDBCommand creates the db command and its subcommands.
func NewDBCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DBOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the local Neo4j database instances",
		Long: `Manage the database instances of a local Neo4j installation: list them,
generate a new one from the template archive, switch the active one,
purge one, or restart the service so that a switch takes effect.`,
	}

	cmd.AddCommand(newDBListCommand(opts))
	cmd.AddCommand(newDBChangeCommand(opts, "generate", "Generate a new database from the template archive",
		func(ctx context.Context, m *dbms.Manager) (string, error) { return m.Generate(ctx) }))

	switchCmd := newDBChangeCommand(opts, "switch", "Select the active database",
		func(ctx context.Context, m *dbms.Manager) (string, error) { return m.Switch(ctx) })
	switchCmd.Flags().BoolVar(&opts.Restart, "restart", false, "restart the Neo4j service after switching")
	cmd.AddCommand(switchCmd)

	cmd.AddCommand(newDBChangeCommand(opts, "purge", "Delete a database",
		func(ctx context.Context, m *dbms.Manager) (string, error) { return m.Purge(ctx) }))
	cmd.AddCommand(newDBRestartCommand(opts))

	return cmd
}

// localManager returns a manager for a local installation, or a command error.
func (o *DBOptions) localManager(ctx context.Context, cmd *cobra.Command, formatter *OutputFormatter) (*dbms.Manager, error) {
	out := formatter.Text()
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	o.logConfig(formatter, cfg)
	formatter.VerboseLog("[*] Database root: %s", cfg.DatabaseRoot())
	if err := cfg.CheckLocalInstall(); err != nil {
		if !cfg.IsLocal() {
			fmt.Fprintf(out, "[!] Can't manage remote Neo4j databases!\n")
		} else {
			fmt.Fprintf(out, "[!] Access to Neo4j installation path [KO]\n")
		}
		return nil, WrapExitError(ExitCommandError, "local database management unavailable", err)
	}
	return o.newManager(ctx, cmd, cfg, out), nil
}

func newDBListCommand(opts *DBOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List the databases, marking the active one",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			ctx, stop := commandContext(cmd)
			defer stop()

			m, err := opts.localManager(ctx, cmd, formatter)
			if err != nil {
				return formatter.Fail(err)
			}
			names, err := m.List()
			if err != nil {
				return formatter.Fail(WrapExitError(ExitFailure, "failed to list databases", err))
			}
			if !formatter.JSON() {
				return nil
			}
			active, err := m.Active()
			if err != nil {
				return formatter.Fail(WrapExitError(ExitFailure, "failed to read active database", err))
			}
			if names == nil {
				names = []string{}
			}
			return formatter.Success(DatabaseList{Active: active, Databases: names})
		},
	}
}

func newDBChangeCommand(opts *DBOptions, use, short string, op func(context.Context, *dbms.Manager) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			out := formatter.Text()
			ctx, stop := commandContext(cmd)
			defer stop()

			m, err := opts.localManager(ctx, cmd, formatter)
			if err != nil {
				return formatter.Fail(err)
			}

			name, err := op(ctx, m)
			if aborted(err, out) {
				return nil
			}
			if err != nil {
				return formatter.Fail(WrapExitError(ExitFailure, use+" failed", err))
			}

			change := DatabaseChange{Operation: use, Database: name}
			if use == "switch" && opts.Restart && name != "" {
				if err := m.Restart(ctx); err != nil {
					if aborted(err, out) {
						return nil
					}
					return formatter.Fail(WrapExitError(ExitFailure, "restart failed", err))
				}
				change.Restarted = true
			}
			if formatter.JSON() {
				return formatter.Success(change)
			}
			return nil
		},
	}
}

func newDBRestartCommand(opts *DBOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "restart",
		Short:         "Restart the local Neo4j service",
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
			m := &dbms.Manager{Service: opts.controller(cfg), RestartWait: cfg.Service.RestartWait, Out: out}
			err = m.Restart(ctx)
			switch {
			case aborted(err, out):
				return nil
			case errors.Is(err, dbms.ErrUnmanaged):
				return formatter.Fail(WrapExitError(ExitCommandError, restartRefusal(cfg), err))
			case err != nil:
				return formatter.Fail(WrapExitError(ExitFailure, "restart failed", err))
			}
			if formatter.JSON() {
				return formatter.Success(DatabaseChange{Operation: "restart", Restarted: true})
			}
			return nil
		},
	}
}

func restartRefusal(cfg *config.Config) string {
	return fmt.Sprintf("cannot manage the %s Neo4j service at %s", cfg.Neo4j.InstanceType, cfg.Neo4j.URI)
}
