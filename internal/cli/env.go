package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/bloodcheck/internal/config"
	"github.com/roach88/bloodcheck/internal/dbms"
	"github.com/roach88/bloodcheck/internal/graph"
	"github.com/roach88/bloodcheck/internal/journal"
	"github.com/roach88/bloodcheck/internal/prompt"
	"github.com/roach88/bloodcheck/internal/service"
)

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// commandContext cancels on SIGINT and SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	return cfg, nil
}

// logConfig reports where the configuration came from under --verbose.
func (o *RootOptions) logConfig(formatter *OutputFormatter, cfg *config.Config) {
	source := o.ConfigPath
	if source == "" {
		source = "defaults and environment"
	}
	formatter.VerboseLog("[*] Configuration: %s", source)
	formatter.VerboseLog("[*] Neo4j: %s (%s)", cfg.Neo4j.URI, cfg.Neo4j.InstanceType)
}

func (o *RootOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// controller returns nil when the service of cfg cannot be managed from here.
func (o *RootOptions) controller(cfg *config.Config) service.Controller {
	if !cfg.ManagesService() {
		return nil
	}
	if o.Controller != nil {
		return o.Controller
	}
	return service.NewSystem(cfg.Service.Name, service.Owner{UID: cfg.Service.OwnerUID, GID: cfg.Service.OwnerGID})
}

func (o *RootOptions) prompter(ctx context.Context, cmd *cobra.Command, out io.Writer) prompt.Prompter {
	if o.Prompter != nil {
		return o.Prompter
	}
	t := prompt.NewTerminal(cmd.InOrStdin(), out)
	t.Done = ctx.Done()
	return t
}

func (o *RootOptions) newManager(ctx context.Context, cmd *cobra.Command, cfg *config.Config, out io.Writer) *dbms.Manager {
	return &dbms.Manager{
		Root:            cfg.DatabaseRoot(),
		ConfFile:        cfg.ConfFile(),
		TemplateArchive: cfg.TemplateArchive,
		Prompter:        o.prompter(ctx, cmd, out),
		Service:         o.controller(cfg),
		RestartWait:     cfg.Service.RestartWait,
		Out:             out,
	}
}

// openSession makes sure a local service is running, then connects.
func (o *RootOptions) openSession(ctx context.Context, cmd *cobra.Command, cfg *config.Config, out io.Writer) (graph.Session, error) {
	if ctrl := o.controller(cfg); ctrl != nil {
		status, err := ctrl.Status(ctx)
		if errors.Is(err, service.ErrNotFound) {
			fmt.Fprintf(out, "[!] Please check that the Neo4j service is installed!\n")
			return nil, WrapExitError(ExitCommandError, "neo4j service not found", err)
		}
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to query neo4j service", err)
		}
		if !status.Running() {
			fmt.Fprintf(out, "[!] Neo4j service is not running\n")
			if err := o.newManager(ctx, cmd, cfg, out).Restart(ctx); err != nil {
				return nil, WrapExitError(ExitCommandError, "failed to start neo4j service", err)
			}
		}
	}

	fmt.Fprintf(out, "[+] Connecting to database...\n")
	open := o.OpenSession
	if open == nil {
		open = openNeo4j
	}
	session, err := open(ctx, graph.Credentials{
		URI:      cfg.Neo4j.URI,
		Username: cfg.Neo4j.Username,
		Password: cfg.Neo4j.Password,
	})
	if err != nil {
		fmt.Fprintf(out, "[+] Connection to database [KO]\n")
		return nil, WrapExitError(ExitCommandError, "failed to connect to database", err)
	}
	fmt.Fprintf(out, "[+] Connection to database [OK]\n")
	return session, nil
}

func openNeo4j(ctx context.Context, creds graph.Credentials) (graph.Session, error) {
	session, err := graph.Open(ctx, creds)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// openJournal returns nil when the journal is disabled or unavailable.
func openJournal(cfg *config.Config) *journal.Journal {
	if cfg.Journal.Path == "" {
		return nil
	}
	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		slog.Warn("journal disabled", "path", cfg.Journal.Path, "error", err)
		return nil
	}
	return j
}

// aborted reports an interrupted prompt or command as a clean exit.
func aborted(err error, out io.Writer) bool {
	if errors.Is(err, prompt.ErrAborted) || errors.Is(err, context.Canceled) {
		fmt.Fprintf(out, "\n[!] Aborting !\n")
		return true
	}
	return false
}

func closeSession(ctx context.Context, session graph.Session) {
	if err := session.Close(context.WithoutCancel(ctx)); err != nil {
		slog.Warn("error closing session", "error", err)
	}
}
