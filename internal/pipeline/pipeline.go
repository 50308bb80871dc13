package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/bloodcheck/internal/graph"
	"github.com/roach88/bloodcheck/internal/journal"
	"github.com/roach88/bloodcheck/internal/querydef"
	"github.com/roach88/bloodcheck/internal/report"
)

// TracerName names the tracer used when RunContext.Tracer is nil.
const TracerName = "github.com/roach88/bloodcheck/internal/pipeline"

// Status classifies a query outcome.
type Status string

const (
	StatusOK     Status = "ok"
	StatusEmpty  Status = "empty"
	StatusFailed Status = "failed"
)

// Outcome is the result of running one definition.
type Outcome struct {
	Definition querydef.Definition
	Status     Status
	Rows       int

	// Result is nil unless Status is StatusOK.
	Result *report.Formatted

	// File is the saved report, when saving.
	File string

	Err error
}

// Recorder persists run history. Implemented by *journal.Journal.
type Recorder interface {
	RecordRun(ctx context.Context, run journal.Run) error
	RecordOutcome(ctx context.Context, o journal.Outcome) error
}

// UUIDv7 generates time-ordered run ids.
type UUIDv7 struct{}

// Generate returns a new UUIDv7, or a random UUID if the clock source fails.
func (UUIDv7) Generate() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// RunContext is the per-invocation state shared by every stage.
type RunContext struct {
	RunID   string
	Started time.Time

	// Mode and Target describe the invocation in the journal ("dir", "queries/").
	Mode   string
	Target string

	Session graph.Session

	// Save enables per-query report files and the final merge. Writer must be set.
	Save   bool
	Writer *report.Writer

	// Journal, Publisher and Tracer are optional.
	Journal   Recorder
	Publisher report.Publisher
	Tracer    trace.Tracer

	Out io.Writer
}

// Timestamp returns the run timestamp stamped on report files.
func (rc *RunContext) Timestamp() string {
	return rc.Started.Format(report.TimestampLayout)
}

func (rc *RunContext) tracer() trace.Tracer {
	if rc.Tracer == nil {
		return otel.Tracer(TracerName)
	}
	return rc.Tracer
}

func (rc *RunContext) printf(format string, args ...any) {
	if rc.Out != nil {
		fmt.Fprintf(rc.Out, format, args...)
	}
}

// Runner executes definitions.
type Runner struct {
	Executor *graph.Executor
}

// NewRunner returns a Runner with a default executor.
func NewRunner() *Runner {
	return &Runner{Executor: graph.NewExecutor(nil)}
}

// Run executes defs sequentially, in order, on rc.Session.
func (r *Runner) Run(ctx context.Context, rc *RunContext, defs []querydef.Definition) []Outcome {
	ctx, span := rc.tracer().Start(ctx, "bloodcheck.batch", trace.WithAttributes(
		attribute.String("run.id", rc.RunID),
		attribute.String("run.mode", rc.Mode),
		attribute.Int("query.count", len(defs)),
	))
	defer span.End()

	r.recordRun(ctx, rc)

	outcomes := make([]Outcome, 0, len(defs))
	failed := 0
	for i, def := range defs {
		o := r.runOne(ctx, rc, def)
		if o.Status == StatusFailed {
			failed++
		}
		r.recordOutcome(ctx, rc, i+1, o)
		outcomes = append(outcomes, o)
	}

	span.SetAttributes(attribute.Int("query.failed", failed))
	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d queries failed", failed, len(defs)))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return outcomes
}

func (r *Runner) runOne(ctx context.Context, rc *RunContext, def querydef.Definition) Outcome {
	ctx, span := rc.tracer().Start(ctx, "bloodcheck.query", trace.WithAttributes(
		attribute.String("query.description", def.Description),
	))
	defer span.End()

	o := Outcome{Definition: def}
	defer func() {
		span.SetAttributes(
			attribute.String("query.status", string(o.Status)),
			attribute.Int("query.rows", o.Rows),
		)
		if o.Err != nil {
			span.RecordError(o.Err)
			span.SetStatus(codes.Error, o.Err.Error())
		}
	}()

	executor := r.Executor
	if executor == nil {
		executor = graph.NewExecutor(nil)
	}
	raw, err := executor.Execute(ctx, rc.Session, def.Query, nil)
	if err != nil {
		rc.printf("[!] Error running cypher query [%s]\n", def.Description)
		o.Status, o.Err = StatusFailed, err
		return o
	}

	formatted, err := report.Format(raw, def.Headers, def.Description)
	if errors.Is(err, report.ErrNoResult) {
		o.Status = StatusEmpty
		return o
	}
	if err != nil {
		rc.printf("[!] Error while parsing result for query [%s]\n", def.Description)
		o.Status, o.Err = StatusFailed, err
		return o
	}

	o.Status, o.Rows, o.Result = StatusOK, formatted.Len(), formatted
	rc.printf("[!] %s\n\n%s\n", formatted.Summary(), formatted.Preview())

	if rc.Save && rc.Writer != nil {
		path, err := rc.Writer.Save(def, formatted)
		if err != nil {
			rc.printf("[!] Error writing results to file!\n")
			slog.Error("saving report failed", "query", def.Description, "error", err)
			o.Err = err
			return o
		}
		o.File = path
	}
	return o
}

func (r *Runner) recordRun(ctx context.Context, rc *RunContext) {
	if rc.Journal == nil {
		return
	}
	err := rc.Journal.RecordRun(ctx, journal.Run{ID: rc.RunID, StartedAt: rc.Started, Mode: rc.Mode, Target: rc.Target})
	if err != nil {
		slog.Warn("journal unavailable", "run", rc.RunID, "error", err)
	}
}

func (r *Runner) recordOutcome(ctx context.Context, rc *RunContext, seq int, o Outcome) {
	if rc.Journal == nil {
		return
	}
	entry := journal.Outcome{
		RunID:       rc.RunID,
		Seq:         seq,
		Description: o.Definition.Description,
		Status:      string(o.Status),
		Rows:        o.Rows,
		File:        o.File,
	}
	if o.Err != nil {
		entry.Error = o.Err.Error()
	}
	if err := rc.Journal.RecordOutcome(ctx, entry); err != nil {
		slog.Warn("journal write failed", "run", rc.RunID, "query", o.Definition.Description, "error", err)
	}
}

// Summary describes a finished run.
type Summary struct {
	OK     int
	Empty  int
	Failed int

	// Merged is the spreadsheet path when one was written.
	Merged string
}

// Summarize counts outcomes by status.
func Summarize(outcomes []Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		switch o.Status {
		case StatusOK:
			s.OK++
		case StatusEmpty:
			s.Empty++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

// Finish merges the saved reports of the run and publishes them. A run
// where no query produced rows only prints "No result found!".
func (r *Runner) Finish(ctx context.Context, rc *RunContext, outcomes []Outcome) (Summary, error) {
	sum := Summarize(outcomes)
	if sum.OK == 0 {
		rc.printf("[!] No result found!\n")
		return sum, nil
	}
	if !rc.Save || rc.Writer == nil {
		return sum, nil
	}

	rc.printf("[+] Merging CSV files...\n")
	merged, err := rc.Writer.Merge()
	if err != nil {
		return sum, fmt.Errorf("merge reports: %w", err)
	}
	sum.Merged = merged.Path
	rc.printf("[!] All CSV files merged!\n")
	rc.printf("[!] Excel spreadsheet saved to [%s]\n", merged.Path)

	if rc.Publisher == nil {
		return sum, nil
	}
	files := []string{merged.Path}
	for _, o := range outcomes {
		if o.File != "" {
			files = append(files, o.File)
		}
	}
	var errs []error
	for _, f := range files {
		if err := rc.Publisher.Publish(ctx, f); err != nil {
			slog.Error("publishing report failed", "file", f, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		rc.printf("[!] %d of %d report files could not be published\n", len(errs), len(files))
		return sum, errors.Join(errs...)
	}
	rc.printf("[+] %d report %s published\n", len(files), querydef.Plural(len(files), "file", "files"))
	return sum, nil
}
