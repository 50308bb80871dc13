package owned

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/bloodcheck/internal/graph"
	"github.com/roach88/bloodcheck/internal/prompt"
)

// Cypher statements issued by the annotator.
const (
	SetOwnedQuery   = "MATCH (n {name: $name}) SET n.owned = true"
	SetWaveQuery    = "MATCH (n {name: $name}) SET n.wave = $wave"
	ClearOwnedQuery = "MATCH (n {name: $name}) REMOVE n.owned, n.wave"
	WipeQuery       = "MATCH (n) REMOVE n.owned, n.wave"
)

// Entry is one line of an owned file.
type Entry struct {
	Name string
	Wave string
	Line int
}

// ParseEntries reads NAME[;WAVE] lines. Blank lines are skipped and fields
// beyond the wave are ignored.
func ParseEntries(r io.Reader) ([]Entry, error) {
	upper := cases.Upper(language.Und)
	var entries []Entry

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Split(line, ";")
		e := Entry{Name: upper.String(strings.TrimSpace(fields[0])), Line: lineNo}
		if len(fields) > 1 {
			e.Wave = upper.String(strings.TrimSpace(fields[1]))
		}
		if e.Name == "" {
			slog.Warn("owned entry without a name", "line", lineNo)
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read owned entries: %w", err)
	}
	return entries, nil
}

// Summary counts processed entries.
type Summary struct {
	Applied int
	Failed  int
}

// Annotator tags and untags nodes through a session.
type Annotator struct {
	Executor *graph.Executor

	// Out receives one line per processed node.
	Out io.Writer
}

// NewAnnotator returns an Annotator printing progress to out.
func NewAnnotator(out io.Writer) *Annotator {
	return &Annotator{Executor: graph.NewExecutor(nil), Out: out}
}

func (a *Annotator) printf(format string, args ...any) {
	if a.Out != nil {
		fmt.Fprintf(a.Out, format, args...)
	}
}

func (a *Annotator) executor() *graph.Executor {
	if a.Executor == nil {
		return graph.NewExecutor(nil)
	}
	return a.Executor
}

// Inject sets owned=true on every entry's node, and its wave when given.
// A failing entry is logged and counted; the remaining entries still run.
func (a *Annotator) Inject(ctx context.Context, session graph.Session, entries []Entry) Summary {
	a.printf("[+] Injecting owned principals...\n")
	var sum Summary
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			slog.Warn("owned injection interrupted", "principal", e.Name, "error", err)
			sum.Failed++
			continue
		}
		params := map[string]any{"name": e.Name}
		if _, err := a.executor().Execute(ctx, session, SetOwnedQuery, params); err != nil {
			a.fail(&sum, "inject", e, err)
			continue
		}
		if e.Wave != "" {
			params := map[string]any{"name": e.Name, "wave": e.Wave}
			if _, err := a.executor().Execute(ctx, session, SetWaveQuery, params); err != nil {
				a.fail(&sum, "inject", e, err)
				continue
			}
		}
		sum.Applied++
		a.printf("[+] [%s] node set as owned\n", e.Name)
	}
	return sum
}

// Undo removes the owned flag and wave of every entry's node, whatever
// their current values.
func (a *Annotator) Undo(ctx context.Context, session graph.Session, entries []Entry) Summary {
	a.printf("[+] Undoing owned principals injection...\n")
	var sum Summary
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			slog.Warn("owned undo interrupted", "principal", e.Name, "error", err)
			sum.Failed++
			continue
		}
		if _, err := a.executor().Execute(ctx, session, ClearOwnedQuery, map[string]any{"name": e.Name}); err != nil {
			a.fail(&sum, "undo", e, err)
			continue
		}
		sum.Applied++
		a.printf("[+] [%s] node reset\n", e.Name)
	}
	return sum
}

func (a *Annotator) fail(sum *Summary, op string, e Entry, err error) {
	sum.Failed++
	slog.Warn("owned entry failed", "operation", op, "principal", e.Name, "line", e.Line, "error", err)
	a.printf("[!] [%s] %s failed\n", e.Name, op)
}

// Wipe clears owned flags and waves on every node after confirmation.
// It reports whether the wipe ran; a declined or aborted confirmation is
// not an error.
func (a *Annotator) Wipe(ctx context.Context, session graph.Session, p prompt.Prompter) (bool, error) {
	a.printf("[+] Wiping owned principals...\n")
	ok, err := p.Confirm("[!] Are you sure ?")
	if err != nil && !errors.Is(err, prompt.ErrAborted) {
		return false, err
	}
	if !ok {
		a.printf("[!] Action aborted!\n")
		return false, nil
	}
	if _, err := a.executor().Execute(ctx, session, WipeQuery, nil); err != nil {
		return false, err
	}
	a.printf("[+] All owned principals wiped\n")
	return true, nil
}
