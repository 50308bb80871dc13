package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/roach88/bloodcheck/internal/graph"
	"github.com/roach88/bloodcheck/internal/journal"
	"github.com/roach88/bloodcheck/internal/querydef"
	"github.com/roach88/bloodcheck/internal/report"
	"github.com/roach88/bloodcheck/internal/testutil"
)

var (
	domains = querydef.Definition{
		Description: "Domains",
		Headers:     []string{"Domain"},
		Query:       "MATCH (n:Domain) RETURN n.name AS Domain",
	}
	kerberoastable = querydef.Definition{
		Description: "Kerberoastable users",
		Headers:     []string{"User"},
		Query:       "MATCH (u:User {hasspn: true}) RETURN u.name AS User",
	}
	broken = querydef.Definition{
		Description: "Broken",
		Headers:     []string{"X"},
		Query:       "MATCH (n RETURN n",
	}
)

func newRunContext(t *testing.T, session graph.Session, save bool, suffixes ...string) (*RunContext, *bytes.Buffer) {
	t.Helper()
	clock := testutil.NewFixedClock(2024, time.March, 5, 14, 30, 0)
	w := report.NewWriter(t.TempDir(), clock.Now())
	w.Suffixes = testutil.NewFixedGenerator(suffixes...)

	out := &bytes.Buffer{}
	return &RunContext{
		RunID:   "run-1",
		Started: clock.Now(),
		Mode:    "dir",
		Session: session,
		Save:    save,
		Writer:  w,
		Out:     out,
	}, out
}

func TestDomainsScenarioProducesSheet(t *testing.T) {
	session := testutil.NewFakeSession().OnQuery("MATCH (n:Domain)", graph.Record{"Domain": "CORP.LOCAL"})
	rc, out := newRunContext(t, session, true, "abc123")
	runner := NewRunner()

	outcomes := runner.Run(context.Background(), rc, []querydef.Definition{domains})
	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusOK, outcomes[0].Status)
	assert.Equal(t, 1, outcomes[0].Rows)
	assert.Equal(t, filepath.Join(rc.Writer.Dir, "Domains_abc123_20240305-143000.csv"), outcomes[0].File)

	sum, err := runner.Finish(context.Background(), rc, outcomes)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(rc.Writer.Dir, "BloodCheck-Report-20240305-143000.xlsx"), sum.Merged)

	book, err := excelize.OpenFile(sum.Merged)
	require.NoError(t, err)
	defer book.Close()
	assert.Equal(t, []string{"Domains"}, book.GetSheetList())
	rows, err := book.GetRows("Domains")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Domain"}, {"CORP.LOCAL"}}, rows)

	assert.Contains(t, out.String(), "[!] [Domains] -> Found 1 result\n")
	assert.Contains(t, out.String(), "CORP.LOCAL")
}

func TestRunIsolatesFailuresAndKeepsOrder(t *testing.T) {
	session := testutil.NewFakeSession().
		FailQuery("MATCH (n RETURN", errors.New("Invalid input")).
		OnQuery("MATCH (n:Domain)", graph.Record{"Domain": "CORP.LOCAL"})
	rc, out := newRunContext(t, session, true, "aaa111")

	outcomes := NewRunner().Run(context.Background(), rc, []querydef.Definition{broken, kerberoastable, domains})
	require.Len(t, outcomes, 3)
	assert.Equal(t, StatusFailed, outcomes[0].Status)
	assert.True(t, errors.Is(outcomes[0].Err, graph.ErrExecution))
	assert.Equal(t, StatusEmpty, outcomes[1].Status)
	assert.Empty(t, outcomes[1].File)
	assert.Equal(t, StatusOK, outcomes[2].Status)

	var order []string
	for _, c := range session.Calls() {
		order = append(order, c.Cypher)
	}
	assert.Equal(t, []string{broken.Query, kerberoastable.Query, domains.Query}, order)
	assert.Contains(t, out.String(), "[!] Error running cypher query [Broken]")

	// only the query with rows wrote a file
	files, err := rc.Writer.Files()
	require.NoError(t, err)
	assert.Len(t, files, 1)

	assert.Equal(t, Summary{OK: 1, Empty: 1, Failed: 1}, Summarize(outcomes))
}

func TestRunWithoutSaveWritesNothing(t *testing.T) {
	session := testutil.NewFakeSession().OnQuery("MATCH (n:Domain)", graph.Record{"Domain": "CORP.LOCAL"})
	rc, _ := newRunContext(t, session, false)

	runner := NewRunner()
	outcomes := runner.Run(context.Background(), rc, []querydef.Definition{domains})
	sum, err := runner.Finish(context.Background(), rc, outcomes)
	require.NoError(t, err)
	assert.Empty(t, sum.Merged)

	entries, err := os.ReadDir(rc.Writer.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFinishNoResult(t *testing.T) {
	rc, out := newRunContext(t, testutil.NewFakeSession(), true)
	runner := NewRunner()

	outcomes := runner.Run(context.Background(), rc, []querydef.Definition{kerberoastable})
	sum, err := runner.Finish(context.Background(), rc, outcomes)
	require.NoError(t, err)
	assert.Empty(t, sum.Merged)
	assert.Contains(t, out.String(), "[!] No result found!")

	_, statErr := os.Stat(rc.Writer.MergedPath())
	assert.True(t, os.IsNotExist(statErr))
}

type fakePublisher struct {
	published []string
	fail      bool
}

func (p *fakePublisher) Publish(ctx context.Context, path string) error {
	if p.fail {
		return report.ErrPublishFailed
	}
	p.published = append(p.published, filepath.Base(path))
	return nil
}

func TestFinishPublishes(t *testing.T) {
	session := testutil.NewFakeSession().OnQuery("MATCH (n:Domain)", graph.Record{"Domain": "CORP.LOCAL"})
	rc, _ := newRunContext(t, session, true, "abc123", "def456")
	pub := &fakePublisher{}
	rc.Publisher = pub

	runner := NewRunner()
	_, err := runner.Finish(context.Background(), rc, runner.Run(context.Background(), rc, []querydef.Definition{domains}))
	require.NoError(t, err)
	assert.Equal(t, []string{"BloodCheck-Report-20240305-143000.xlsx", "Domains_abc123_20240305-143000.csv"}, pub.published)

	rc.Publisher = &fakePublisher{fail: true}
	_, err = runner.Finish(context.Background(), rc, runner.Run(context.Background(), rc, []querydef.Definition{domains}))
	assert.True(t, errors.Is(err, report.ErrPublishFailed))
}

func TestRunRecordsJournal(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	session := testutil.NewFakeSession().
		FailQuery("MATCH (n RETURN", errors.New("Invalid input")).
		OnQuery("MATCH (n:Domain)", graph.Record{"Domain": "CORP.LOCAL"}, graph.Record{"Domain": "DEV.CORP.LOCAL"})
	rc, _ := newRunContext(t, session, false)
	rc.Journal = j

	NewRunner().Run(context.Background(), rc, []querydef.Definition{domains, broken})

	runs, err := j.Runs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].Queries)
	assert.Equal(t, 1, runs[0].Failed)
	assert.Equal(t, 2, runs[0].Rows)

	outcomes, err := j.Outcomes(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "ok", outcomes[0].Status)
	assert.Equal(t, "failed", outcomes[1].Status)
	assert.Contains(t, outcomes[1].Error, "Invalid input")
}

func TestRunSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	session := testutil.NewFakeSession().
		FailQuery("MATCH (n RETURN", errors.New("Invalid input")).
		OnQuery("MATCH (n:Domain)", graph.Record{"Domain": "CORP.LOCAL"})
	rc, _ := newRunContext(t, session, false)
	rc.Tracer = tp.Tracer("test")

	NewRunner().Run(context.Background(), rc, []querydef.Definition{domains, broken})

	spans := recorder.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, "bloodcheck.query", spans[0].Name())
	assert.Equal(t, "bloodcheck.query", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)

	batch := spans[2]
	assert.Equal(t, "bloodcheck.batch", batch.Name())
	assert.Equal(t, batch.SpanContext().TraceID(), spans[0].SpanContext().TraceID())

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "Domains", attrs["query.description"])
	assert.Equal(t, "ok", attrs["query.status"])
	assert.Equal(t, "1", attrs["query.rows"])
}

func TestLogExporter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	tp := NewTracerProvider(logger)

	_, span := tp.Tracer("test").Start(context.Background(), "bloodcheck.query")
	span.End()
	require.NoError(t, tp.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), "span=bloodcheck.query")
}

func TestUUIDv7(t *testing.T) {
	id, err := uuid.Parse(UUIDv7{}.Generate())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
}

func TestAnalyticsDefinitionsAreValid(t *testing.T) {
	for _, def := range Analytics() {
		assert.NotEmpty(t, def.Description)
		assert.NotEmpty(t, def.Headers)
		for _, h := range def.Headers {
			assert.True(t, strings.Contains(def.Query, h), "%s returns %s", def.Description, h)
		}
	}
}
