package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/roach88/bloodcheck/internal/graph"
	"github.com/roach88/bloodcheck/internal/querydef"
)

// Delimiter separates fields in per-query report files.
const Delimiter = ';'

// PreviewLimit caps the number of rows shown in the console preview.
const PreviewLimit = 10

// ErrNoResult reports a query that ran successfully but matched nothing.
// It is not a failure: callers skip saving and move on.
var ErrNoResult = errors.New("no result")

// Formatted is a query result projected onto its declared headers.
// Every row has exactly one value per header, in header order.
type Formatted struct {
	Description string
	Headers     []string
	Rows        [][]string
}

// Len returns the number of data rows.
func (f *Formatted) Len() int {
	return len(f.Rows)
}

// Row returns row i keyed by header.
func (f *Formatted) Row(i int) map[string]string {
	out := make(map[string]string, len(f.Headers))
	for j, h := range f.Headers {
		out[h] = f.Rows[i][j]
	}
	return out
}

// Format projects raw onto headers. It returns ErrNoResult when raw has no records.
func Format(raw graph.Result, headers []string, description string) (*Formatted, error) {
	description = strings.TrimSpace(description)
	if raw.Len() == 0 {
		slog.Info("no result for query", "query", description)
		return nil, ErrNoResult
	}

	f := &Formatted{
		Description: description,
		Headers:     append([]string(nil), headers...),
		Rows:        make([][]string, 0, raw.Len()),
	}
	for _, rec := range raw.Records {
		row := make([]string, len(headers))
		for i, h := range headers {
			v, ok := rec.Get(h)
			if !ok {
				slog.Debug("record is missing header field", "query", description, "header", h)
			}
			row[i] = Stringify(v)
		}
		f.Rows = append(f.Rows, row)
	}
	return f, nil
}

// Content returns the delimited serialization: the header line, then one
// line per row. Values containing the delimiter, quotes or newlines are quoted.
func (f *Formatted) Content() []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = Delimiter
	// writes to a bytes.Buffer cannot fail
	_ = w.Write(f.Headers)
	for _, row := range f.Rows {
		if blankRow(row) {
			// A lone empty field would serialize as a blank line, which
			// readers skip. Quote it so the row survives.
			w.Flush()
			buf.WriteString(`""` + "\n")
			continue
		}
		_ = w.Write(row)
	}
	w.Flush()
	return buf.Bytes()
}

func blankRow(row []string) bool {
	if len(row) != 1 {
		return false
	}
	return row[0] == ""
}

// Summary is the user-facing result count line.
func (f *Formatted) Summary() string {
	return fmt.Sprintf("[%s] -> Found %d %s", f.Description, f.Len(), querydef.Plural(f.Len(), "result", "results"))
}

// Preview renders the first PreviewLimit rows as a GitHub-style table.
func (f *Formatted) Preview() string {
	rows := f.Rows
	if len(rows) > PreviewLimit {
		rows = rows[:PreviewLimit]
	}
	return RenderTable(f.Headers, rows)
}

// RenderTable renders headers and rows as an aligned pipe table.
func RenderTable(headers []string, rows [][]string) string {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 1, ' ', 0)

	writeRow := func(cells []string) {
		for _, c := range cells {
			fmt.Fprintf(tw, "| %s\t", tableCell(c))
		}
		fmt.Fprintln(tw, "|")
	}

	writeRow(headers)
	sep := make([]string, len(headers))
	for i := range sep {
		sep[i] = "---"
	}
	writeRow(sep)
	for _, r := range rows {
		writeRow(r)
	}
	_ = tw.Flush()
	return buf.String()
}

// tableCell keeps a value on one table line.
func tableCell(s string) string {
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\t", " ", "|", "\\|").Replace(s)
	return s
}

// Stringify converts a result value to its report representation.
// nil becomes the empty string; lists and maps are rendered recursively.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []string:
		return "[" + strings.Join(val, ", ") + "]"
	case []any:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = Stringify(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + Stringify(val[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(val)
	}
}
