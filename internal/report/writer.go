package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/bloodcheck/internal/querydef"
)

const (
	// TimestampLayout stamps every file written during one run.
	TimestampLayout = "20060102-150405"

	// ToolName prefixes the merged report file.
	ToolName = "BloodCheck"

	// MaxSheetName bounds merged sheet names; the last sheetTail runes are kept.
	MaxSheetName = 25
	sheetTail    = 4

	suffixLen   = 6
	fileExt     = ".csv"
	defaultName = "query"

	// maxStem keeps report names under the common 255-byte file name limit
	// once the suffix, timestamp and extension are appended.
	maxStem = 200
)

// ErrNothingToMerge reports a merge that found no per-query files for the run.
var ErrNothingToMerge = errors.New("no report files to merge")

// Generator produces identifiers. Implemented by RandomSuffix and testutil.FixedGenerator.
type Generator interface {
	Generate() string
}

// RandomSuffix generates short lowercase hex disambiguators from random UUIDs.
type RandomSuffix struct{}

// Generate returns suffixLen hex characters.
func (RandomSuffix) Generate() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:suffixLen]
}

// Writer persists per-query reports for one run and merges them at the end.
type Writer struct {
	// Dir is the output directory.
	Dir string

	// Timestamp stamps every file of the run (TimestampLayout).
	Timestamp string

	// Suffixes disambiguates same-named queries. Defaults to RandomSuffix.
	Suffixes Generator
}

// NewWriter returns a Writer stamping files with started.
func NewWriter(dir string, started time.Time) *Writer {
	return &Writer{Dir: dir, Timestamp: started.Format(TimestampLayout), Suffixes: RandomSuffix{}}
}

// CheckWritable verifies that files can be created in dir.
func CheckWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".bloodcheck-*")
	if err != nil {
		return fmt.Errorf("unable to write to directory %s: %w", dir, err)
	}
	name := f.Name()
	_ = f.Close()
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("unable to clean up in directory %s: %w", dir, err)
	}
	return nil
}

// Save writes f to <description>_<suffix>_<timestamp>.csv and returns the path.
func (w *Writer) Save(def querydef.Definition, f *Formatted) (string, error) {
	if f == nil || f.Len() == 0 {
		return "", ErrNoResult
	}
	suffixes := w.Suffixes
	if suffixes == nil {
		suffixes = RandomSuffix{}
	}

	name := fmt.Sprintf("%s_%s_%s%s", SanitizeName(def.Description), suffixes.Generate(), w.Timestamp, fileExt)
	path := filepath.Join(w.Dir, name)
	if err := os.WriteFile(path, f.Content(), 0644); err != nil {
		return "", fmt.Errorf("write report %s: %w", path, err)
	}
	slog.Debug("report saved", "query", def.Description, "file", path)
	return path, nil
}

// MergeResult describes a merged report.
type MergeResult struct {
	Path   string
	Sheets []string
}

// MergedPath returns the merged report path for the run.
func (w *Writer) MergedPath() string {
	return filepath.Join(w.Dir, fmt.Sprintf("%s-Report-%s.xlsx", ToolName, w.Timestamp))
}

// Files returns the per-query report files of the run, sorted.
func (w *Writer) Files() ([]string, error) {
	pattern := regexp.MustCompile(`^(.+)_([0-9a-z]+)_` + regexp.QuoteMeta(w.Timestamp) + regexp.QuoteMeta(fileExt) + `$`)
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		return nil, fmt.Errorf("read output directory %s: %w", w.Dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && pattern.MatchString(e.Name()) {
			files = append(files, filepath.Join(w.Dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Merge writes every per-query file of the run as one sheet of a spreadsheet.
// Files that cannot be parsed are logged and left out.
func (w *Writer) Merge() (*MergeResult, error) {
	files, err := w.Files()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNothingToMerge
	}

	book := excelize.NewFile()
	defer func() {
		if err := book.Close(); err != nil {
			slog.Warn("close workbook", "error", err)
		}
	}()
	defaultSheet := book.GetSheetName(0)

	result := &MergeResult{Path: w.MergedPath()}
	used := make(map[string]bool)
	for _, file := range files {
		slog.Info("parsing report", "file", file)
		records, err := readReport(file)
		if err != nil {
			slog.Warn("skipping report", "file", file, "error", err)
			continue
		}
		if len(records) == 0 {
			slog.Warn("skipping empty report", "file", file)
			continue
		}

		description, suffix := w.splitName(filepath.Base(file))
		sheet := uniqueSheetName(description, suffix, used)
		if err := writeSheet(book, sheet, records); err != nil {
			return nil, fmt.Errorf("write sheet %s: %w", sheet, err)
		}
		result.Sheets = append(result.Sheets, sheet)
	}
	if len(result.Sheets) == 0 {
		return nil, ErrNothingToMerge
	}

	if !used[strings.ToLower(defaultSheet)] {
		if err := book.DeleteSheet(defaultSheet); err != nil {
			return nil, fmt.Errorf("remove default sheet: %w", err)
		}
	}
	if idx, err := book.GetSheetIndex(result.Sheets[0]); err == nil && idx >= 0 {
		book.SetActiveSheet(idx)
	}

	if err := book.SaveAs(result.Path); err != nil {
		return nil, fmt.Errorf("save merged report %s: %w", result.Path, err)
	}
	return result, nil
}

// splitName recovers the sanitized description and suffix from a report file name.
func (w *Writer) splitName(base string) (string, string) {
	stem := strings.TrimSuffix(base, "_"+w.Timestamp+fileExt)
	i := strings.LastIndex(stem, "_")
	if i <= 0 {
		return stem, ""
	}
	return stem[:i], stem[i+1:]
}

func readReport(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = Delimiter
	r.FieldsPerRecord = -1
	return r.ReadAll()
}

func writeSheet(book *excelize.File, sheet string, records [][]string) error {
	if _, err := book.NewSheet(sheet); err != nil {
		return err
	}

	widths := make([]int, 0)
	for r, record := range records {
		cells := make([]any, len(record))
		for c, value := range record {
			if r == 0 {
				cells[c] = value
			} else {
				cells[c] = cellValue(value)
			}
			for len(widths) <= c {
				widths = append(widths, 1)
			}
			if n := utf8.RuneCountInString(value); n > widths[c] {
				widths[c] = n
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return err
		}
		if err := book.SetSheetRow(sheet, cell, &cells); err != nil {
			return err
		}
	}

	for c, width := range widths {
		col, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return err
		}
		if err := book.SetColWidth(sheet, col, col, float64(width)); err != nil {
			return err
		}
	}

	return book.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// cellValue stores canonical integers as numbers and everything else as text.
func cellValue(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && strconv.FormatInt(n, 10) == s {
		return n
	}
	return s
}

// SanitizeName turns a description into a file name stem: NFC-normalized,
// with path separators, reserved and control characters replaced by '_'.
// Stems are cut on a rune boundary to at most maxStem bytes.
func SanitizeName(description string) string {
	s := norm.NFC.String(strings.TrimSpace(description))
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || strings.ContainsRune(`<>:"/\|?*`, r) {
			return '_'
		}
		return r
	}, s)
	s = strings.Trim(s, ". ")
	if len(s) > maxStem {
		cut := 0
		for i := range s {
			if i > maxStem {
				break
			}
			cut = i
		}
		s = strings.TrimRight(s[:cut], ". ")
	}
	if s == "" {
		return defaultName
	}
	return s
}

// SheetName fits name to the spreadsheet sheet-name rules: no []:*?/\' characters
// and at most MaxSheetName runes, keeping the trailing sheetTail runes when cut.
func SheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\'`, r) {
			return '_'
		}
		return r
	}, name)
	runes := []rune(name)
	if len(runes) <= MaxSheetName {
		if len(runes) == 0 {
			return defaultName
		}
		return name
	}
	return string(runes[:MaxSheetName-sheetTail]) + string(runes[len(runes)-sheetTail:])
}

// uniqueSheetName picks a sheet name not yet in used (case-insensitive, as
// spreadsheet sheet names are) and records it.
func uniqueSheetName(description, suffix string, used map[string]bool) string {
	candidates := []string{SheetName(description)}
	if suffix != "" {
		candidates = append(candidates, SheetName(description+"_"+suffix))
	}
	for _, c := range candidates {
		if !used[strings.ToLower(c)] {
			used[strings.ToLower(c)] = true
			return c
		}
	}
	for i := 2; ; i++ {
		c := SheetName(fmt.Sprintf("%s_%s_%d", description, suffix, i))
		if !used[strings.ToLower(c)] {
			used[strings.ToLower(c)] = true
			return c
		}
	}
}
