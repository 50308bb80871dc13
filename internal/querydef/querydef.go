package querydef

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrDefinition is wrapped by every DefinitionError.
var ErrDefinition = errors.New("invalid query definition")

// Definition is a named Cypher query with its declared result columns.
type Definition struct {
	// Description labels the query in logs and names its report file.
	Description string `yaml:"Description"`

	// Headers are the result columns, in output order.
	Headers []string `yaml:"Headers"`

	// Query is the Cypher statement.
	Query string `yaml:"Query"`
}

// DefinitionError describes a query definition file that could not be used.
type DefinitionError struct {
	Path  string
	Field string // empty when the file could not be read or parsed
	Err   error
}

func (e *DefinitionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %v", e.Path, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *DefinitionError) Unwrap() error {
	return e.Err
}

func (e *DefinitionError) Is(target error) bool {
	return target == ErrDefinition
}

// Extensions lists the file extensions recognized as query definitions.
var Extensions = []string{".yml", ".yaml"}

// IsDefinitionFile reports whether name looks like a query definition file.
func IsDefinitionFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Parse decodes and validates a definition. path is only used for error context.
func Parse(path string, data []byte) (Definition, error) {
	var def Definition
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&def); err != nil {
		return Definition{}, &DefinitionError{Path: path, Err: fmt.Errorf("failed to parse YAML: %w", err)}
	}

	def.Description = strings.TrimSpace(def.Description)
	def.Query = strings.TrimSpace(def.Query)
	for i, h := range def.Headers {
		def.Headers[i] = strings.TrimSpace(h)
	}

	if err := validate(path, def); err != nil {
		return Definition{}, err
	}
	return def, nil
}

func validate(path string, def Definition) error {
	if def.Description == "" {
		return &DefinitionError{Path: path, Field: "Description", Err: errors.New("is required")}
	}
	if len(def.Headers) == 0 {
		return &DefinitionError{Path: path, Field: "Headers", Err: errors.New("is required and must be non-empty")}
	}
	seen := make(map[string]bool, len(def.Headers))
	for i, h := range def.Headers {
		if h == "" {
			return &DefinitionError{Path: path, Field: fmt.Sprintf("Headers[%d]", i), Err: errors.New("must not be empty")}
		}
		if seen[h] {
			return &DefinitionError{Path: path, Field: fmt.Sprintf("Headers[%d]", i), Err: fmt.Errorf("duplicate header %q", h)}
		}
		seen[h] = true
	}
	if def.Query == "" {
		return &DefinitionError{Path: path, Field: "Query", Err: errors.New("is required")}
	}
	return nil
}

// LoadFile reads one query definition file.
func LoadFile(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, &DefinitionError{Path: path, Err: fmt.Errorf("failed to read file: %w", err)}
	}
	def, err := Parse(path, data)
	if err != nil {
		return Definition{}, err
	}
	slog.Debug("parsed query", "query", def.Description, "file", path)
	return def, nil
}

// LoadDir loads every definition file directly inside dir, in lexical order.
// Files that fail to load are returned as errors and skipped; entries that are
// not definition files are ignored. The returned error slice holds at most one
// non-DefinitionError, when dir itself cannot be read.
func LoadDir(dir string) ([]Definition, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("read query directory %s: %w", dir, err)}
	}

	var (
		defs []Definition
		errs []error
	)
	for _, entry := range entries {
		if entry.IsDir() || !IsDefinitionFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		def, err := LoadFile(path)
		if err != nil {
			slog.Warn("skipping query definition", "file", path, "error", err)
			errs = append(errs, err)
			continue
		}
		defs = append(defs, def)
	}
	return defs, errs
}

// Tree returns root followed by its immediate subdirectories, sorted.
// Deeper levels are not visited.
func Tree(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("query directory %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", root)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read query directory %s: %w", root, err)
	}
	var subdirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			subdirs = append(subdirs, filepath.Join(root, entry.Name()))
		}
	}
	sort.Strings(subdirs)
	return append([]string{root}, subdirs...), nil
}

// Plural picks the singular or plural word for n.
func Plural(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
