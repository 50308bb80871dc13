package dbms

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// PointerKey starts the line naming the active database.
const PointerKey = "dbms.active_database="

// ReadPointer returns the active database named in the configuration file.
// The last pointer line wins; found is false when there is none.
func ReadPointer(confFile string) (name string, found bool, err error) {
	f, err := os.Open(confFile)
	if err != nil {
		return "", false, fmt.Errorf("read configuration %s: %w", confFile, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.HasPrefix(line, PointerKey) {
			name, found = strings.TrimPrefix(line, PointerKey), true
		}
	}
	if err := scanner.Err(); err != nil {
		return "", false, fmt.Errorf("read configuration %s: %w", confFile, err)
	}
	return name, found, nil
}

// RewritePointer returns content with the value of every pointer line set
// to name. All other bytes, line endings included, are kept. changed is
// false when content holds no pointer line.
func RewritePointer(content []byte, name string) (out []byte, changed bool) {
	lines := bytes.SplitAfter(content, []byte("\n"))
	var buf bytes.Buffer
	buf.Grow(len(content) + len(name))
	for _, line := range lines {
		if bytes.HasPrefix(line, []byte(PointerKey)) {
			ending := lineEnding(line)
			buf.WriteString(PointerKey)
			buf.WriteString(name)
			buf.Write(ending)
			changed = true
			continue
		}
		buf.Write(line)
	}
	return buf.Bytes(), changed
}

func lineEnding(line []byte) []byte {
	switch {
	case bytes.HasSuffix(line, []byte("\r\n")):
		return []byte("\r\n")
	case bytes.HasSuffix(line, []byte("\n")):
		return []byte("\n")
	}
	return nil
}

// WritePointer points the configuration file at name. The file is replaced
// atomically through a temporary file in the same directory. A file without
// a pointer line is left as is.
func WritePointer(confFile, name string) error {
	info, err := os.Stat(confFile)
	if err != nil {
		return fmt.Errorf("configuration file %s: %w", confFile, err)
	}
	content, err := os.ReadFile(confFile)
	if err != nil {
		return fmt.Errorf("read configuration %s: %w", confFile, err)
	}

	out, changed := RewritePointer(content, name)
	if !changed {
		slog.Warn("no active database line in configuration", "file", confFile, "key", PointerKey)
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(confFile), ".neo4j.conf-*")
	if err != nil {
		return fmt.Errorf("rewrite configuration %s: %w", confFile, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return fmt.Errorf("rewrite configuration %s: %w", confFile, err)
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		tmp.Close()
		return fmt.Errorf("rewrite configuration %s: %w", confFile, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("rewrite configuration %s: %w", confFile, err)
	}
	if err := os.Rename(tmpName, confFile); err != nil {
		return fmt.Errorf("rewrite configuration %s: %w", confFile, err)
	}
	return nil
}
