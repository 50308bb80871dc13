package dbms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/roach88/bloodcheck/internal/prompt"
	"github.com/roach88/bloodcheck/internal/service"
)

// ReservedInstance is the default database shipped with Neo4j. It is never
// listed, switched to or purged.
const ReservedInstance = "graph.db"

var (
	// ErrInvalidName reports a database name that cannot be used.
	ErrInvalidName = errors.New("database name not valid")

	// ErrActiveDatabase reports an operation refused because it targets the active database.
	ErrActiveDatabase = errors.New("database is active")

	// ErrNoInstances reports an empty database root.
	ErrNoInstances = errors.New("no database available")

	// ErrUnmanaged reports a service this tool cannot control (docker or remote).
	ErrUnmanaged = errors.New("service is not managed locally")

	// ErrTemplateMissing reports a missing template archive.
	ErrTemplateMissing = errors.New("database template archive does not exist")
)

// Manager runs the database lifecycle operations of one installation.
type Manager struct {
	// Root holds one subdirectory per database instance.
	Root string

	// ConfFile holds the active database pointer.
	ConfFile string

	// TemplateArchive is the zip extracted by Generate.
	TemplateArchive string

	Prompter prompt.Prompter

	// Service may be nil when the service is not managed (docker, remote).
	Service service.Controller

	// RestartWait is how long Restart waits for the service to come back.
	RestartWait time.Duration

	// Out receives the operator-facing lines.
	Out io.Writer
}

func (m *Manager) printf(format string, args ...any) {
	if m.Out == nil {
		return
	}
	fmt.Fprintf(m.Out, format, args...)
}

// Instances returns the database names under Root, sorted.
func (m *Manager) Instances() ([]string, error) {
	entries, err := os.ReadDir(m.Root)
	if err != nil {
		return nil, fmt.Errorf("list databases in %s: %w", m.Root, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && e.Name() != ReservedInstance {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Active returns the active database, or "" when the configuration names none.
func (m *Manager) Active() (string, error) {
	name, _, err := ReadPointer(m.ConfFile)
	return name, err
}

// SetActive rewrites the pointer to name. The service keeps serving the old
// database until it is restarted.
func (m *Manager) SetActive(name string) error {
	if err := WritePointer(m.ConfFile, name); err != nil {
		return err
	}
	slog.Info("active database set", "database", name, "file", m.ConfFile)
	return nil
}

// List prints the instances, marking the active one.
func (m *Manager) List() ([]string, error) {
	names, err := m.Instances()
	if err != nil {
		return nil, err
	}
	active, err := m.Active()
	if err != nil {
		return nil, err
	}
	m.printList(names, active)
	return names, nil
}

func (m *Manager) printList(names []string, active string) {
	m.printf("[+] Available Databases:\n")
	for i, name := range names {
		marker := "  "
		if name == active {
			marker = "->"
		}
		m.printf("%s [%d]: %s\n", marker, i, name)
	}
}

// ValidateName checks that name can become a new instance under root.
// existing lists the instance names already present.
func ValidateName(root, name string, existing []string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case strings.Contains(name, "."):
		return fmt.Errorf("%w: %q contains a dot", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, filepath.Separator):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	case filepath.IsAbs(name) || filepath.VolumeName(name) != "":
		return fmt.Errorf("%w: %q is a path", ErrInvalidName, name)
	}
	for _, e := range existing {
		if e == name {
			return fmt.Errorf("%w: %q already exists", ErrInvalidName, name)
		}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	target := filepath.Join(absRoot, name)
	if filepath.Dir(target) != absRoot {
		return fmt.Errorf("%w: %q resolves outside %s", ErrInvalidName, name, root)
	}
	if _, err := os.Lstat(target); err == nil {
		return fmt.Errorf("%w: %q already exists", ErrInvalidName, name)
	}
	return nil
}

// Generate asks for a new name until one is valid, then materializes the
// instance from the template archive and hands it to the service owner.
func (m *Manager) Generate(ctx context.Context) (string, error) {
	if _, err := os.Stat(m.TemplateArchive); err != nil {
		m.printf("[!] Neo4j database sample file does not exist!\n")
		return "", fmt.Errorf("%w: %s", ErrTemplateMissing, m.TemplateArchive)
	}
	existing, err := m.Instances()
	if err != nil {
		return "", err
	}

	var name string
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		name, err = m.Prompter.AskName("Please input the new Database name: ")
		if err != nil {
			return "", err
		}
		if err := ValidateName(m.Root, name, existing); err != nil {
			slog.Debug("rejected database name", "database", name, "error", err)
			m.printf("[!] Database name not valid!\n")
			continue
		}
		break
	}

	m.printf("[!] Creating database '%s'\n", name)
	target := filepath.Join(m.Root, name)
	if err := Extract(m.TemplateArchive, target); err != nil {
		_ = os.RemoveAll(target)
		return "", fmt.Errorf("generate database %s: %w", name, err)
	}

	if m.Service != nil {
		err := m.Service.ReassignOwnership(target)
		switch {
		case errors.Is(err, service.ErrUnsupported):
		case err != nil:
			m.printf("[!] Error while changing ownership of directory [%s]\n", target)
			slog.Error("ownership change failed", "database", name, "path", target, "error", err)
		}
	}
	slog.Info("database generated", "database", name, "path", target)
	return name, nil
}

// Switch asks for an instance and makes it the active one.
func (m *Manager) Switch(ctx context.Context) (string, error) {
	names, err := m.Instances()
	if err != nil {
		return "", err
	}
	active, err := m.Active()
	if err != nil {
		return "", err
	}
	return m.switchAmong(ctx, names, active)
}

func (m *Manager) switchAmong(ctx context.Context, names []string, active string) (string, error) {
	if len(names) == 0 {
		return "", ErrNoInstances
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.printList(names, active)
	idx, err := m.Prompter.AskIndex("[!] Please select the Database to switch to: ", len(names))
	if err != nil {
		return "", err
	}
	chosen := names[idx]
	m.printf("[!] Switching to database '%s'\n", chosen)
	if err := m.SetActive(chosen); err != nil {
		return "", err
	}
	m.printf("[+] Neo4j database ready, please restart Neo4j and refresh BloodHound DB stats\n")
	return chosen, nil
}

// Purge asks for an instance and deletes it after confirmation. The active
// instance is never deleted in place: the operator first has to switch to
// another instance, after which deletion of the chosen one resumes. It
// returns the deleted name, or "" when nothing was deleted.
func (m *Manager) Purge(ctx context.Context) (string, error) {
	names, err := m.Instances()
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", ErrNoInstances
	}
	active, err := m.Active()
	if err != nil {
		return "", err
	}

	m.printList(names, active)
	idx, err := m.Prompter.AskIndex("[!] Please select the Database to purge: ", len(names))
	if err != nil {
		return "", err
	}
	chosen := names[idx]

	for chosen == active {
		m.printf("[!] Can't delete current database '%s'!\n", chosen)
		others := without(names, chosen)
		if len(others) == 0 {
			return "", fmt.Errorf("%w: %s is the only database", ErrActiveDatabase, chosen)
		}
		if _, err := m.switchAmong(ctx, others, active); err != nil {
			return "", err
		}
		if active, err = m.Active(); err != nil {
			return "", err
		}
	}

	m.printf("[!] Deleting database '%s'\n", chosen)
	ok, err := m.Prompter.Confirm("[!] Are you sure ?")
	if err != nil {
		return "", err
	}
	if !ok {
		m.printf("[!] Action aborted!\n")
		return "", nil
	}

	path := filepath.Join(m.Root, chosen)
	if err := os.RemoveAll(path); err != nil {
		slog.Error("database deletion failed", "database", chosen, "path", path, "error", err)
		m.printf("[!] Error while purging database '%s'\n", chosen)
		return "", nil
	}
	m.printf("[!] Database '%s' deleted!\n", chosen)
	slog.Info("database purged", "database", chosen, "path", path)
	return chosen, nil
}

func without(names []string, drop string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != drop {
			out = append(out, n)
		}
	}
	return out
}

// Restart restarts the service so that the pointer takes effect, then waits
// RestartWait for it to come back.
func (m *Manager) Restart(ctx context.Context) error {
	if m.Service == nil {
		m.printf("[!] Can't manage docker/remote Neo4j service!\n")
		return ErrUnmanaged
	}
	if _, err := m.Service.Status(ctx); err != nil {
		m.printf("[!] Neo4j service not found!\n")
		return err
	}

	m.printf("[!] Restarting Neo4j service...\n")
	if err := m.Service.Restart(ctx); err != nil {
		m.printf("[!] An error occurred while restarting the Neo4j service!\n")
		return err
	}
	if m.RestartWait <= 0 {
		m.printf("[!] Neo4j service restarted!\n")
		return nil
	}

	m.printf("[!] Neo4j service restarted! Waiting %s...\n", m.RestartWait)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.RestartWait):
		return nil
	}
}
