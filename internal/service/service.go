package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

var (
	// ErrNotFound reports a service the platform tooling does not know.
	ErrNotFound = errors.New("service not found")

	// ErrUnsupported reports an operation the platform has no notion of.
	ErrUnsupported = errors.New("operation not supported on this platform")
)

// State is the coarse state of a service.
type State string

const (
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// Status is the result of a status query.
type Status struct {
	State State

	// Output is the raw tool output, kept for diagnostics.
	Output string
}

// Running reports whether the service is running.
func (s Status) Running() bool {
	return s.State == StateRunning
}

// Controller manages the database service.
type Controller interface {
	Status(ctx context.Context) (Status, error)
	Restart(ctx context.Context) error
	ReassignOwnership(path string) error
}

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Owner is the filesystem identity the service runs as.
type Owner struct {
	UID int
	GID int
}

// DefaultOwner is the neo4j account of the Debian packages.
var DefaultOwner = Owner{UID: 101, GID: 101}

// System controls a service through the platform's service tooling.
type System struct {
	// Platform is a GOOS value; "windows" selects sc/net, anything else service(8).
	Platform string

	// Name is the service name.
	Name string

	// Owner receives extracted database trees.
	Owner Owner

	Runner Runner
	Logger *slog.Logger
}

// NewSystem returns a System for the running platform.
func NewSystem(name string, owner Owner) *System {
	return &System{
		Platform: runtime.GOOS,
		Name:     name,
		Owner:    owner,
		Runner:   ExecRunner{},
		Logger:   slog.Default(),
	}
}

func (s *System) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *System) windows() bool {
	return s.Platform == "windows"
}

// Status queries the service. A service the tooling does not report as
// loaded/installed yields ErrNotFound.
func (s *System) Status(ctx context.Context) (Status, error) {
	if s.windows() {
		out, err := s.Runner.Run(ctx, "sc", "query", s.Name)
		text := string(out)
		if !strings.Contains(text, "STATE") {
			return Status{Output: text}, s.notFound(err)
		}
		if strings.Contains(text, "RUNNING") {
			return Status{State: StateRunning, Output: text}, nil
		}
		return Status{State: StateStopped, Output: text}, nil
	}

	// service(8) exits non-zero for a stopped unit; the output decides.
	out, err := s.Runner.Run(ctx, "service", s.Name, "status")
	text := string(out)
	if !strings.Contains(text, "Loaded: loaded") {
		return Status{Output: text}, s.notFound(err)
	}
	if strings.Contains(text, "Active: active (running)") {
		return Status{State: StateRunning, Output: text}, nil
	}
	return Status{State: StateStopped, Output: text}, nil
}

func (s *System) notFound(err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotFound, s.Name, err)
	}
	return fmt.Errorf("%w: %s", ErrNotFound, s.Name)
}

// Restart restarts the service. On Windows a failing stop (service already
// stopped) is logged and the start is still attempted.
func (s *System) Restart(ctx context.Context) error {
	if s.windows() {
		if out, err := s.Runner.Run(ctx, "net", "stop", s.Name); err != nil {
			s.logger().Warn("service stop failed", "service", s.Name, "error", err, "output", strings.TrimSpace(string(out)))
		}
		if out, err := s.Runner.Run(ctx, "net", "start", s.Name); err != nil {
			return fmt.Errorf("start service %s: %w: %s", s.Name, err, strings.TrimSpace(string(out)))
		}
		return nil
	}

	if out, err := s.Runner.Run(ctx, "service", s.Name, "restart"); err != nil {
		return fmt.Errorf("restart service %s: %w: %s", s.Name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// ReassignOwnership gives path and everything below it to Owner.
// Symlinks are re-owned themselves, never followed.
func (s *System) ReassignOwnership(path string) error {
	if s.windows() {
		return ErrUnsupported
	}
	return filepath.WalkDir(path, func(p string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := os.Lchown(p, s.Owner.UID, s.Owner.GID); err != nil {
			return fmt.Errorf("change ownership of %s: %w", p, err)
		}
		return nil
	})
}
