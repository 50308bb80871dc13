package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrExecution is wrapped by every ExecutionError.
var ErrExecution = errors.New("query execution failed")

// Record is one result row keyed by returned field name.
type Record map[string]any

// Get returns the value of key and whether the record holds it.
func (r Record) Get(key string) (any, bool) {
	v, ok := r[key]
	return v, ok
}

// Result is a fully consumed query result.
type Result struct {
	Keys    []string
	Records []Record
}

// Len returns the number of records.
func (r Result) Len() int {
	return len(r.Records)
}

// Session executes Cypher statements against the database.
// Implementations are used by a single goroutine.
type Session interface {
	// Run executes cypher with named parameters and returns all records.
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)

	// Close releases the session and its connection.
	Close(ctx context.Context) error
}

// ExecutionError reports a query the session refused or failed to run.
type ExecutionError struct {
	Query string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%v [%s]: %v", ErrExecution, e.Query, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecution
}

// Executor runs single queries, isolating their failures.
type Executor struct {
	Logger *slog.Logger
}

// NewExecutor returns an Executor logging to logger, or to slog.Default when nil.
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{Logger: logger}
}

// Execute runs query on session. Failures are logged at warning level and
// returned as *ExecutionError; they are never retried.
func (e *Executor) Execute(ctx context.Context, session Session, query string, params map[string]any) (Result, error) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	trimmed := strings.TrimSpace(query)
	logger.Info("getting result for query", "cypher", trimmed)

	if session == nil {
		err := &ExecutionError{Query: trimmed, Err: errors.New("no active session")}
		logger.Warn("query failed", "cypher", trimmed, "error", err.Err)
		return Result{}, err
	}

	res, err := session.Run(ctx, trimmed, params)
	if err != nil {
		logger.Warn("query failed", "cypher", trimmed, "error", err)
		return Result{}, &ExecutionError{Query: trimmed, Err: err}
	}
	return res, nil
}
