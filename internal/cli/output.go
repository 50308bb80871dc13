package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/bloodcheck/internal/config"
	"github.com/roach88/bloodcheck/internal/dbms"
	"github.com/roach88/bloodcheck/internal/graph"
	"github.com/roach88/bloodcheck/internal/querydef"
	"github.com/roach88/bloodcheck/internal/report"
	"github.com/roach88/bloodcheck/internal/service"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Some queries or annotations failed
	ExitCommandError = 2 // Configuration, connection or output directory error
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitSuccess for nil and ExitFailure for errors that are not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Error codes reported in JSON output.
const (
	CodeGeneric    = "E000"
	CodeConfig     = "E001"
	CodeDefinition = "E002"
	CodeExecution  = "E003"
	CodeDatabase   = "E004"
	CodeService    = "E005"
	CodeReport     = "E006"
)

// ErrorCode classifies err for JSON output.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, config.ErrInvalidConfig):
		return CodeConfig
	case errors.Is(err, querydef.ErrDefinition):
		return CodeDefinition
	case errors.Is(err, graph.ErrExecution):
		return CodeExecution
	case errors.Is(err, dbms.ErrInvalidName), errors.Is(err, dbms.ErrActiveDatabase),
		errors.Is(err, dbms.ErrNoInstances), errors.Is(err, dbms.ErrTemplateMissing):
		return CodeDatabase
	case errors.Is(err, service.ErrNotFound), errors.Is(err, dbms.ErrUnmanaged):
		return CodeService
	case errors.Is(err, report.ErrNothingToMerge), errors.Is(err, report.ErrPublishFailed):
		return CodeReport
	}
	return CodeGeneric
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for diagnostic output (defaults to Writer)
	Verbose   bool
}

// JSON reports whether output is machine-readable.
func (f *OutputFormatter) JSON() bool {
	return f.Format == "json"
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.JSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.JSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Text returns the writer for operator-facing progress lines. In JSON mode
// they go to ErrWriter so that stdout stays parseable.
func (f *OutputFormatter) Text() io.Writer {
	if f.JSON() {
		return f.GetErrWriter()
	}
	return f.Writer
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// Fail reports err in JSON mode and returns it for the exit code. In text
// mode the caller prints it.
func (f *OutputFormatter) Fail(err error) error {
	if err == nil || !f.JSON() {
		return err
	}
	if encErr := f.Error(ErrorCode(err), err.Error(), nil); encErr != nil {
		return errors.Join(err, encErr)
	}
	return err
}

// VerboseLog outputs a message only if verbose mode is enabled, on ErrWriter.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}
