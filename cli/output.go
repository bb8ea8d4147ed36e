package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/generic"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The run finished but some employees failed or were deferred
	ExitCommandError = 2 // Bad input, configuration or an aborted run
)

// Error codes in JSON output.
const (
	ErrCodeGeneric = "E001" // Generic/unknown error
	ErrCodeInput   = "E002" // Invalid flag or argument
	ErrCodeConfig  = "E003" // Leave type, policy or setting missing
	ErrCodeFeed    = "E004" // Holiday feed unreachable or malformed
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
// Returns ExitFailure (1) if the error is not an ExitError.
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

// =============================================================================
// FORMATTER
// =============================================================================

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success outputs data as JSON, or calls text to render it for humans.
func (f *OutputFormatter) Success(data any, text func(w io.Writer)) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	text(f.Writer)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail prints err and returns it wrapped with an exit code.
func (f *OutputFormatter) Fail(exitCode int, message string, err error) error {
	code := ErrCodeGeneric
	switch {
	case generic.IsConfigError(err):
		code = ErrCodeConfig
	case generic.IsClientError(err):
		code = ErrCodeInput
	}
	if err := f.Error(code, fmt.Sprintf("%s: %v", message, err), nil); err != nil {
		return err
	}
	return WrapExitError(exitCode, message, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// =============================================================================
// VIEWS
// =============================================================================

// ReportView is the JSON form of an engine.Report.
type ReportView struct {
	Process     string        `json:"process"`
	From        string        `json:"from"`
	To          string        `json:"to"`
	Processed   int           `json:"processed"`
	Skipped     int           `json:"skipped"`
	AlreadyDone int           `json:"already_done"`
	Failed      int           `json:"failed"`
	Deferred    int           `json:"deferred"`
	Adjustments int           `json:"adjustments"`
	Hours       string        `json:"hours"`
	Failures    []FailureView `json:"failures,omitempty"`
}

type FailureView struct {
	EmployeeID string `json:"employee_id"`
	Error      string `json:"error"`
}

func newReportView(r *engine.Report) ReportView {
	v := ReportView{
		Process:     string(r.Process),
		From:        r.From.String(),
		To:          r.To.String(),
		Processed:   r.Processed,
		Skipped:     r.Skipped,
		AlreadyDone: r.AlreadyDone,
		Failed:      r.Failed,
		Deferred:    r.Deferred,
		Adjustments: r.Adjustments,
		Hours:       r.Hours.StringFixed(2),
	}
	for _, f := range r.Failures {
		v.Failures = append(v.Failures, FailureView{EmployeeID: string(f.EmployeeID), Error: f.Error})
	}
	return v
}

type BalanceView struct {
	LeaveTypeID string `json:"leave_type_id"`
	LeaveType   string `json:"leave_type"`
	Hours       string `json:"hours"`
}

type RunView struct {
	ID        string `json:"id"`
	Process   string `json:"process"`
	Trigger   string `json:"trigger"`
	Window    string `json:"window"`
	Status    string `json:"status"`
	StartedAt string `json:"started_at"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Hours     string `json:"hours"`
	Error     string `json:"error,omitempty"`
}
