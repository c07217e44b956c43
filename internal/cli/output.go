package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Process exit codes shared by every subcommand.
const (
	ExitSuccess      = 0 // clean run
	ExitFailure      = 1 // failed assertions, schema errors, protocol violations
	ExitCommandError = 2 // bad arguments, missing files, store failures
)

// Stable error codes carried in the JSON envelope.
const (
	ErrCodeGeneric    = "E001"
	ErrCodeNotFound   = "E002" // path or run not found
	ErrCodeNoFiles    = "E003" // no scenario files matched
	ErrCodeBadYAML    = "E004"
	ErrCodeSchema     = "E005"
	ErrCodeStore      = "E006" // trace database failure
	ErrCodeGoldenDiff = "E007" // trace diverged from its golden file
)

// ExitError carries the process exit code a command failure maps to.
type ExitError struct {
	Code    int
	Message string
	Err     error
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

// NewExitError creates an ExitError without an underlying cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError attaches an exit code to an underlying error.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps an error to its process exit code. Errors that carry
// no ExitError anywhere in their chain default to ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the JSON envelope every command emits in json format.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error half of the envelope.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// OutputFormatter renders command results in the selected format.
// Diagnostic logging is not its job; commands route that through slog on
// stderr so json output on stdout stays parseable.
type OutputFormatter struct {
	Format  string
	Writer  io.Writer
	Verbose bool
}

// respond writes the JSON envelope, indented the way the commands print
// all their JSON.
func (f *OutputFormatter) respond(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// Success renders a successful result.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.respond(CLIResponse{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error renders a failure. Details are shown in text mode only when
// verbose; the JSON envelope always carries them.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return f.respond(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "  %v\n", details)
	}
	return nil
}
