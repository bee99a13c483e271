package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ValidFormats lists the accepted --format values.
var ValidFormats = []string{FormatText, FormatJSON}

// Exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the operation ran and reported a negative outcome
	ExitCommandError = 2 // bad input, configuration or storage failure
)

// CLIResponse is the envelope written in json mode.
type CLIResponse struct {
	Status string     `json:"status"`
	Data   any        `json:"data,omitempty"`
	Error  *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo describes a failed command in json mode.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ExitError carries the process exit code for a failed command.
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

func (e *ExitError) Unwrap() error { return e.Err }

func commandError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitCommandError, Message: msg, Err: err}
}

// GetExitCode maps an Execute error to a process exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// OutputFormatter renders command results in the selected format.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// Success writes data. In text mode text renders it; a nil text prints data
// with %v.
func (f *OutputFormatter) Success(data any, text func(io.Writer)) error {
	if f.Format == FormatJSON {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	if text == nil {
		_, err := fmt.Fprintln(f.Writer, data)
		return err
	}
	text(f.Writer)
	return nil
}

// Failure writes a negative outcome and returns the matching ExitError.
// In json mode data rides along with the error.
func (f *OutputFormatter) Failure(code, msg string, data any) error {
	if f.Format == FormatJSON {
		if err := json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Data:   data,
			Error:  &ErrorInfo{Code: code, Message: msg},
		}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(f.errWriter(), "✗ %s\n", msg)
	}
	return &ExitError{Code: ExitFailure, Message: msg}
}

// VerboseLog writes a diagnostic line when verbose output is on.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.errWriter(), format+"\n", args...)
}

func (f *OutputFormatter) errWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
