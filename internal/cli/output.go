package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/strata-db/strata/internal/model"
	"github.com/strata-db/strata/internal/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation failure (transaction retries exhausted, write rejected mid-flight)
	ExitCommandError = 2 // Command error (bad input, unknown references, database not found)
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
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
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// storeExitError classifies a store error into an ExitError. Validation and
// not-found failures are caller mistakes; exhausted retries mean the call
// can be re-submitted as-is.
func storeExitError(message string, err error) *ExitError {
	switch {
	case store.IsValidation(err), store.IsNotFound(err):
		return WrapExitError(ExitCommandError, message, err)
	case store.IsRetryable(err):
		return WrapExitError(ExitFailure, message+" (safe to retry)", err)
	}
	return WrapExitError(ExitFailure, message, err)
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

func newFormatter(opts *RootOptions, out, errOut io.Writer) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    out,
		ErrWriter: errOut,
		Verbose:   opts.Verbose,
	}
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

// Success outputs a successful result in the configured format. In text
// mode the payload is rendered by type; payloads without a dedicated
// rendering fall back to their default formatting.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	switch v := data.(type) {
	case model.Series:
		fmt.Fprintln(f.Writer, renderSeries(v))
	case []model.Series:
		for _, sr := range v {
			fmt.Fprintln(f.Writer, renderSeries(sr))
		}
		fmt.Fprintf(f.Writer, "%d series\n", len(v))
	case []store.ReadRow:
		for _, r := range v {
			fmt.Fprintln(f.Writer, renderReadRow(r))
		}
		fmt.Fprintf(f.Writer, "%d rows\n", len(v))
	case model.UpdateResult:
		for _, ref := range v.Updated {
			fmt.Fprintf(f.Writer, "updated value_id=%d %s\n", ref.ValueID, ref.Cell)
		}
		fmt.Fprintf(f.Writer, "%d updated, %d no-ops skipped\n", len(v.Updated), len(v.SkippedNoOps))
	default:
		fmt.Fprintln(f.Writer, data)
	}
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
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

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
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

func renderSeries(sr model.Series) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  id=%s unit=%s tier=%s", sr.Key(), sr.ID, sr.Unit, sr.RetentionTier)
	if sr.Overlapping {
		b.WriteString(" overlapping")
	}
	if sr.Description != "" {
		fmt.Fprintf(&b, " (%s)", sr.Description)
	}
	return b.String()
}

// renderReadRow is one projection row per line, fields in a fixed order so
// output diffs cleanly.
func renderReadRow(r store.ReadRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "valid=%s", r.ValidTime.Format(time.RFC3339Nano))
	if !r.ValidTimeEnd.IsZero() {
		fmt.Fprintf(&b, "..%s", r.ValidTimeEnd.Format(time.RFC3339Nano))
	}
	fmt.Fprintf(&b, " %s=%s %s", r.SeriesKey, renderValue(r.Value), r.Unit)
	fmt.Fprintf(&b, " known=%s", r.KnownTime.Format(time.RFC3339Nano))
	fmt.Fprintf(&b, " batch=%s", r.BatchID)
	if r.Annotation != "" {
		fmt.Fprintf(&b, " note=%q", r.Annotation)
	}
	if len(r.Tags) > 0 {
		fmt.Fprintf(&b, " tags=%s", strings.Join(r.Tags, ","))
	}
	if !r.IsCurrent {
		b.WriteString(" retired")
	}
	return b.String()
}

func renderValue(v *float64) string {
	if v == nil {
		return "null"
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}
