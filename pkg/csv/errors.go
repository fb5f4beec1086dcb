// Package csv error types and row-error recovery modes.
package csv

import (
	"errors"
	"fmt"

	"github.com/Linol-Hamelton/jtcsv-sub006/internal/tokenizer"
)

// ErrorMode specifies how the conversion handles rows that fail to parse,
// coerce or validate.
type ErrorMode int

const (
	// ErrorModeFail aborts the whole conversion on the first row error (default).
	ErrorModeFail ErrorMode = iota
	// ErrorModeWarn invokes the configured ErrorHandler and continues; the
	// failed row contributes nothing to the result.
	ErrorModeWarn
	// ErrorModeSkip silently omits the failed row and continues.
	ErrorModeSkip
)

// String returns the string representation of ErrorMode.
func (m ErrorMode) String() string {
	switch m {
	case ErrorModeFail:
		return "fail"
	case ErrorModeWarn:
		return "warn"
	case ErrorModeSkip:
		return "skip"
	default:
		return fmt.Sprintf("ErrorMode(%d)", m)
	}
}

// ErrorHandler is invoked under ErrorModeWarn with the row error, the raw
// fields of the failed row (nil when the row never assembled), and the
// 1-based row number.
type ErrorHandler func(err error, raw []string, rowNumber int)

// Row-scoped sentinel errors. The tokenizer-level sentinels are re-exported
// so callers can match with errors.Is without importing internal packages.
var (
	// ErrBareQuote indicates a quote character in an unquoted field.
	ErrBareQuote = tokenizer.ErrBareQuote
	// ErrUnterminatedQuote indicates a quoted field that never closed.
	ErrUnterminatedQuote = tokenizer.ErrUnterminatedQuote
	// ErrFieldTooLarge indicates a field exceeded MaxFieldSize.
	ErrFieldTooLarge = tokenizer.ErrFieldTooLarge
	// ErrRecordTooLarge indicates a row exceeded MaxRecordSize.
	ErrRecordTooLarge = tokenizer.ErrRecordTooLarge
	// ErrFieldCount indicates a row whose length does not match the header.
	ErrFieldCount = errors.New("wrong number of fields")
)

// OptionsError reports an invalid option configuration. It is raised
// synchronously, before any conversion work begins.
type OptionsError struct {
	Field   string
	Message string
}

func (e *OptionsError) Error() string {
	return "csv: invalid " + e.Field + ": " + e.Message
}

// ParseError is a row-scoped grammar or structural error with position
// information and a snippet of the offending row.
type ParseError struct {
	// RowNumber is the 1-based logical row number.
	RowNumber int
	// StartLine is the physical line the row started on (1-indexed).
	StartLine int
	// Line is the physical line where the error occurred.
	Line int
	// Column is the column where the error occurred (1-indexed, in runes).
	Column int
	// Snippet holds up to 80 bytes of the offending row.
	Snippet string
	// Err is the underlying error.
	Err error
}

// Error returns a formatted message with position information.
func (e *ParseError) Error() string {
	if e.StartLine == e.Line || e.StartLine == 0 {
		return fmt.Sprintf("csv: parse error on row %d (line %d, column %d): %v",
			e.RowNumber, e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("csv: parse error on row %d (line %d, started line %d, column %d): %v",
		e.RowNumber, e.Line, e.StartLine, e.Column, e.Err)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationError is a row-scoped schema violation on a typed record.
type ValidationError struct {
	// RowNumber is the 1-based logical row number.
	RowNumber int
	// Column is the column name the violation applies to, if any.
	Column string
	// Message describes the violation.
	Message string
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("csv: validation error on row %d, column %q: %s",
			e.RowNumber, e.Column, e.Message)
	}
	return fmt.Sprintf("csv: validation error on row %d: %s", e.RowNumber, e.Message)
}

// WorkerError reports that a pooled chunk task failed. Under warn and skip
// policies it stands in for that chunk's rows; under fail it fails the call.
type WorkerError struct {
	// Chunk is the zero-based index of the failed chunk.
	Chunk int
	// TaskID is the pool's correlation identifier for the task.
	TaskID string
	// Err is the original error.
	Err error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("csv: chunk %d failed: %v", e.Chunk, e.Err)
}

// Unwrap returns the original error.
func (e *WorkerError) Unwrap() error {
	return e.Err
}

// ResourceError reports that the worker pool was unavailable. It surfaces
// only when the inline fallback also failed.
type ResourceError struct {
	Err error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("csv: worker pool unavailable: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ResourceError) Unwrap() error {
	return e.Err
}

// wrapRowError converts a tokenizer row error into a *ParseError.
func wrapRowError(err error) error {
	var te *tokenizer.Error
	if errors.As(err, &te) {
		return &ParseError{
			RowNumber: te.Row,
			StartLine: te.StartLine,
			Line:      te.Line,
			Column:    te.Column,
			Snippet:   te.Snippet,
			Err:       te.Err,
		}
	}
	return err
}
