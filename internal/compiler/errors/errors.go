// Package errors provides structured errors for the diagram compiler. It
// defines error codes, categories and formatting for both human-readable
// terminal output and machine-parseable JSON returned by the HTTP API.
//
// The compiler never fails on the Markdown it reads; the errors here describe
// caller mistakes (an unknown diagram kind) and internal invariant violations.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode string

// ErrorCategory represents the category of compiler error
type ErrorCategory string

const (
	// CategoryInput represents caller input errors (INP100-199)
	CategoryInput ErrorCategory = "input"
	// CategoryCodeGen represents emitter failures (GEN600-699)
	CategoryCodeGen ErrorCategory = "codegen"
)

// ErrorSeverity indicates the severity level of an error
type ErrorSeverity string

const (
	// SeverityError indicates an error that prevents rendering
	SeverityError ErrorSeverity = "error"
	// SeverityWarning indicates a recoverable problem
	SeverityWarning ErrorSeverity = "warning"
)

// CompilerError is a structured compiler error.
type CompilerError struct {
	// Code is the unique error code (e.g., "GEN600")
	Code ErrorCode `json:"code"`
	// Type is a machine-readable error type identifier
	Type string `json:"type"`
	// Category is the error category
	Category ErrorCategory `json:"category"`
	// Severity is the error severity level
	Severity ErrorSeverity `json:"severity"`
	// Message is the primary error message
	Message string `json:"message"`
	// Kind is the diagram kind being produced, if known
	Kind string `json:"kind,omitempty"`
	// File is the source file name (optional)
	File string `json:"file,omitempty"`
	// Expected describes what was expected (optional)
	Expected string `json:"expected,omitempty"`
	// Actual describes what was actually found (optional)
	Actual string `json:"actual,omitempty"`
	// Suggestion provides a hint for fixing the error (optional)
	Suggestion string `json:"suggestion,omitempty"`

	cause error
}

// Error implements the error interface
func (e *CompilerError) Error() string {
	return FormatCompact(e)
}

// Unwrap returns the underlying cause, if any.
func (e *CompilerError) Unwrap() error {
	return e.cause
}

// Format returns a human-readable error message for terminal output
func (e *CompilerError) Format() string {
	return FormatError(e)
}

// ToJSON returns the error as an indented JSON document
func (e *CompilerError) ToJSON() (string, error) {
	bytes, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// WithFile sets the source file name for the error
func (e *CompilerError) WithFile(file string) *CompilerError {
	e.File = file
	return e
}

// WithKind sets the diagram kind for the error
func (e *CompilerError) WithKind(kind string) *CompilerError {
	e.Kind = kind
	return e
}

// WithExpected sets the expected value for the error
func (e *CompilerError) WithExpected(expected string) *CompilerError {
	e.Expected = expected
	return e
}

// WithActual sets the actual value for the error
func (e *CompilerError) WithActual(actual string) *CompilerError {
	e.Actual = actual
	return e
}

// WithSuggestion sets a suggestion for fixing the error
func (e *CompilerError) WithSuggestion(suggestion string) *CompilerError {
	e.Suggestion = suggestion
	return e
}

// WithCause records the error that triggered this one
func (e *CompilerError) WithCause(cause error) *CompilerError {
	e.cause = cause
	return e
}

// ErrorList is a collection of compiler errors
type ErrorList []*CompilerError

// Error implements the error interface
func (el ErrorList) Error() string {
	if len(el) == 0 {
		return "no errors"
	}
	return FormatErrorList(el)
}

// HasErrors returns true if the list contains any errors (excludes warnings)
func (el ErrorList) HasErrors() bool {
	for _, err := range el {
		if err.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ToJSON returns all errors as a JSON array
func (el ErrorList) ToJSON() (string, error) {
	bytes, err := json.MarshalIndent(el, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// As returns the CompilerError in err's chain.
func As(err error) (*CompilerError, bool) {
	var ce *CompilerError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsInternal reports whether err is an internal compiler failure as opposed
// to a caller mistake.
func IsInternal(err error) bool {
	ce, ok := As(err)
	return ok && ce.Category == CategoryCodeGen
}

// HasCode reports whether err is a CompilerError with the given code.
func HasCode(err error, code ErrorCode) bool {
	ce, ok := As(err)
	return ok && ce.Code == code
}

func newError(
	code ErrorCode,
	typ string,
	category ErrorCategory,
	severity ErrorSeverity,
	message string,
) *CompilerError {
	return &CompilerError{
		Code:     code,
		Type:     typ,
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Input error codes (INP100-199)
const (
	// ErrUnknownKind indicates a diagram kind the compiler does not know
	ErrUnknownKind ErrorCode = "INP100"
	// ErrInputTooLarge indicates a document above the configured size limit
	ErrInputTooLarge ErrorCode = "INP101"
)

// Code generation error codes (GEN600-699)
const (
	// ErrInternal indicates an emitter failed unexpectedly
	ErrInternal ErrorCode = "GEN600"
	// ErrNilIR indicates an emitter was handed no IR at all
	ErrNilIR ErrorCode = "GEN601"
)

// NewUnknownKind creates an INP100 error
func NewUnknownKind(kind string, known []string) *CompilerError {
	return newError(
		ErrUnknownKind,
		"unknown_kind",
		CategoryInput,
		SeverityError,
		fmt.Sprintf("Unknown diagram kind '%s'", kind),
	).WithKind(kind).
		WithActual(kind).
		WithExpected(fmt.Sprintf("one of %v", known))
}

// NewInputTooLarge creates an INP101 error
func NewInputTooLarge(size, limit int) *CompilerError {
	return newError(
		ErrInputTooLarge,
		"input_too_large",
		CategoryInput,
		SeverityError,
		fmt.Sprintf("Document is %d bytes, the limit is %d", size, limit),
	).WithSuggestion("Split the document or raise render.max_input_bytes")
}

// NewInternal creates a GEN600 error
func NewInternal(kind string, reason any) *CompilerError {
	e := newError(
		ErrInternal,
		"internal",
		CategoryCodeGen,
		SeverityError,
		fmt.Sprintf("Diagram generation failed: %v", reason),
	).WithKind(kind).
		WithSuggestion("This is likely a compiler bug - please report it with the input document")
	if err, ok := reason.(error); ok {
		e.cause = err
	}
	return e
}

// NewNilIR creates a GEN601 error
func NewNilIR(kind string) *CompilerError {
	return newError(
		ErrNilIR,
		"nil_ir",
		CategoryCodeGen,
		SeverityError,
		"Emitter received no parse result",
	).WithKind(kind)
}
