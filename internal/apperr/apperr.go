// Package apperr defines the error taxonomy shared by the engine and its transports.
package apperr

import "errors"

// Code classifies an error for callers that decide how to surface it.
type Code string

const (
	CodeUnknown    Code = "UNKNOWN"
	CodeValidation Code = "VALIDATION"
	CodeNotFound   Code = "NOT_FOUND"
	CodeGeneration Code = "GENERATION"
	CodeStorage    Code = "STORAGE"
	CodeState      Code = "STATE"
)

// Sentinels for errors.Is checks by code.
var (
	ErrValidation = New(CodeValidation, "validation failed")
	ErrNotFound   = New(CodeNotFound, "not found")
	ErrGeneration = New(CodeGeneration, "generation failed")
	ErrStorage    = New(CodeStorage, "storage failed")
	ErrState      = New(CodeState, "invalid state")
)

// Error is a classified error with optional metadata.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target has the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

// CodeOf returns the code of the outermost *Error in err's chain.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}
