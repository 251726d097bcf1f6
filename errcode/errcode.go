// Package errcode attaches machine-readable codes to errors so front ends can
// report failures without matching on messages.
package errcode

import "errors"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an error without a code.
	CodeUnknown Code = "UNKNOWN"

	// Instantiation errors
	CodeSurfelSpecsMissing    Code = "SURFEL_SPECS_MISSING"
	CodeSourcesMissing        Code = "SOURCES_MISSING"
	CodeSubstancesMissing     Code = "SUBSTANCES_MISSING"
	CodeEffectsMissing        Code = "EFFECTS_MISSING"
	CodeInvalidSurfelDistance Code = "INVALID_SURFEL_DISTANCE"
	CodeResolve               Code = "RESOLVE"
	CodeLoad                  Code = "LOAD"
	CodeParse                 Code = "PARSE"
	CodeUnknownSubstance      Code = "UNKNOWN_SUBSTANCE"
	CodeInvalidSource         Code = "INVALID_SOURCE"

	// Runner errors
	CodeWithinLookupUnsupported Code = "WITHIN_LOOKUP_UNSUPPORTED"
	CodeCacheMiss               Code = "SURFEL_TABLE_CACHE_MISS"
	CodeOutputSizeUndetermined  Code = "OUTPUT_SIZE_UNDETERMINED"
	CodeExportPairIncomplete    Code = "EXPORT_PAIR_INCOMPLETE"
	CodeBlendStopsMissing       Code = "BLEND_STOPS_MISSING"
	CodeOutput                  Code = "OUTPUT"
)

// Coder is implemented by errors that carry a code.
type Coder interface {
	Code() Code
}

// Error is a coded error with an optional cause.
type Error struct {
	code    Code
	Message string
	Cause   error
}

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{code: code, Message: message}
}

// Wrap creates a coded error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{code: code, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Code returns the error's code.
func (e *Error) Code() Code { return e.code }

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a coded error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.code == t.code
	}
	return false
}

// Of returns the code of the outermost coded error in err's chain, or
// CodeUnknown.
func Of(err error) Code {
	var c Coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return CodeUnknown
}
