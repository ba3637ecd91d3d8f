// Package fault defines the error taxonomy shared by every stage of the
// proving pipeline. Each failure carries a Code so callers can distinguish a
// malformed input from a faulting execution or a rejected proof without
// string matching.
package fault

import "fmt"

// Code classifies a pipeline failure.
type Code int

const (
	// CodeUnknown represents an unclassified error.
	CodeUnknown Code = iota

	// CodeIO represents a malformed or truncated binary input.
	CodeIO

	// CodeDecode represents an illegal instruction encoding.
	CodeDecode

	// CodeExecution represents a fault while stepping the VM: an
	// assert-equal mismatch, a zero inversion, or an out-of-segment
	// memory access.
	CodeExecution

	// CodeConsistency represents a divergence between re-executed values
	// and a supplied minimal trace, including conflicting memory values.
	CodeConsistency

	// CodeResourceExhausted represents hitting the configured step ceiling.
	CodeResourceExhausted

	// CodeMalformedProof represents proof bytes that cannot be decoded.
	CodeMalformedProof

	// CodeRejected represents a well-formed proof that fails verification.
	CodeRejected
)

var codeNames = map[Code]string{
	CodeUnknown:           "unknown",
	CodeIO:                "io",
	CodeDecode:            "decode",
	CodeExecution:         "execution",
	CodeConsistency:       "consistency",
	CodeResourceExhausted: "resource-exhausted",
	CodeMalformedProof:    "malformed-proof",
	CodeRejected:          "rejected",
}

// String returns the short name of the code.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Error is a coded pipeline error.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// New creates a coded error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a coded error around an underlying cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cairoproof %s error: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("cairoproof %s error: %s", e.Code, e.Message)
}

// Unwrap returns the cause of the error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code so errors.Is works with code sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// CodeOf extracts the code of err, or CodeUnknown for foreign errors.
func CodeOf(err error) Code {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return CodeUnknown
		}
		err = u.Unwrap()
	}
	return CodeUnknown
}
