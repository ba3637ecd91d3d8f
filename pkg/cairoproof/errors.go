package cairoproof

import "github.com/obsidianzk/cairoproof/internal/cairoproof/fault"

// ErrorCode classifies a cairoproof error.
type ErrorCode = fault.Code

const (
	// ErrUnknown represents an unclassified error
	ErrUnknown ErrorCode = fault.CodeUnknown

	// ErrIO represents a truncated or unreadable input file
	ErrIO ErrorCode = fault.CodeIO

	// ErrDecode represents an undecodable instruction word or program artifact
	ErrDecode ErrorCode = fault.CodeDecode

	// ErrExecution represents an instruction that cannot be executed
	ErrExecution ErrorCode = fault.CodeExecution

	// ErrConsistency represents a trace that contradicts re-execution
	ErrConsistency ErrorCode = fault.CodeConsistency

	// ErrResourceExhausted represents a step or size ceiling being hit
	ErrResourceExhausted ErrorCode = fault.CodeResourceExhausted

	// ErrMalformedProof represents a structurally invalid proof envelope
	ErrMalformedProof ErrorCode = fault.CodeMalformedProof

	// ErrRejected represents a well-formed proof that fails verification
	ErrRejected ErrorCode = fault.CodeRejected
)

// CodeOf extracts the error code from any error in a chain, returning
// ErrUnknown when none is present.
func CodeOf(err error) ErrorCode {
	return fault.CodeOf(err)
}
