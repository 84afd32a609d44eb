package lmr

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection indicates the serial port could not be acquired
	// (missing device node, already held by another process). Fatal.
	ErrConnection = errors.New("connection failed")
	// ErrConfiguration indicates the requested line settings or board mode
	// were rejected. Fatal.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrNotOpen indicates an operation on a transport that is not open.
	ErrNotOpen = errors.New("port not open")
	// ErrSampleExhausted indicates all retry attempts for one sample failed.
	// Non-fatal: the scheduler excludes the sample from the average.
	ErrSampleExhausted = errors.New("sample retries exhausted")
)

// DecodeKind classifies a response decoding failure.
type DecodeKind int

const (
	// DecodeIncomplete means no or truncated data, typically a read timeout.
	DecodeIncomplete DecodeKind = iota
	// DecodeMalformed means a non-empty but structurally invalid response.
	DecodeMalformed
)

func (k DecodeKind) String() string {
	if k == DecodeIncomplete {
		return "incomplete"
	}
	return "malformed"
}

// DecodeError reports a response that could not be decoded. The sampler
// retries on it; the raw payload is kept for diagnostics.
type DecodeError struct {
	Kind DecodeKind
	Raw  []byte
}

// Error implements error.
func (e *DecodeError) Error() string {
	if len(e.Raw) == 0 {
		return fmt.Sprintf("decode failed: %s response", e.Kind)
	}
	return fmt.Sprintf("decode failed: %s response %q", e.Kind, e.Raw)
}

// IsIncomplete reports whether err is a DecodeError of kind DecodeIncomplete.
func IsIncomplete(err error) bool {
	var de *DecodeError
	return errors.As(err, &de) && de.Kind == DecodeIncomplete
}

// IsMalformed reports whether err is a DecodeError of kind DecodeMalformed.
func IsMalformed(err error) bool {
	var de *DecodeError
	return errors.As(err, &de) && de.Kind == DecodeMalformed
}
