package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a connection was rejected.
type ErrorKind int

const (
	// KindNone is returned by KindOf for errors that are not VoteErrors.
	KindNone ErrorKind = iota
	// KindUnrecognizedProtocol means the first bytes matched no known protocol.
	KindUnrecognizedProtocol
	// KindMalformedFrame means the frame is structurally invalid.
	KindMalformedFrame
	// KindAuthenticationFailed covers decrypt failures, MAC mismatches and
	// unknown service names alike.
	KindAuthenticationFailed
	// KindTimeout means no complete frame arrived within the idle bound.
	KindTimeout
	// KindIOFailure is a transport-level read or write error.
	KindIOFailure
)

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	switch k {
	case KindUnrecognizedProtocol:
		return "unrecognized_protocol"
	case KindMalformedFrame:
		return "malformed_frame"
	case KindAuthenticationFailed:
		return "authentication_failed"
	case KindTimeout:
		return "timeout"
	case KindIOFailure:
		return "io_failure"
	default:
		return "none"
	}
}

// VoteError is a connection-terminating error with a structured code.
type VoteError struct {
	Kind    ErrorKind
	Code    string // e.g. "VT-PROTO-4000"
	Message string
	Details string
	Cause   error
}

// Error implements the error interface.
func (e *VoteError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *VoteError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a VoteError of the same kind.
func (e *VoteError) Is(target error) bool {
	t, ok := target.(*VoteError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewVoteError creates a new VoteError.
func NewVoteError(kind ErrorKind, code, message string) *VoteError {
	return &VoteError{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *VoteError) WithDetails(details string) *VoteError {
	return &VoteError{
		Kind:    e.Kind,
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *VoteError) WithCause(cause error) *VoteError {
	return &VoteError{
		Kind:    e.Kind,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// KindOf extracts the error kind from err, or KindNone.
func KindOf(err error) ErrorKind {
	var ve *VoteError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return KindNone
}

// GetErrorCode extracts the error code from an error if it's a VoteError.
func GetErrorCode(err error) string {
	var ve *VoteError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

var (
	// ErrUnrecognizedProtocol indicates the leading bytes matched neither protocol.
	ErrUnrecognizedProtocol = NewVoteError(KindUnrecognizedProtocol, "VT-PROTO-4000", "unrecognized protocol")

	// ErrMalformedFrame indicates a structurally invalid frame.
	ErrMalformedFrame = NewVoteError(KindMalformedFrame, "VT-PROTO-4001", "malformed frame")

	// ErrAuthenticationFailed indicates a frame that could not be authenticated.
	// The message never says which check failed.
	ErrAuthenticationFailed = NewVoteError(KindAuthenticationFailed, "VT-AUTH-4010", "authentication failed")

	// ErrTimeout indicates the connection idled past its deadline.
	ErrTimeout = NewVoteError(KindTimeout, "VT-CONN-4080", "timed out waiting for frame")

	// ErrIOFailure indicates a transport error.
	ErrIOFailure = NewVoteError(KindIOFailure, "VT-CONN-5000", "connection i/o failure")
)
