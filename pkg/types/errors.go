package types

import (
	"errors"
	"fmt"
)

// ErrorKind names an error class on the wire so the receiving peer can
// rebuild the matching typed error.
type ErrorKind string

const (
	ErrorKindProtocolFormat ErrorKind = "ProtocolFormat"
	ErrorKindRefused        ErrorKind = "Refused"
	ErrorKindReplayRejected ErrorKind = "ReplayRejected"
	ErrorKindNotEligible    ErrorKind = "NotEligible"
	ErrorKindUnauthorized   ErrorKind = "Unauthorized"
	ErrorKindInternal       ErrorKind = "Internal"
)

var (
	ErrTransport             = errors.New("transport error")
	ErrProtocolFormat        = errors.New("protocol format error")
	ErrAuthenticationRefused = errors.New("authentication refused")
	ErrReplayRejected        = errors.New("replay rejected")
	ErrNotEligible           = errors.New("not eligible")
	ErrTimeout               = errors.New("timeout")
	ErrConnectionClosed      = errors.New("connection closed")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrRequestInFlight       = errors.New("request already in flight")
	ErrPeerErrored           = errors.New("peer reported error")
)

// RefusedError is returned when a peer's signer does not match the owner of
// the identity it claims. It unwraps to ErrAuthenticationRefused.
type RefusedError struct {
	Reason string
}

func NewRefusedError(format string, args ...interface{}) *RefusedError {
	return &RefusedError{Reason: fmt.Sprintf(format, args...)}
}

func (e *RefusedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrAuthenticationRefused.Error(), e.Reason)
}

func (e *RefusedError) Unwrap() error {
	return ErrAuthenticationRefused
}

// KindForError maps a local error onto the wire vocabulary.
func KindForError(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrAuthenticationRefused):
		return ErrorKindRefused
	case errors.Is(err, ErrReplayRejected):
		return ErrorKindReplayRejected
	case errors.Is(err, ErrNotEligible):
		return ErrorKindNotEligible
	case errors.Is(err, ErrUnauthorized):
		return ErrorKindUnauthorized
	case errors.Is(err, ErrProtocolFormat):
		return ErrorKindProtocolFormat
	default:
		return ErrorKindInternal
	}
}

// ErrorFromFrame rebuilds the typed error described by an error reply.
func ErrorFromFrame(f *Frame) error {
	reason := f.Reason
	switch f.Kind {
	case ErrorKindRefused:
		return &RefusedError{Reason: reason}
	case ErrorKindReplayRejected:
		return fmt.Errorf("%w: %s", ErrReplayRejected, reason)
	case ErrorKindNotEligible:
		return fmt.Errorf("%w: %s", ErrNotEligible, reason)
	case ErrorKindUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, reason)
	case ErrorKindProtocolFormat:
		return fmt.Errorf("%w: %s", ErrProtocolFormat, reason)
	default:
		return fmt.Errorf("%w: %s", ErrPeerErrored, reason)
	}
}
