package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingType is returned for envelopes without a type discriminator.
	ErrMissingType = errors.New("missing message type")

	// ErrUnknownType is returned for envelopes with an unrecognized type discriminator.
	ErrUnknownType = errors.New("unknown message type")

	// ErrMissingData is returned when a message requires a payload and has none.
	ErrMissingData = errors.New("missing message data")

	// ErrInvalidFlag is returned when a boolean option has a value outside the decision table.
	ErrInvalidFlag = errors.New("invalid boolean value")
)

// Error is a protocol error: a message whose shape could not be decoded.
// Protocol errors are never fatal; the offending message is dropped.
type Error struct {
	Type   MessageType
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol error (%s): %s: %v", e.Type, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(t MessageType, reason string, err error) *Error {
	return &Error{Type: t, Reason: reason, Err: err}
}
