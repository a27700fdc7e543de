package device

import (
	"errors"
	"fmt"
)

// Error categories. Check with errors.Is.
var (
	// ErrUnreachable covers connect failures, timeouts and dropped sessions.
	ErrUnreachable = errors.New("device: unreachable")

	// ErrProtocol covers malformed, undecryptable or unexpected responses.
	ErrProtocol = errors.New("device: protocol error")

	// ErrInvalidChannel is returned for channel ids that are not positive integers.
	ErrInvalidChannel = errors.New("device: invalid channel")
)

// OpError records a failed device operation.
type OpError struct {
	DeviceID string
	Op       string
	Err      error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("device %s: %s: %v", e.DeviceID, e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Unreachable wraps cause as an ErrUnreachable OpError.
func Unreachable(deviceID, op string, cause error) *OpError {
	return &OpError{DeviceID: deviceID, Op: op, Err: fmt.Errorf("%w: %w", ErrUnreachable, cause)}
}

// Protocol wraps cause as an ErrProtocol OpError.
func Protocol(deviceID, op string, cause error) *OpError {
	return &OpError{DeviceID: deviceID, Op: op, Err: fmt.Errorf("%w: %w", ErrProtocol, cause)}
}

// IsTransient reports whether err is one of the retry-on-next-tick categories.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrProtocol)
}
