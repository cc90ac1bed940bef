package exchange

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork covers every way a turn can fail to come back: transport
	// errors, non-2xx statuses and bodies that are not a JSON object.
	ErrNetwork = errors.New("exchange: network failure")

	// ErrMalformed marks a response part that could not be used. It is
	// logged, never returned for a turn that otherwise succeeded.
	ErrMalformed = errors.New("exchange: malformed response")
)

// NetworkError describes a failed exchange with the backend.
type NetworkError struct {
	// Op is the endpoint path, e.g. "/chat-with-voice".
	Op string

	// StatusCode is the HTTP status, 0 when no response arrived.
	StatusCode int

	// Message is the backend's error text, if it sent one.
	Message string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("exchange %s: status %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("exchange %s: status %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("exchange %s: %v", e.Op, e.Err)
	}
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is makes every NetworkError match ErrNetwork.
func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// IsServerError returns true for 5xx statuses.
func (e *NetworkError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsNetwork reports whether err is a failed exchange.
func IsNetwork(err error) bool {
	return errors.Is(err, ErrNetwork)
}
