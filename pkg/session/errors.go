package session

import (
	"errors"
	"fmt"
)

// Sentinel errors for the session package.
var (
	// ErrUnknownSkin is returned for an unsupported skin name.
	ErrUnknownSkin = errors.New("session: unknown skin")

	// ErrEmptyState is returned when a state payload is empty or null.
	ErrEmptyState = errors.New("session: empty state")

	// ErrNotObject is returned when a state payload is not a JSON object.
	ErrNotObject = errors.New("session: state is not a JSON object")
)

// ParseError describes a state payload that could not be accepted at the
// boundary.
type ParseError struct {
	Skin Skin
	Err  error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("session [%s]: %v", e.Skin, e.Err)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}
