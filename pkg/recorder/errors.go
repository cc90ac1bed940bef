package recorder

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied is returned when the OS refuses the microphone.
	ErrPermissionDenied = errors.New("recorder: microphone permission denied")

	// ErrAlreadyRecording is returned by Start while a recording is live.
	ErrAlreadyRecording = errors.New("recorder: already recording")

	// ErrNotRecording is returned by Stop when nothing is being recorded.
	ErrNotRecording = errors.New("recorder: not recording")

	// ErrEmptyClip is returned when a recording captured no audio.
	ErrEmptyClip = errors.New("recorder: no audio captured")
)

// EncodeError wraps a failure to encode captured audio.
type EncodeError struct {
	Format string
	Err    error
}

// Error implements the error interface.
func (e *EncodeError) Error() string {
	return fmt.Sprintf("recorder: encode %s: %v", e.Format, e.Err)
}

// Unwrap returns the underlying error.
func (e *EncodeError) Unwrap() error {
	return e.Err
}

// IsPermissionDenied reports whether err means the microphone was refused.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}
