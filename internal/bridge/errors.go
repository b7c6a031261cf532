package bridge

import (
	"errors"
	"fmt"
)

// ErrHandleReleased is returned when a handle is used after Close.
var ErrHandleReleased = errors.New("handle already released")

// ErrClosed is returned by a Bridge after Close.
var ErrClosed = errors.New("bridge closed")

// EngineLoadError occurs when the background engine load failed. Every call
// waiting on the bridge gets it.
type EngineLoadError struct {
	Err error
}

func (e *EngineLoadError) Error() string {
	return fmt.Sprintf("engine failed to load: %v", e.Err)
}

func (e *EngineLoadError) Unwrap() error {
	return e.Err
}

// InputTooLargeError occurs when input does not fit a 32-bit length.
type InputTooLargeError struct {
	Size int
}

func (e *InputTooLargeError) Error() string {
	return fmt.Sprintf("input of %d bytes exceeds the engine's 32-bit length", e.Size)
}
