package loader

import (
	"errors"
	"fmt"
)

var (
	// ErrNotLoaded is returned by mutations issued before a successful load
	ErrNotLoaded = errors.New("session not loaded")
	// ErrUnknownScreen is returned when hot-reloading an id the session does not know
	ErrUnknownScreen = errors.New("unknown screen")
	// ErrStaleUpdate is returned when an update carries data older than the current entry
	ErrStaleUpdate = errors.New("stale update")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("loader closed")
)

// SessionLoadError is fatal to a load: the application entry point could not be
// fetched or evaluated, so there is nothing usable to fall back to.
type SessionLoadError struct {
	SessionID string
	Stage     string
	Err       error
}

func (e *SessionLoadError) Error() string {
	return fmt.Sprintf("load session %s: %s: %v", e.SessionID, e.Stage, e.Err)
}

func (e *SessionLoadError) Unwrap() error { return e.Err }
