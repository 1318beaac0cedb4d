package playback

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDocument is returned by commands that need a loaded document.
	ErrNoDocument = errors.New("no document loaded")

	// ErrStale is returned when a foreground request finished after a newer
	// command replaced it. Its audio is cached but not played.
	ErrStale = errors.New("request superseded")

	// ErrInvalidRate is returned by ChangeRate for an unsupported rate.
	ErrInvalidRate = errors.New("invalid rate")
)

// Error describes a failed controller command.
type Error struct {
	Op   string // command name, e.g. "request", "jump"
	Page int
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s page %d: %v", e.Op, e.Page+1, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
