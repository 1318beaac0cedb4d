package synth

import (
	"errors"
	"fmt"
)

var (
	// ErrSynthesisFailed matches every error produced by a failed synthesis.
	ErrSynthesisFailed = errors.New("synthesis failed")

	// ErrUnknownEngine is returned for an engine name with no implementation.
	ErrUnknownEngine = errors.New("unknown synthesis engine")
)

// Error describes a failed synthesis request.
type Error struct {
	Engine string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Engine, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Engine, e.Reason)
}

// Unwrap lets errors.Is match both ErrSynthesisFailed and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSynthesisFailed}
	}
	return []error{ErrSynthesisFailed, e.Err}
}
