package engine

import "errors"

var (
	// ErrRunActive is returned by Run when another run is in progress.
	ErrRunActive = errors.New("a run is already active")

	// ErrRunClosed is returned by Run after the engine has been closed.
	ErrRunClosed = errors.New("engine is closed")

	// ErrStepLimit terminates a run whose tool call count exceeded the
	// configured maximum.
	ErrStepLimit = errors.New("step limit exceeded")

	// ErrDoomLoop terminates a run after the same tool call repeated
	// enough times to be considered stuck.
	ErrDoomLoop = errors.New("repeated tool call loop detected")
)
