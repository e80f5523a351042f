package scheduler

import "errors"

var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("scheduler: invalid configuration")

	// ErrNoHandler is returned when no handler is registered for a job type
	ErrNoHandler = errors.New("scheduler: no handler for job type")

	// ErrJobTimeout is recorded when a handler outlives the job timeout
	ErrJobTimeout = errors.New("scheduler: job timed out")

	// ErrHandlerPanic is recorded when a handler panics
	ErrHandlerPanic = errors.New("scheduler: job handler panicked")
)
