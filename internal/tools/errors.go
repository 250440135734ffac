package tools

import "errors"

var (
	// ErrToolNotFound is returned by lookups and unregistration of unknown names.
	ErrToolNotFound = errors.New("tool not found")
	// ErrRegistryConflict is returned when registering a name that is already live.
	ErrRegistryConflict = errors.New("tool already registered")
	// ErrValidation marks arguments rejected before the tool ran.
	ErrValidation = errors.New("invalid tool arguments")
	// ErrExecution marks a tool that failed while running.
	ErrExecution = errors.New("tool execution failed")
	// ErrTimeout marks a tool that exceeded its time budget.
	ErrTimeout = errors.New("tool timed out")
)
