package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrToolNotFound is reported when the model calls an unregistered tool.
	ErrToolNotFound = errors.New("tool not found")
	// ErrToolTimeout is reported when an executor exceeds the tool timeout.
	ErrToolTimeout = errors.New("timeout")
	// ErrIterationLimit is wrapped by IterationLimitError.
	ErrIterationLimit = errors.New("iteration limit exceeded")
	// ErrUnknownProvider is returned when a provider name is not registered.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrNoProvider is returned when no provider has been registered at all.
	ErrNoProvider = errors.New("no provider configured")
	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("invalid request")
)

// ToolExecutionError wraps an executor failure or panic.
type ToolExecutionError struct {
	Name string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Name, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// IterationLimitError reports that the model kept requesting tools after
// Limit request/execute rounds.
type IterationLimitError struct {
	Limit int
}

func (e *IterationLimitError) Error() string {
	return fmt.Sprintf("agent loop stopped after %d iterations: %v", e.Limit, ErrIterationLimit)
}

func (e *IterationLimitError) Unwrap() error { return ErrIterationLimit }
