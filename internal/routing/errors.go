package routing

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedTask matches every *MalformedTaskError.
	ErrMalformedTask = errors.New("malformed task")
	// ErrInvalidConfig matches every *InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid routing config")
)

// MalformedTaskError reports a task the engine refuses to score.
type MalformedTaskError struct {
	Index  int
	Field  string
	Reason string
}

func (e *MalformedTaskError) Error() string {
	return fmt.Sprintf("malformed task %d: %s %s", e.Index, e.Field, e.Reason)
}

func (e *MalformedTaskError) Is(target error) bool {
	return target == ErrMalformedTask
}

// InvalidConfigError reports a routing configuration that cannot be applied.
type InvalidConfigError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid routing config: %s %s", e.Field, e.Reason)
}

func (e *InvalidConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}
