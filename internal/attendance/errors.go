package attendance

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidProbe marks malformed input rejected before matching.
	ErrInvalidProbe = errors.New("invalid probe")
	// ErrInvalidQuery marks a malformed read query.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrUnavailable marks a transient failure of a collaborator (store,
	// lock or embedding provider). Nothing was written; the call may be retried.
	ErrUnavailable = errors.New("attendance backend unavailable")
)

// InfraError wraps a collaborator failure with the operation that failed.
type InfraError struct {
	Op  string
	Err error
}

func (e *InfraError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfraError) Unwrap() error {
	return e.Err
}

// Is makes every InfraError match ErrUnavailable.
func (e *InfraError) Is(target error) bool {
	return target == ErrUnavailable
}

func unavailable(op string, err error) error {
	return &InfraError{Op: op, Err: err}
}
