package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrDuplicateRegistration is returned when binding an agent identifier
	// that is already bound in the same process.
	ErrDuplicateRegistration = errors.New("agent identifier already bound")

	// ErrUnknownAgent is returned when looking up an agent identifier with no
	// binding.
	ErrUnknownAgent = errors.New("agent identifier not bound")

	// ErrContractViolation marks an agent response that is well-formed but
	// violates its data contract (for example an accepted admission with no
	// assigned resource).
	ErrContractViolation = errors.New("agent response violates data contract")
)

// UnavailableError indicates the target agent is not registered or not
// reachable. Fatal to the current case.
type UnavailableError struct {
	AgentID uuid.UUID
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("agent %s unavailable: %v", e.AgentID, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// TimeoutError indicates no response arrived within the bounded wait.
// Fatal to the current case.
type TimeoutError struct {
	AgentID uuid.UUID
	Wait    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("agent %s did not respond within %s", e.AgentID, e.Wait)
}

// ExecutionError indicates the target agent's handler raised. The upstream
// detail is preserved for diagnostics. Fatal to the current case and never
// retried: a handler failure is a business fault, not a transient one.
type ExecutionError struct {
	AgentID uuid.UUID
	Detail  string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("agent %s execution failed: %s", e.AgentID, e.Detail)
}

// transient is implemented by transport errors that may resolve on retry.
type transient interface{ Transient() bool }

// IsTransient reports whether err is a recoverable transport-level failure.
// Only transient errors are retried by the invocation client.
func IsTransient(err error) bool {
	var t transient
	return errors.As(err, &t) && t.Transient()
}
