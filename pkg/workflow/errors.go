package workflow

import (
	"errors"
	"fmt"

	"github.com/dukex/drip/pkg/models"
)

var (
	ErrWorkflowNotActive  = errors.New("workflow is not active")
	ErrEnrollmentTerminal = errors.New("enrollment is in a terminal state")
	ErrNotDue             = errors.New("enrollment is not due")
	ErrInvalidRequest     = errors.New("invalid request")
)

// TerminalStateError reports an operation against a finished enrollment.
type TerminalStateError struct {
	EnrollmentID string
	State        models.RunState
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("enrollment %s is %s", e.EnrollmentID, e.State)
}

func (e *TerminalStateError) Is(target error) bool {
	return target == ErrEnrollmentTerminal
}

func IsEnrollmentTerminal(err error) bool {
	return errors.Is(err, ErrEnrollmentTerminal)
}
