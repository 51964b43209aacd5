package protocol

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/dukex/drip/pkg/models"
)

// ValidationError reports a malformed action configuration. It is never retried.
type ValidationError struct {
	ActionType models.ActionType
	Field      string
	Reason     string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s config: %s", e.ActionType, e.Reason)
	}

	return fmt.Sprintf("invalid %s config: %s: %s", e.ActionType, e.Field, e.Reason)
}

func NewValidationError(actionType models.ActionType, field, reason string) *ValidationError {
	return &ValidationError{ActionType: actionType, Field: field, Reason: reason}
}

// TransientError wraps a failure worth retrying (timeouts, 5xx, resets).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func Transient(err error) error {
	if err == nil {
		return nil
	}

	return &TransientError{Err: err}
}

// TerminalError wraps a permanent rejection (4xx).
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string {
	return "terminal: " + e.Err.Error()
}

func (e *TerminalError) Unwrap() error {
	return e.Err
}

func Terminal(err error) error {
	if err == nil {
		return nil
	}

	return &TerminalError{Err: err}
}

func IsValidation(err error) bool {
	var target *ValidationError

	return errors.As(err, &target)
}

func IsTerminal(err error) bool {
	var target *TerminalError

	return errors.As(err, &target)
}

// IsTransient reports whether err should be retried. Context deadlines and
// network timeouts count as transient even when unwrapped.
func IsTransient(err error) bool {
	var target *TransientError
	if errors.As(err, &target) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}

// Classify maps err onto the recorded error kind. Unclassified errors are
// treated as transient so they stay bounded by the attempt ceiling.
func Classify(err error) models.ErrorKind {
	switch {
	case IsValidation(err):
		return models.ErrorKindValidation
	case IsTerminal(err):
		return models.ErrorKindTerminal
	default:
		return models.ErrorKindTransient
	}
}
