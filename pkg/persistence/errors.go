package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrEnrollmentNotFound indicates an enrollment was not found by the given identifier.
	ErrEnrollmentNotFound = errors.New("enrollment not found")

	// ErrActiveEnrollmentExists indicates the contact already has an active enrollment in the workflow.
	ErrActiveEnrollmentExists = errors.New("active enrollment already exists")

	// ErrVersionConflict indicates a concurrent actor already advanced the record.
	ErrVersionConflict = errors.New("version conflict")

	// ErrDuplicateExecution indicates the (enrollment, action, attempt) record already exists.
	ErrDuplicateExecution = errors.New("execution record already exists")

	// ErrRecordFinished indicates an execution record was already finished.
	ErrRecordFinished = errors.New("execution record already finished")

	// ErrDuplicateAchievement indicates the goal was already recorded for the enrollment.
	ErrDuplicateAchievement = errors.New("goal achievement already recorded")

	// ErrEnrollmentInactive indicates the enrollment left running/waiting
	// before the write was applied.
	ErrEnrollmentInactive = errors.New("enrollment is not active")

	// ErrDeliveryNotFound indicates a webhook delivery was not found.
	ErrDeliveryNotFound = errors.New("delivery not found")

	// ErrDuplicateAttempt indicates the delivery attempt number already exists.
	ErrDuplicateAttempt = errors.New("delivery attempt already exists")

	// ErrAttemptFinished indicates a delivery attempt is no longer pending.
	ErrAttemptFinished = errors.New("delivery attempt already finished")

	// ErrDefinitionNotFound indicates a workflow definition snapshot was not found.
	ErrDefinitionNotFound = errors.New("workflow definition not found")
)

// EnrollmentError wraps enrollment-related errors with additional context.
type EnrollmentError struct {
	Op           string // Operation being performed (e.g., "Create", "Update")
	EnrollmentID string
	Err          error
}

func (e *EnrollmentError) Error() string {
	return fmt.Sprintf("%s operation failed for enrollment %s: %v", e.Op, e.EnrollmentID, e.Err)
}

func (e *EnrollmentError) Unwrap() error {
	return e.Err
}

func (e *EnrollmentError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewEnrollmentError(op, enrollmentID string, err error) *EnrollmentError {
	return &EnrollmentError{
		Op:           op,
		EnrollmentID: enrollmentID,
		Err:          err,
	}
}

// DeliveryError wraps delivery-related errors with additional context.
type DeliveryError struct {
	Op         string
	DeliveryID string
	Err        error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s operation failed for delivery %s: %v", e.Op, e.DeliveryID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func (e *DeliveryError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewDeliveryError(op, deliveryID string, err error) *DeliveryError {
	return &DeliveryError{
		Op:         op,
		DeliveryID: deliveryID,
		Err:        err,
	}
}

func IsEnrollmentNotFound(err error) bool {
	return errors.Is(err, ErrEnrollmentNotFound)
}

func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

func IsActiveEnrollmentExists(err error) bool {
	return errors.Is(err, ErrActiveEnrollmentExists)
}

func IsEnrollmentInactive(err error) bool {
	return errors.Is(err, ErrEnrollmentInactive)
}

func IsDuplicateAchievement(err error) bool {
	return errors.Is(err, ErrDuplicateAchievement)
}

func IsDeliveryNotFound(err error) bool {
	return errors.Is(err, ErrDeliveryNotFound)
}

func IsDefinitionNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound)
}
