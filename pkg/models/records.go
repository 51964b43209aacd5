package models

import (
	"fmt"
	"time"
)

// ExecutionStatus is the status of one action attempt.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusSucceeded ExecutionStatus = "succeeded"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusSkipped   ExecutionStatus = "skipped"
)

// ErrorKind classifies the failure recorded on an attempt.
type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindTransient  ErrorKind = "transient"
	ErrorKindTerminal   ErrorKind = "terminal"
)

// ActionExecutionRecord is the append-only audit row of one action attempt.
type ActionExecutionRecord struct {
	ID           string          `json:"id"`
	EnrollmentID string          `json:"enrollment_id"`
	ActionID     string          `json:"action_id"`
	ActionType   ActionType      `json:"action_type"`
	Attempt      int             `json:"attempt"`
	Status       ExecutionStatus `json:"status"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	ErrorKind    ErrorKind       `json:"error_kind,omitempty"`
	ErrorDetail  *string         `json:"error_detail,omitempty"`
	Output       map[string]any  `json:"output,omitempty"`
}

// IdempotencyKey identifies the attempt across workers.
func (r *ActionExecutionRecord) IdempotencyKey() string {
	return IdempotencyKey(r.EnrollmentID, r.ActionID, r.Attempt)
}

// IsFinished reports whether the record can no longer be mutated.
func (r *ActionExecutionRecord) IsFinished() bool {
	return r.FinishedAt != nil
}

func IdempotencyKey(enrollmentID, actionID string, attempt int) string {
	return fmt.Sprintf("%s:%s:%d", enrollmentID, actionID, attempt)
}

// GoalAchievement records that a goal was met for an enrollment. At most one
// row exists per (EnrollmentID, GoalID).
type GoalAchievement struct {
	ID           string       `json:"id"`
	WorkflowID   string       `json:"workflow_id"`
	EnrollmentID string       `json:"enrollment_id"`
	ContactID    string       `json:"contact_id"`
	GoalID       string       `json:"goal_id"`
	AchievedAt   time.Time    `json:"achieved_at"`
	Event        *DomainEvent `json:"event"`
}
