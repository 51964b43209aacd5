package models

import (
	"maps"
	"time"
)

// RunState is the execution state of an enrollment.
type RunState string

const (
	RunStateRunning      RunState = "running"        // Executing or immediately eligible
	RunStateWaiting      RunState = "waiting"        // Suspended until wake_at or an awaited event
	RunStateSucceeded    RunState = "succeeded"      // Cursor reached the end of the action list
	RunStateExitedByGoal RunState = "exited_by_goal" // A goal fired
	RunStateFailed       RunState = "failed"         // An action exhausted its retry budget
	RunStateCancelled    RunState = "cancelled"      // Administrative stop
)

// IsTerminal reports whether no further transition may leave the state.
func (s RunState) IsTerminal() bool {
	switch s {
	case RunStateSucceeded, RunStateExitedByGoal, RunStateFailed, RunStateCancelled:
		return true
	default:
		return false
	}
}

// IsActive reports whether the state counts towards the one-active-enrollment rule.
func (s RunState) IsActive() bool {
	return s == RunStateRunning || s == RunStateWaiting
}

// CursorNotStarted is the cursor of an enrollment that has not executed any action.
const CursorNotStarted = -1

// Enrollment is one contact progressing through one workflow definition snapshot.
type Enrollment struct {
	ID                string         `json:"id"`
	WorkflowID        string         `json:"workflow_id"                validate:"required"`
	DefinitionVersion int            `json:"definition_version"`
	TenantID          string         `json:"tenant_id"                  validate:"required"`
	ContactID         string         `json:"contact_id"                 validate:"required"`
	Cursor            int            `json:"cursor"`
	State             RunState       `json:"state"`
	WakeAt            *time.Time     `json:"wake_at,omitempty"`
	WaitEventType     string         `json:"wait_event_type,omitempty"`
	Attempt           int            `json:"attempt"`
	LeaseOwner        string         `json:"lease_owner,omitempty"`
	LeaseUntil        *time.Time     `json:"lease_until,omitempty"`
	Context           map[string]any `json:"context,omitempty"`
	LastError         string         `json:"last_error,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	Version           int64          `json:"version"`
}

// IsDue reports whether the scheduler may claim the enrollment at now.
func (e *Enrollment) IsDue(now time.Time) bool {
	switch e.State {
	case RunStateRunning:
		return e.LeaseUntil == nil || !e.LeaseUntil.After(now)
	case RunStateWaiting:
		return e.WakeAt != nil && !e.WakeAt.After(now)
	default:
		return false
	}
}

// IsWaitingFor reports whether the enrollment is suspended on the given event type.
func (e *Enrollment) IsWaitingFor(eventType string) bool {
	return e.State == RunStateWaiting && e.WaitEventType != "" && e.WaitEventType == eventType
}

// Clone returns a deep copy safe to mutate while computing a transition.
func (e *Enrollment) Clone() *Enrollment {
	clone := *e

	if e.WakeAt != nil {
		wakeAt := *e.WakeAt
		clone.WakeAt = &wakeAt
	}

	if e.LeaseUntil != nil {
		leaseUntil := *e.LeaseUntil
		clone.LeaseUntil = &leaseUntil
	}

	if e.Context != nil {
		clone.Context = maps.Clone(e.Context)
	}

	return &clone
}
