// Package models defines the core domain models of the workflow automation engine
package models

import (
	"cmp"
	"fmt"
	"slices"
)

// WorkflowStatus represents the lifecycle state of a workflow definition.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"
	WorkflowStatusPaused   WorkflowStatus = "paused"
	WorkflowStatusActive   WorkflowStatus = "active"   // Enrollable, action list frozen
	WorkflowStatusArchived WorkflowStatus = "archived" // Historical only
)

// MaxActionsPerWorkflow bounds the ordered action list of a definition.
const MaxActionsPerWorkflow = 50

// WorkflowDefinition is the read-only snapshot of a workflow the engine executes.
// A definition in the active status is immutable for a given Version.
type WorkflowDefinition struct {
	ID       string         `json:"id"        yaml:"id"        validate:"required"`
	TenantID string         `json:"tenant_id" yaml:"tenant_id" validate:"required"`
	Name     string         `json:"name"      yaml:"name"`
	Version  int            `json:"version"   yaml:"version"   validate:"gte=1"`
	Status   WorkflowStatus `json:"status"    yaml:"status"    validate:"required,oneof=draft paused active archived"`
	Actions  []*ActionSpec  `json:"actions"   yaml:"actions"   validate:"max=50,dive"`
}

// ActionAt returns the action at the given cursor position.
func (w *WorkflowDefinition) ActionAt(cursor int) (*ActionSpec, bool) {
	if cursor < 0 || cursor >= len(w.Actions) {
		return nil, false
	}

	return w.Actions[cursor], true
}

// Len returns the number of actions in the definition.
func (w *WorkflowDefinition) Len() int {
	return len(w.Actions)
}

// Normalize orders the actions by position and rejects duplicate positions or ids.
func (w *WorkflowDefinition) Normalize() error {
	slices.SortStableFunc(w.Actions, func(a, b *ActionSpec) int {
		return cmp.Compare(a.Position, b.Position)
	})

	ids := make(map[string]struct{}, len(w.Actions))

	for i, action := range w.Actions {
		if i > 0 && w.Actions[i-1].Position == action.Position {
			return fmt.Errorf("workflow %s: duplicate action position %d", w.ID, action.Position)
		}

		if _, seen := ids[action.ID]; seen {
			return fmt.Errorf("workflow %s: duplicate action id %s", w.ID, action.ID)
		}

		ids[action.ID] = struct{}{}
	}

	return nil
}
