package models

import (
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowDefinition_Validation(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	definition := &WorkflowDefinition{
		ID:       "wf-1",
		TenantID: "tenant-1",
		Version:  1,
		Status:   WorkflowStatusActive,
		Actions: []*ActionSpec{
			{ID: "a1", Type: ActionSendEmail},
		},
	}
	require.NoError(t, validate.Struct(definition))

	definition.Status = "running"
	assert.Error(t, validate.Struct(definition))
}

func TestWorkflowDefinition_Validation_TooManyActions(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	actions := make([]*ActionSpec, MaxActionsPerWorkflow+1)
	for i := range actions {
		actions[i] = &ActionSpec{ID: "a", Type: ActionAddNote, Position: i}
	}

	definition := &WorkflowDefinition{
		ID:       "wf-1",
		TenantID: "tenant-1",
		Version:  1,
		Status:   WorkflowStatusActive,
		Actions:  actions,
	}

	err := validate.Struct(definition)
	require.Error(t, err)

	var validationErrors validator.ValidationErrors

	require.True(t, errors.As(err, &validationErrors))
	assert.Equal(t, "max", validationErrors[0].Tag())
}

func TestWorkflowDefinition_ActionAt(t *testing.T) {
	definition := &WorkflowDefinition{Actions: []*ActionSpec{{ID: "a1"}, {ID: "a2"}}}

	action, ok := definition.ActionAt(1)
	require.True(t, ok)
	assert.Equal(t, "a2", action.ID)

	_, ok = definition.ActionAt(CursorNotStarted)
	assert.False(t, ok)

	_, ok = definition.ActionAt(2)
	assert.False(t, ok)
}

func TestActionType_Group(t *testing.T) {
	tests := map[ActionType]CapabilityGroup{
		ActionSendSMS:            GroupCommunication,
		ActionAddTag:             GroupCRM,
		ActionWaitForEvent:       GroupTiming,
		ActionWebhookCall:        GroupInternal,
		ActionRevokeCourseAccess: GroupMembership,
	}

	for actionType, expected := range tests {
		group, ok := actionType.Group()
		require.True(t, ok)
		assert.Equal(t, expected, group)
	}

	_, ok := ActionType("launch_rocket").Group()
	assert.False(t, ok)
	assert.Len(t, ActionTypes(), 24)
}

func TestRunState(t *testing.T) {
	assert.True(t, RunStateRunning.IsActive())
	assert.True(t, RunStateWaiting.IsActive())
	assert.False(t, RunStateRunning.IsTerminal())

	for _, state := range []RunState{RunStateSucceeded, RunStateExitedByGoal, RunStateFailed, RunStateCancelled} {
		assert.True(t, state.IsTerminal(), state)
		assert.False(t, state.IsActive(), state)
	}
}

func TestEnrollment_IsDue(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(5 * time.Second)

	tests := []struct {
		name       string
		enrollment Enrollment
		expected   bool
	}{
		{"running without lease", Enrollment{State: RunStateRunning}, true},
		{"running with live lease", Enrollment{State: RunStateRunning, LeaseUntil: &future}, false},
		{"running with expired lease", Enrollment{State: RunStateRunning, LeaseUntil: &past}, true},
		{"waiting until the future", Enrollment{State: RunStateWaiting, WakeAt: &future}, false},
		{"waiting elapsed", Enrollment{State: RunStateWaiting, WakeAt: &past}, true},
		{"waiting exactly now", Enrollment{State: RunStateWaiting, WakeAt: &now}, true},
		{"waiting on event only", Enrollment{State: RunStateWaiting, WaitEventType: "form_submitted"}, false},
		{"terminal", Enrollment{State: RunStateSucceeded}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.enrollment.IsDue(now))
		})
	}
}

func TestEnrollment_Clone(t *testing.T) {
	wakeAt := time.Now()
	original := &Enrollment{
		ID:      "enr-1",
		WakeAt:  &wakeAt,
		Context: map[string]any{"contact": map[string]any{"first_name": "Ada"}},
	}

	clone := original.Clone()
	clone.Context["plan"] = "pro"
	*clone.WakeAt = wakeAt.Add(time.Hour)

	assert.NotContains(t, original.Context, "plan")
	assert.Equal(t, wakeAt, *original.WakeAt)
}

func TestDomainEvent_Accessors(t *testing.T) {
	event := &DomainEvent{Payload: map[string]any{
		"tag_id": "tag-1",
		"amount": 150.0,
		"form":   42,
		"total":  "99.5",
		"nested": map[string]any{},
	}}

	assert.Equal(t, "tag-1", event.String("tag_id"))
	assert.Equal(t, "150", event.String("amount"))
	assert.Equal(t, "42", event.String("form"))
	assert.Equal(t, "", event.String("nested"))
	assert.Equal(t, "", event.String("missing"))

	amount, ok := event.Float("amount")
	require.True(t, ok)
	assert.InDelta(t, 150.0, amount, 0.0001)

	total, ok := event.Float("total")
	require.True(t, ok)
	assert.InDelta(t, 99.5, total, 0.0001)

	_, ok = event.Float("tag_id")
	assert.False(t, ok)
}

func TestGoalType_EventType(t *testing.T) {
	assert.Equal(t, EventPipelineStageChanged, GoalPipelineStageReached.EventType())
	assert.Equal(t, EventPurchaseMade, GoalPurchaseMade.EventType())
}

func TestGoalType_ListensTo(t *testing.T) {
	assert.True(t, GoalPipelineStageReached.ListensTo(EventPipelineStageChanged))
	assert.True(t, GoalPipelineStageReached.ListensTo(EventPipelineStageReached))
	assert.False(t, GoalPipelineStageReached.ListensTo(EventTagAdded))
	assert.True(t, GoalTagAdded.ListensTo(EventTagAdded))
	assert.False(t, GoalTagAdded.ListensTo(EventPipelineStageReached))
}

func TestWebhookDeliveryAttempt_IsDue(t *testing.T) {
	now := time.Now()
	lease := now.Add(time.Minute)

	attempt := &WebhookDeliveryAttempt{Outcome: DeliveryOutcomePending, ScheduledAt: now.Add(-time.Second)}
	assert.True(t, attempt.IsDue(now))

	attempt.LeaseUntil = &lease
	assert.False(t, attempt.IsDue(now))

	attempt.LeaseUntil = nil
	attempt.ScheduledAt = now.Add(time.Minute)
	assert.False(t, attempt.IsDue(now))

	attempt.ScheduledAt = now
	attempt.Outcome = DeliveryOutcomeFailed
	assert.False(t, attempt.IsDue(now))
}

func TestIdempotencyKey(t *testing.T) {
	record := &ActionExecutionRecord{EnrollmentID: "enr-1", ActionID: "a1", Attempt: 2}
	assert.Equal(t, "enr-1:a1:2", record.IdempotencyKey())
}

func TestActionSpec_IsEnabled(t *testing.T) {
	disabled := false

	assert.True(t, (&ActionSpec{}).IsEnabled())
	assert.False(t, (&ActionSpec{Enabled: &disabled}).IsEnabled())
}

func TestWorkflowDefinition_Normalize(t *testing.T) {
	definition := &WorkflowDefinition{
		ID: "wf-1",
		Actions: []*ActionSpec{
			{ID: "c", Position: 2},
			{ID: "a", Position: 0},
			{ID: "b", Position: 1},
		},
	}

	require.NoError(t, definition.Normalize())
	assert.Equal(t, "a", definition.Actions[0].ID)
	assert.Equal(t, "c", definition.Actions[2].ID)

	definition.Actions = append(definition.Actions, &ActionSpec{ID: "d", Position: 1})
	assert.ErrorContains(t, definition.Normalize(), "duplicate action position 1")
}
