package models

// GoalType names the kind of externally-observed condition a goal waits for.
type GoalType string

const (
	GoalTagAdded             GoalType = "tag_added"
	GoalPurchaseMade         GoalType = "purchase_made"
	GoalAppointmentBooked    GoalType = "appointment_booked"
	GoalFormSubmitted        GoalType = "form_submitted"
	GoalPipelineStageReached GoalType = "pipeline_stage_reached"
)

// EventType returns the canonical domain event type a goal of this kind
// listens to.
func (g GoalType) EventType() string {
	if g == GoalPipelineStageReached {
		return EventPipelineStageChanged
	}

	return string(g)
}

// ListensTo reports whether events of eventType can satisfy a goal of this
// kind. Pipeline goals accept both pipeline_stage_changed and the goal's own
// name, pipeline_stage_reached.
func (g GoalType) ListensTo(eventType string) bool {
	if g == GoalPipelineStageReached && eventType == EventPipelineStageReached {
		return true
	}

	return g.EventType() == eventType
}

// GoalCriteria is the typed predicate of a goal. Only the fields relevant to the
// goal type are read.
type GoalCriteria struct {
	TagID          string   `json:"tag_id,omitempty"          yaml:"tag_id,omitempty"`
	TagName        string   `json:"tag_name,omitempty"        yaml:"tag_name,omitempty"`
	AnyPurchase    bool     `json:"any_purchase,omitempty"    yaml:"any_purchase,omitempty"`
	MinAmount      *float64 `json:"min_amount,omitempty"      yaml:"min_amount,omitempty"`
	CalendarID     string   `json:"calendar_id,omitempty"     yaml:"calendar_id,omitempty"`
	AnyAppointment bool     `json:"any_appointment,omitempty" yaml:"any_appointment,omitempty"`
	FormID         string   `json:"form_id,omitempty"         yaml:"form_id,omitempty"`
	PipelineID     string   `json:"pipeline_id,omitempty"     yaml:"pipeline_id,omitempty"`
	StageID        string   `json:"stage_id,omitempty"        yaml:"stage_id,omitempty"`
}

// GoalDefinition is a goal attached to a workflow.
type GoalDefinition struct {
	ID         string       `json:"id"          yaml:"id"          validate:"required"`
	WorkflowID string       `json:"workflow_id" yaml:"workflow_id" validate:"required"`
	TenantID   string       `json:"tenant_id"   yaml:"tenant_id"   validate:"required"`
	Type       GoalType     `json:"type"        yaml:"type"        validate:"required,oneof=tag_added purchase_made appointment_booked form_submitted pipeline_stage_reached"`
	Criteria   GoalCriteria `json:"criteria"    yaml:"criteria"`
	Active     bool         `json:"active"      yaml:"active"`
	Version    int64        `json:"version"     yaml:"version"`
}
