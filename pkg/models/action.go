package models

// ActionType names one configured step kind.
type ActionType string

// Communication actions.
const (
	ActionSendEmail     ActionType = "send_email"
	ActionSendSMS       ActionType = "send_sms"
	ActionSendVoicemail ActionType = "send_voicemail"
	ActionSendMessenger ActionType = "send_messenger"
	ActionMakeCall      ActionType = "make_call"
)

// CRM mutation actions.
const (
	ActionCreateContact      ActionType = "create_contact"
	ActionUpdateContact      ActionType = "update_contact"
	ActionAddTag             ActionType = "add_tag"
	ActionRemoveTag          ActionType = "remove_tag"
	ActionAddToCampaign      ActionType = "add_to_campaign"
	ActionRemoveFromCampaign ActionType = "remove_from_campaign"
	ActionMovePipelineStage  ActionType = "move_pipeline_stage"
	ActionAssignUser         ActionType = "assign_user"
	ActionCreateTask         ActionType = "create_task"
	ActionAddNote            ActionType = "add_note"
)

// Timing actions.
const (
	ActionWaitTime      ActionType = "wait_time"
	ActionWaitUntilDate ActionType = "wait_until_date"
	ActionWaitForEvent  ActionType = "wait_for_event"
)

// Internal and membership actions.
const (
	ActionSendNotification   ActionType = "send_notification"
	ActionCreateOpportunity  ActionType = "create_opportunity"
	ActionWebhookCall        ActionType = "webhook_call"
	ActionCustomCode         ActionType = "custom_code"
	ActionGrantCourseAccess  ActionType = "grant_course_access"
	ActionRevokeCourseAccess ActionType = "revoke_course_access"
)

// CapabilityGroup classifies action types by the collaborator they need.
type CapabilityGroup string

const (
	GroupCommunication CapabilityGroup = "communication"
	GroupCRM           CapabilityGroup = "crm"
	GroupTiming        CapabilityGroup = "timing"
	GroupInternal      CapabilityGroup = "internal"
	GroupMembership    CapabilityGroup = "membership"
)

var actionGroups = map[ActionType]CapabilityGroup{
	ActionSendEmail:          GroupCommunication,
	ActionSendSMS:            GroupCommunication,
	ActionSendVoicemail:      GroupCommunication,
	ActionSendMessenger:      GroupCommunication,
	ActionMakeCall:           GroupCommunication,
	ActionCreateContact:      GroupCRM,
	ActionUpdateContact:      GroupCRM,
	ActionAddTag:             GroupCRM,
	ActionRemoveTag:          GroupCRM,
	ActionAddToCampaign:      GroupCRM,
	ActionRemoveFromCampaign: GroupCRM,
	ActionMovePipelineStage:  GroupCRM,
	ActionAssignUser:         GroupCRM,
	ActionCreateTask:         GroupCRM,
	ActionAddNote:            GroupCRM,
	ActionWaitTime:           GroupTiming,
	ActionWaitUntilDate:      GroupTiming,
	ActionWaitForEvent:       GroupTiming,
	ActionSendNotification:   GroupInternal,
	ActionCreateOpportunity:  GroupInternal,
	ActionWebhookCall:        GroupInternal,
	ActionCustomCode:         GroupInternal,
	ActionGrantCourseAccess:  GroupMembership,
	ActionRevokeCourseAccess: GroupMembership,
}

// Group returns the capability group of the action type and whether the type is known.
func (t ActionType) Group() (CapabilityGroup, bool) {
	group, ok := actionGroups[t]

	return group, ok
}

// ActionTypes lists every known action type.
func ActionTypes() []ActionType {
	types := make([]ActionType, 0, len(actionGroups))
	for actionType := range actionGroups {
		types = append(types, actionType)
	}

	return types
}

// ActionSpec is one configured step of a workflow definition.
type ActionSpec struct {
	ID       string         `json:"id"       yaml:"id"       validate:"required"`
	Type     ActionType     `json:"type"     yaml:"type"     validate:"required"`
	Config   map[string]any `json:"config"   yaml:"config"`
	Position int            `json:"position" yaml:"position" validate:"gte=0"`
	Enabled  *bool          `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// IsEnabled reports whether the step runs. Steps are enabled unless explicitly disabled.
func (a *ActionSpec) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}
