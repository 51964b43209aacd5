// Package protocol defines the contracts between the engine and the external
// collaborators that apply side effects on its behalf.
package protocol

import (
	"context"

	"github.com/dukex/drip/pkg/models"
)

// Call is one side-effect request. Config has already been validated and had
// its template placeholders substituted.
type Call struct {
	TenantID       string
	ContactID      string
	EnrollmentID   string
	WorkflowID     string
	ActionID       string
	ActionType     models.ActionType
	Attempt        int
	IdempotencyKey string
	Config         map[string]any
}

// Result is what a collaborator reports back on success.
type Result struct {
	ExternalID string         `json:"external_id,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
}

// Communicator delivers messages to a contact.
type Communicator interface {
	SendEmail(ctx context.Context, call Call) (*Result, error)
	SendSMS(ctx context.Context, call Call) (*Result, error)
	SendVoicemail(ctx context.Context, call Call) (*Result, error)
	SendMessenger(ctx context.Context, call Call) (*Result, error)
	MakeCall(ctx context.Context, call Call) (*Result, error)
}

// CRM mutates contact records.
type CRM interface {
	CreateContact(ctx context.Context, call Call) (*Result, error)
	UpdateContact(ctx context.Context, call Call) (*Result, error)
	AddTag(ctx context.Context, call Call) (*Result, error)
	RemoveTag(ctx context.Context, call Call) (*Result, error)
	AddToCampaign(ctx context.Context, call Call) (*Result, error)
	RemoveFromCampaign(ctx context.Context, call Call) (*Result, error)
	MovePipelineStage(ctx context.Context, call Call) (*Result, error)
	AssignUser(ctx context.Context, call Call) (*Result, error)
	CreateTask(ctx context.Context, call Call) (*Result, error)
	AddNote(ctx context.Context, call Call) (*Result, error)
}

// Internal covers account-internal side effects.
type Internal interface {
	SendNotification(ctx context.Context, call Call) (*Result, error)
	CreateOpportunity(ctx context.Context, call Call) (*Result, error)
	RunCustomCode(ctx context.Context, call Call) (*Result, error)
}

// Membership grants and revokes course access.
type Membership interface {
	GrantCourseAccess(ctx context.Context, call Call) (*Result, error)
	RevokeCourseAccess(ctx context.Context, call Call) (*Result, error)
}

// WebhookEnqueuer hands a webhook_call action to the delivery dispatcher.
// It returns once the delivery is durably scheduled.
type WebhookEnqueuer interface {
	Enqueue(ctx context.Context, webhook models.Webhook, payload []byte, enrollmentID string) (*models.WebhookDelivery, error)
}

// Collaborators groups every side-effect dependency of the executor.
type Collaborators struct {
	Communicator Communicator
	CRM          CRM
	Internal     Internal
	Membership   Membership
	Webhooks     WebhookEnqueuer
}
