package web

import "github.com/dukex/drip/pkg/models"

// EnrollRequest is the body of POST /enrollments.
type EnrollRequest struct {
	WorkflowID string         `json:"workflow_id" validate:"required"`
	TenantID   string         `json:"tenant_id"   validate:"required"`
	ContactID  string         `json:"contact_id"  validate:"required"`
	Context    map[string]any `json:"context"`
}

// CancelRequest is the optional body of POST /enrollments/:id/cancel.
type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// EnrollmentResponse is an enrollment with its audit trail.
type EnrollmentResponse struct {
	Enrollment   *models.Enrollment              `json:"enrollment"`
	Records      []*models.ActionExecutionRecord `json:"records"`
	Achievements []*models.GoalAchievement       `json:"achievements"`
}

// AttemptsResponse is a delivery with its attempt log.
type AttemptsResponse struct {
	Delivery *models.WebhookDelivery          `json:"delivery"`
	Attempts []*models.WebhookDeliveryAttempt `json:"attempts"`
}
