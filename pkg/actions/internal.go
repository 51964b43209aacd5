package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/dukex/drip/pkg/models"
	"github.com/dukex/drip/pkg/protocol"
)

type SendNotification struct {
	Message string `json:"message"           validate:"required"`
	UserID  string `json:"user_id,omitempty"`
	Title   string `json:"title,omitempty"`
}

func (*SendNotification) Type() models.ActionType { return models.ActionSendNotification }

func (*SendNotification) schema() map[string]any {
	return object([]string{"message"}, map[string]any{
		"message": text(),
		"user_id": optionalText(),
		"title":   optionalText(),
	})
}

func (a *SendNotification) Execute(ctx context.Context, env Env) (Outcome, error) {
	if env.Collaborators.Internal == nil {
		return Outcome{}, missing(models.GroupInternal)
	}

	return completed(env.Collaborators.Internal.SendNotification(ctx, env.Call))
}

type CreateOpportunity struct {
	Name       string   `json:"name"            validate:"required"`
	PipelineID string   `json:"pipeline_id"     validate:"required"`
	StageID    string   `json:"stage_id"        validate:"required"`
	Value      *float64 `json:"value,omitempty" validate:"omitempty,gte=0"`
}

func (*CreateOpportunity) Type() models.ActionType { return models.ActionCreateOpportunity }

func (*CreateOpportunity) schema() map[string]any {
	return object([]string{"name", "pipeline_id", "stage_id"}, map[string]any{
		"name":        text(),
		"pipeline_id": text(),
		"stage_id":    text(),
		"value":       number(),
	})
}

func (a *CreateOpportunity) Execute(ctx context.Context, env Env) (Outcome, error) {
	if env.Collaborators.Internal == nil {
		return Outcome{}, missing(models.GroupInternal)
	}

	return completed(env.Collaborators.Internal.CreateOpportunity(ctx, env.Call))
}

type CustomCode struct {
	Code     string `json:"code"               validate:"required"`
	Language string `json:"language,omitempty" validate:"omitempty,oneof=javascript python"`
}

func (*CustomCode) Type() models.ActionType { return models.ActionCustomCode }

func (*CustomCode) schema() map[string]any {
	return object([]string{"code"}, map[string]any{
		"code":     text(),
		"language": enum("javascript", "python"),
	})
}

func (a *CustomCode) Execute(ctx context.Context, env Env) (Outcome, error) {
	if env.Collaborators.Internal == nil {
		return Outcome{}, missing(models.GroupInternal)
	}

	return completed(env.Collaborators.Internal.RunCustomCode(ctx, env.Call))
}

// WebhookCall enqueues an outbound delivery. The action succeeds once the
// delivery is durably scheduled; the dispatcher owns every attempt after that.
type WebhookCall struct {
	URL       string            `json:"url"                  validate:"required,url"`
	Method    string            `json:"method,omitempty"     validate:"omitempty,oneof=POST PUT PATCH"`
	Headers   map[string]string `json:"headers,omitempty"`
	Secret    string            `json:"secret,omitempty"`
	WebhookID string            `json:"webhook_id,omitempty"`
	Payload   map[string]any    `json:"payload,omitempty"`
}

func (*WebhookCall) Type() models.ActionType { return models.ActionWebhookCall }

func (*WebhookCall) schema() map[string]any {
	return object([]string{"url"}, map[string]any{
		"url":        text(),
		"method":     enum("POST", "PUT", "PATCH"),
		"headers":    stringMap(),
		"secret":     optionalText(),
		"webhook_id": optionalText(),
		"payload":    map[string]any{"type": "object"},
	})
}

func (a *WebhookCall) check() error {
	target, err := url.Parse(a.URL)
	if err != nil {
		return invalid(models.ActionWebhookCall, "url", err)
	}

	if !strings.EqualFold(target.Scheme, "https") {
		return protocol.NewValidationError(models.ActionWebhookCall, "url", "must use https")
	}

	return nil
}

func (a *WebhookCall) Execute(ctx context.Context, env Env) (Outcome, error) {
	if env.Collaborators.Webhooks == nil {
		return Outcome{}, missing(models.GroupInternal)
	}

	payload := a.Payload
	if payload == nil {
		payload = map[string]any{
			"event":         "workflow.webhook_call",
			"workflow_id":   env.Call.WorkflowID,
			"enrollment_id": env.Call.EnrollmentID,
			"contact_id":    env.Call.ContactID,
			"action_id":     env.Call.ActionID,
			"occurred_at":   env.Now.UTC(),
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Outcome{}, protocol.Terminal(fmt.Errorf("failed to marshal webhook payload: %w", err))
	}

	webhookID := a.WebhookID
	if webhookID == "" {
		webhookID = env.Call.ActionID
	}

	delivery, err := env.Collaborators.Webhooks.Enqueue(ctx, models.Webhook{
		ID:       webhookID,
		TenantID: env.Call.TenantID,
		URL:      a.URL,
		Secret:   a.Secret,
		Method:   a.Method,
		Headers:  a.Headers,
	}, body, env.Call.EnrollmentID)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{Output: map[string]any{"delivery_id": delivery.ID}}, nil
}

type GrantCourseAccess struct {
	CourseID string `json:"course_id" validate:"required"`
}

func (*GrantCourseAccess) Type() models.ActionType { return models.ActionGrantCourseAccess }

func (*GrantCourseAccess) schema() map[string]any {
	return object([]string{"course_id"}, map[string]any{"course_id": text()})
}

func (a *GrantCourseAccess) Execute(ctx context.Context, env Env) (Outcome, error) {
	if env.Collaborators.Membership == nil {
		return Outcome{}, missing(models.GroupMembership)
	}

	return completed(env.Collaborators.Membership.GrantCourseAccess(ctx, env.Call))
}

type RevokeCourseAccess struct {
	CourseID string `json:"course_id" validate:"required"`
}

func (*RevokeCourseAccess) Type() models.ActionType { return models.ActionRevokeCourseAccess }

func (*RevokeCourseAccess) schema() map[string]any {
	return object([]string{"course_id"}, map[string]any{"course_id": text()})
}

func (a *RevokeCourseAccess) Execute(ctx context.Context, env Env) (Outcome, error) {
	if env.Collaborators.Membership == nil {
		return Outcome{}, missing(models.GroupMembership)
	}

	return completed(env.Collaborators.Membership.RevokeCourseAccess(ctx, env.Call))
}
