// Package logging implements every collaborator group by logging the call.
// It is meant for local runs where no side-effect service is available.
package logging

import (
	"context"
	"log/slog"

	"github.com/dukex/drip/pkg/models"
	"github.com/dukex/drip/pkg/protocol"
)

type Collaborator struct {
	logger *slog.Logger
	level  slog.Level
}

func New(logger *slog.Logger, level slog.Level) *Collaborator {
	return &Collaborator{
		logger: logger.With("module", "logging_collaborator"),
		level:  level,
	}
}

func (c *Collaborator) log(ctx context.Context, actionType models.ActionType, call protocol.Call) (*protocol.Result, error) {
	c.logger.Log(ctx, c.level, "side effect",
		"action_type", actionType,
		"action_id", call.ActionID,
		"enrollment_id", call.EnrollmentID,
		"contact_id", call.ContactID,
		"attempt", call.Attempt,
		"config", call.Config)

	return &protocol.Result{
		ExternalID: call.IdempotencyKey,
		Output:     map[string]any{"logged": true},
	}, nil
}

func (c *Collaborator) SendEmail(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return c.log(ctx, models.ActionSendEmail, call)
}

func (c *Collaborator) SendSMS(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return c.log(ctx, models.ActionSendSMS, call)
}

func (c *Collaborator) SendVoicemail(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return c.log(ctx, models.ActionSendVoicemail, call)
}

func (c *Collaborator) SendMessenger(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return c.log(ctx, models.ActionSendMessenger, call)
}

func (c *Collaborator) MakeCall(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return c.log(ctx, models.ActionMakeCall, call)
}

func (c *Collaborator) CreateContact(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return c.log(ctx, models.ActionCreateContact, call)
}

func (c *Collaborator) UpdateContact(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return c.log(ctx, models.ActionUpdateContact, call)
}

func (c *Collaborator) AddTag(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return c.log(ctx, models.ActionAddTag, call)
}

func (c *Collaborator) RemoveTag(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return c.log(ctx, models.ActionRemoveTag, call)
}

func (c *Collaborator) AddToCampaign(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return c.log(ctx, models.ActionAddToCampaign, call)
}

func (c *Collaborator) RemoveFromCampaign(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return c.log(ctx, models.ActionRemoveFromCampaign, call)
}

func (c *Collaborator) MovePipelineStage(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return c.log(ctx, models.ActionMovePipelineStage, call)
}

func (c *Collaborator) AssignUser(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return c.log(ctx, models.ActionAssignUser, call)
}

func (c *Collaborator) CreateTask(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return c.log(ctx, models.ActionCreateTask, call)
}

func (c *Collaborator) AddNote(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return c.log(ctx, models.ActionAddNote, call)
}

func (c *Collaborator) SendNotification(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return c.log(ctx, models.ActionSendNotification, call)
}

func (c *Collaborator) CreateOpportunity(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return c.log(ctx, models.ActionCreateOpportunity, call)
}

func (c *Collaborator) RunCustomCode(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return c.log(ctx, models.ActionCustomCode, call)
}

func (c *Collaborator) GrantCourseAccess(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return c.log(ctx, models.ActionGrantCourseAccess, call)
}

func (c *Collaborator) RevokeCourseAccess(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return c.log(ctx, models.ActionRevokeCourseAccess, call)
}
