package actions

import (
	"context"

	"github.com/dukex/drip/pkg/models"
)

type CreateContact struct {
	Fields map[string]any `json:"fields" validate:"required"`
}

func (*CreateContact) Type() models.ActionType { return models.ActionCreateContact }

func (*CreateContact) schema() map[string]any {
	return object([]string{"fields"}, map[string]any{"fields": fields()})
}

func (a *CreateContact) Execute(ctx context.Context, env Env) (Outcome, error) {
	if env.Collaborators.CRM == nil {
		return Outcome{}, missing(models.GroupCRM)
	}

	return completed(env.Collaborators.CRM.CreateContact(ctx, env.Call))
}

type UpdateContact struct {
	Fields map[string]any `json:"fields" validate:"required"`
}

func (*UpdateContact) Type() models.ActionType { return models.ActionUpdateContact }

func (*UpdateContact) schema() map[string]any {
	return object([]string{"fields"}, map[string]any{"fields": fields()})
}

func (a *UpdateContact) Execute(ctx context.Context, env Env) (Outcome, error) {
	if env.Collaborators.CRM == nil {
		return Outcome{}, missing(models.GroupCRM)
	}

	return completed(env.Collaborators.CRM.UpdateContact(ctx, env.Call))
}

// tagRef identifies a tag by id or by name.
type tagRef struct {
	TagID   string `json:"tag_id,omitempty"   validate:"required_without=TagName"`
	TagName string `json:"tag_name,omitempty" validate:"required_without=TagID"`
}

func tagSchema() map[string]any {
	return oneOfRequired(object(nil, map[string]any{
		"tag_id":   text(),
		"tag_name": text(),
	}), "tag_id", "tag_name")
}

type AddTag struct {
	tagRef
}

func (*AddTag) Type() models.ActionType { return models.ActionAddTag }

func (*AddTag) schema() map[string]any { return tagSchema() }

func (a *AddTag) Execute(ctx context.Context, env Env) (Outcome, error) {
	if env.Collaborators.CRM == nil {
		return Outcome{}, missing(models.GroupCRM)
	}

	return completed(env.Collaborators.CRM.AddTag(ctx, env.Call))
}

type RemoveTag struct {
	tagRef
}

func (*RemoveTag) Type() models.ActionType { return models.ActionRemoveTag }

func (*RemoveTag) schema() map[string]any { return tagSchema() }

func (a *RemoveTag) Execute(ctx context.Context, env Env) (Outcome, error) {
	if env.Collaborators.CRM == nil {
		return Outcome{}, missing(models.GroupCRM)
	}

	return completed(env.Collaborators.CRM.RemoveTag(ctx, env.Call))
}

type AddToCampaign struct {
	CampaignID string `json:"campaign_id" validate:"required"`
}

func (*AddToCampaign) Type() models.ActionType { return models.ActionAddToCampaign }

func (*AddToCampaign) schema() map[string]any {
	return object([]string{"campaign_id"}, map[string]any{"campaign_id": text()})
}

func (a *AddToCampaign) Execute(ctx context.Context, env Env) (Outcome, error) {
	if env.Collaborators.CRM == nil {
		return Outcome{}, missing(models.GroupCRM)
	}

	return completed(env.Collaborators.CRM.AddToCampaign(ctx, env.Call))
}

type RemoveFromCampaign struct {
	CampaignID string `json:"campaign_id" validate:"required"`
}

func (*RemoveFromCampaign) Type() models.ActionType { return models.ActionRemoveFromCampaign }

func (*RemoveFromCampaign) schema() map[string]any {
	return object([]string{"campaign_id"}, map[string]any{"campaign_id": text()})
}

func (a *RemoveFromCampaign) Execute(ctx context.Context, env Env) (Outcome, error) {
	if env.Collaborators.CRM == nil {
		return Outcome{}, missing(models.GroupCRM)
	}

	return completed(env.Collaborators.CRM.RemoveFromCampaign(ctx, env.Call))
}

type MovePipelineStage struct {
	PipelineID string `json:"pipeline_id" validate:"required"`
	StageID    string `json:"stage_id"    validate:"required"`
}

func (*MovePipelineStage) Type() models.ActionType { return models.ActionMovePipelineStage }

func (*MovePipelineStage) schema() map[string]any {
	return object([]string{"pipeline_id", "stage_id"}, map[string]any{
		"pipeline_id": text(),
		"stage_id":    text(),
	})
}

func (a *MovePipelineStage) Execute(ctx context.Context, env Env) (Outcome, error) {
	if env.Collaborators.CRM == nil {
		return Outcome{}, missing(models.GroupCRM)
	}

	return completed(env.Collaborators.CRM.MovePipelineStage(ctx, env.Call))
}

type AssignUser struct {
	UserID string `json:"user_id" validate:"required"`
}

func (*AssignUser) Type() models.ActionType { return models.ActionAssignUser }

func (*AssignUser) schema() map[string]any {
	return object([]string{"user_id"}, map[string]any{"user_id": text()})
}

func (a *AssignUser) Execute(ctx context.Context, env Env) (Outcome, error) {
	if env.Collaborators.CRM == nil {
		return Outcome{}, missing(models.GroupCRM)
	}

	return completed(env.Collaborators.CRM.AssignUser(ctx, env.Call))
}

type CreateTask struct {
	Title          string `json:"title"                      validate:"required"`
	Description    string `json:"description,omitempty"`
	AssignedUserID string `json:"assigned_user_id,omitempty"`
	DueIn          string `json:"due_in,omitempty"`
}

func (*CreateTask) Type() models.ActionType { return models.ActionCreateTask }

func (*CreateTask) schema() map[string]any {
	return object([]string{"title"}, map[string]any{
		"title":            text(),
		"description":      optionalText(),
		"assigned_user_id": optionalText(),
		"due_in":           optionalText(),
	})
}

func (a *CreateTask) check() error {
	if a.DueIn == "" {
		return nil
	}

	_, err := parseDuration(a.DueIn)
	if err != nil {
		return invalid(models.ActionCreateTask, "due_in", err)
	}

	return nil
}

func (a *CreateTask) Execute(ctx context.Context, env Env) (Outcome, error) {
	if env.Collaborators.CRM == nil {
		return Outcome{}, missing(models.GroupCRM)
	}

	return completed(env.Collaborators.CRM.CreateTask(ctx, env.Call))
}

type AddNote struct {
	Body string `json:"body" validate:"required"`
}

func (*AddNote) Type() models.ActionType { return models.ActionAddNote }

func (*AddNote) schema() map[string]any {
	return object([]string{"body"}, map[string]any{"body": text()})
}

func (a *AddNote) Execute(ctx context.Context, env Env) (Outcome, error) {
	if env.Collaborators.CRM == nil {
		return Outcome{}, missing(models.GroupCRM)
	}

	return completed(env.Collaborators.CRM.AddNote(ctx, env.Call))
}
