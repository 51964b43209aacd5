package actions

import (
	"context"

	"github.com/dukex/drip/pkg/models"
)

type SendEmail struct {
	Subject    string `json:"subject"               validate:"required"`
	Body       string `json:"body"                  validate:"required"`
	From       string `json:"from,omitempty"        validate:"omitempty,email"`
	To         string `json:"to,omitempty"          validate:"omitempty,email"`
	TemplateID string `json:"template_id,omitempty"`
}

func (*SendEmail) Type() models.ActionType { return models.ActionSendEmail }

func (*SendEmail) schema() map[string]any {
	return object([]string{"subject", "body"}, map[string]any{
		"subject":     text(),
		"body":        text(),
		"from":        optionalText(),
		"to":          optionalText(),
		"template_id": optionalText(),
	})
}

func (a *SendEmail) Execute(ctx context.Context, env Env) (Outcome, error) {
	if env.Collaborators.Communicator == nil {
		return Outcome{}, missing(models.GroupCommunication)
	}

	return completed(env.Collaborators.Communicator.SendEmail(ctx, env.Call))
}

type SendSMS struct {
	FromNumber string `json:"from_number"         validate:"required,e164"`
	Message    string `json:"message"             validate:"required,max=1600"`
	ToNumber   string `json:"to_number,omitempty"`
}

func (*SendSMS) Type() models.ActionType { return models.ActionSendSMS }

func (*SendSMS) schema() map[string]any {
	return object([]string{"from_number", "message"}, map[string]any{
		"from_number": text(),
		"message":     text(),
		"to_number":   optionalText(),
	})
}

func (a *SendSMS) Execute(ctx context.Context, env Env) (Outcome, error) {
	if env.Collaborators.Communicator == nil {
		return Outcome{}, missing(models.GroupCommunication)
	}

	return completed(env.Collaborators.Communicator.SendSMS(ctx, env.Call))
}

type SendVoicemail struct {
	FromNumber string `json:"from_number" validate:"required,e164"`
	AudioURL   string `json:"audio_url"   validate:"required,url"`
}

func (*SendVoicemail) Type() models.ActionType { return models.ActionSendVoicemail }

func (*SendVoicemail) schema() map[string]any {
	return object([]string{"from_number", "audio_url"}, map[string]any{
		"from_number": text(),
		"audio_url":   text(),
	})
}

func (a *SendVoicemail) Execute(ctx context.Context, env Env) (Outcome, error) {
	if env.Collaborators.Communicator == nil {
		return Outcome{}, missing(models.GroupCommunication)
	}

	return completed(env.Collaborators.Communicator.SendVoicemail(ctx, env.Call))
}

type SendMessenger struct {
	Message string `json:"message"           validate:"required"`
	Channel string `json:"channel,omitempty" validate:"omitempty,oneof=facebook instagram whatsapp"`
}

func (*SendMessenger) Type() models.ActionType { return models.ActionSendMessenger }

func (*SendMessenger) schema() map[string]any {
	return object([]string{"message"}, map[string]any{
		"message": text(),
		"channel": enum("facebook", "instagram", "whatsapp"),
	})
}

func (a *SendMessenger) Execute(ctx context.Context, env Env) (Outcome, error) {
	if env.Collaborators.Communicator == nil {
		return Outcome{}, missing(models.GroupCommunication)
	}

	return completed(env.Collaborators.Communicator.SendMessenger(ctx, env.Call))
}

type MakeCall struct {
	FromNumber     string `json:"from_number"                validate:"required,e164"`
	AssignedUserID string `json:"assigned_user_id,omitempty"`
	Script         string `json:"script,omitempty"`
}

func (*MakeCall) Type() models.ActionType { return models.ActionMakeCall }

func (*MakeCall) schema() map[string]any {
	return object([]string{"from_number"}, map[string]any{
		"from_number":      text(),
		"assigned_user_id": optionalText(),
		"script":           optionalText(),
	})
}

func (a *MakeCall) Execute(ctx context.Context, env Env) (Outcome, error) {
	if env.Collaborators.Communicator == nil {
		return Outcome{}, missing(models.GroupCommunication)
	}

	return completed(env.Collaborators.Communicator.MakeCall(ctx, env.Call))
}
