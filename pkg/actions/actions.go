// Package actions implements the closed set of workflow action types. Every
// type is a variant struct holding its decoded configuration; adding a type
// means adding a variant and a case to newVariant.
package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/dukex/drip/pkg/models"
	"github.com/dukex/drip/pkg/protocol"
	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
)

// Action is one decoded, validated action instance.
type Action interface {
	Type() models.ActionType
	Execute(ctx context.Context, env Env) (Outcome, error)

	schema() map[string]any
}

// Env carries what an action needs to apply its effect.
type Env struct {
	Now           time.Time
	Call          protocol.Call
	Collaborators protocol.Collaborators
}

// Outcome is the result of a successful execution. A waiting outcome suspends
// the enrollment until WakeAt or until an event of WaitEventType arrives.
type Outcome struct {
	Wait          bool
	WakeAt        *time.Time
	WaitEventType string
	Output        map[string]any
}

var validate = newValidator()

var errMissingCollaborator = errors.New("collaborator not configured")

// Decode validates config against the type's schema and returns the variant.
// Unknown types and invalid configs yield a *protocol.ValidationError.
func Decode(actionType models.ActionType, config map[string]any) (Action, error) {
	variant := newVariant(actionType)
	if variant == nil {
		return nil, protocol.NewValidationError(actionType, "type", "unknown action type")
	}

	if config == nil {
		config = map[string]any{}
	}

	err := validateSchema(actionType, variant.schema(), config)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(config)
	if err != nil {
		return nil, protocol.NewValidationError(actionType, "", err.Error())
	}

	err = json.Unmarshal(raw, variant)
	if err != nil {
		return nil, protocol.NewValidationError(actionType, "", err.Error())
	}

	err = validate.Struct(variant)
	if err != nil {
		return nil, structError(actionType, err)
	}

	if checker, ok := variant.(interface{ check() error }); ok {
		err := checker.check()
		if err != nil {
			return nil, err
		}
	}

	return variant, nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	return v
}

func newVariant(actionType models.ActionType) Action {
	switch actionType {
	case models.ActionSendEmail:
		return &SendEmail{}
	case models.ActionSendSMS:
		return &SendSMS{}
	case models.ActionSendVoicemail:
		return &SendVoicemail{}
	case models.ActionSendMessenger:
		return &SendMessenger{}
	case models.ActionMakeCall:
		return &MakeCall{}
	case models.ActionCreateContact:
		return &CreateContact{}
	case models.ActionUpdateContact:
		return &UpdateContact{}
	case models.ActionAddTag:
		return &AddTag{}
	case models.ActionRemoveTag:
		return &RemoveTag{}
	case models.ActionAddToCampaign:
		return &AddToCampaign{}
	case models.ActionRemoveFromCampaign:
		return &RemoveFromCampaign{}
	case models.ActionMovePipelineStage:
		return &MovePipelineStage{}
	case models.ActionAssignUser:
		return &AssignUser{}
	case models.ActionCreateTask:
		return &CreateTask{}
	case models.ActionAddNote:
		return &AddNote{}
	case models.ActionWaitTime:
		return &WaitTime{}
	case models.ActionWaitUntilDate:
		return &WaitUntilDate{}
	case models.ActionWaitForEvent:
		return &WaitForEvent{}
	case models.ActionSendNotification:
		return &SendNotification{}
	case models.ActionCreateOpportunity:
		return &CreateOpportunity{}
	case models.ActionWebhookCall:
		return &WebhookCall{}
	case models.ActionCustomCode:
		return &CustomCode{}
	case models.ActionGrantCourseAccess:
		return &GrantCourseAccess{}
	case models.ActionRevokeCourseAccess:
		return &RevokeCourseAccess{}
	default:
		return nil
	}
}

// Schema returns the JSON schema of a type's configuration.
func Schema(actionType models.ActionType) (map[string]any, bool) {
	variant := newVariant(actionType)
	if variant == nil {
		return nil, false
	}

	return variant.schema(), true
}

func validateSchema(actionType models.ActionType, schema map[string]any, config map[string]any) error {
	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return protocol.NewValidationError(actionType, "", err.Error())
	}

	if !result.Valid() {
		resultErrors := result.Errors()

		messages := make([]string, 0, len(resultErrors))
		for _, resultErr := range resultErrors {
			messages = append(messages, resultErr.String())
		}

		field := resultErrors[0].Field()
		if property, ok := resultErrors[0].Details()["property"].(string); ok {
			field = property
		}

		return protocol.NewValidationError(actionType, field, strings.Join(messages, "; "))
	}

	return nil
}

func structError(actionType models.ActionType, err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		fieldErr := validationErrors[0]

		return protocol.NewValidationError(actionType, fieldErr.Field(), fmt.Sprintf("failed on %q", fieldErr.Tag()))
	}

	return protocol.NewValidationError(actionType, "", err.Error())
}

func completed(result *protocol.Result, err error) (Outcome, error) {
	if err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{Output: map[string]any{}}

	if result != nil {
		for key, value := range result.Output {
			outcome.Output[key] = value
		}

		if result.ExternalID != "" {
			outcome.Output["external_id"] = result.ExternalID
		}
	}

	return outcome, nil
}

func missing(group models.CapabilityGroup) error {
	return protocol.Terminal(fmt.Errorf("%s %w", group, errMissingCollaborator))
}
