package workflow

import (
	"github.com/dukex/drip/pkg/models"
)

// Matches reports whether event satisfies the goal's typed predicate. The
// event must belong to the goal's tenant and carry the event type the goal
// type listens to.
func Matches(goal *models.GoalDefinition, event *models.DomainEvent) bool {
	if goal.TenantID != event.TenantID || !goal.Type.ListensTo(event.Type) {
		return false
	}

	criteria := goal.Criteria

	switch goal.Type {
	case models.GoalTagAdded:
		if criteria.TagID != "" {
			return event.String("tag_id") == criteria.TagID
		}

		return criteria.TagName != "" && event.String("tag_name") == criteria.TagName

	case models.GoalPurchaseMade:
		if criteria.AnyPurchase {
			return true
		}

		if criteria.MinAmount == nil {
			return false
		}

		amount, ok := event.Float("amount")

		return ok && amount >= *criteria.MinAmount

	case models.GoalAppointmentBooked:
		if criteria.AnyAppointment {
			return true
		}

		return criteria.CalendarID != "" && event.String("calendar_id") == criteria.CalendarID

	case models.GoalFormSubmitted:
		return criteria.FormID != "" && event.String("form_id") == criteria.FormID

	case models.GoalPipelineStageReached:
		return criteria.PipelineID != "" && criteria.StageID != "" &&
			event.String("pipeline_id") == criteria.PipelineID &&
			event.String("stage_id") == criteria.StageID

	default:
		return false
	}
}
