package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/drip/pkg/definitions"
	"github.com/dukex/drip/pkg/models"
	"github.com/dukex/drip/pkg/otelhelper"
	"github.com/dukex/drip/pkg/persistence"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// GoalEvaluator matches inbound events against the active goals of a
// contact's active enrollments. The achievement insert is the concurrency
// guard: only the writer whose insert succeeds reports the achievement.
type GoalEvaluator struct {
	ledger       *Ledger
	enrollments  persistence.EnrollmentRepository
	achievements persistence.AchievementRepository
	definitions  definitions.Store
	tracer       trace.Tracer
	logger       *slog.Logger
}

func NewGoalEvaluator(ledger *Ledger, p persistence.Persistence, store definitions.Store, logger *slog.Logger) *GoalEvaluator {
	return &GoalEvaluator{
		ledger:       ledger,
		enrollments:  p.EnrollmentRepository(),
		achievements: p.AchievementRepository(),
		definitions:  store,
		tracer:       otelhelper.Tracer("drip/workflow"),
		logger:       logger.With("module", "goal_evaluator"),
	}
}

// Evaluate returns the achievements newly recorded for event. Events that
// match nothing have no effect.
func (g *GoalEvaluator) Evaluate(ctx context.Context, event *models.DomainEvent) ([]*models.GoalAchievement, error) {
	ctx, span := otelhelper.StartSpan(ctx, g.tracer, "workflow.evaluate_goals",
		attribute.String(otelhelper.EventIDKey, event.ID),
		attribute.String(otelhelper.EventTypeKey, event.Type),
		attribute.String(otelhelper.ContactIDKey, event.ContactID))
	defer span.End()

	enrollments, err := g.enrollments.ActiveByContact(ctx, event.TenantID, event.ContactID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to list enrollments of %s: %w", event.ContactID, err)
	}

	achievements := make([]*models.GoalAchievement, 0)
	goalsByWorkflow := map[string][]*models.GoalDefinition{}

	for _, enrollment := range enrollments {
		goals, ok := goalsByWorkflow[enrollment.WorkflowID]
		if !ok {
			goals, err = g.definitions.ActiveGoals(ctx, enrollment.WorkflowID)
			if err != nil {
				otelhelper.SetError(span, err)

				return achievements, fmt.Errorf("failed to load goals of %s: %w", enrollment.WorkflowID, err)
			}

			goalsByWorkflow[enrollment.WorkflowID] = goals
		}

		for _, goal := range goals {
			if !Matches(goal, event) {
				continue
			}

			achievement, err := g.achieve(ctx, enrollment, goal, event)
			if err != nil {
				otelhelper.SetError(span, err)

				return achievements, err
			}

			if achievement != nil {
				achievements = append(achievements, achievement)
			}

			break
		}
	}

	return achievements, nil
}

// achieve records the (enrollment, goal) achievement and exits the enrollment.
// A duplicate insert still drives the exit so a crash between the two writes
// is repaired by the next delivery of the event. An enrollment that became
// terminal after it was listed records nothing.
func (g *GoalEvaluator) achieve(
	ctx context.Context,
	enrollment *models.Enrollment,
	goal *models.GoalDefinition,
	event *models.DomainEvent,
) (*models.GoalAchievement, error) {
	logger := g.logger.With(
		"enrollment_id", enrollment.ID,
		"workflow_id", enrollment.WorkflowID,
		"contact_id", enrollment.ContactID,
		"goal_id", goal.ID,
	)

	achievement := &models.GoalAchievement{
		ID:           uuid.New().String(),
		WorkflowID:   enrollment.WorkflowID,
		EnrollmentID: enrollment.ID,
		ContactID:    enrollment.ContactID,
		GoalID:       goal.ID,
		AchievedAt:   g.ledger.Now(),
		Event:        event,
	}

	err := g.achievements.Insert(ctx, achievement)
	if persistence.IsEnrollmentInactive(err) {
		logger.DebugContext(ctx, "Enrollment no longer active, goal ignored")

		return nil, nil
	} else if persistence.IsDuplicateAchievement(err) {
		logger.DebugContext(ctx, "Goal already achieved")

		achievement = nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to record achievement: %w", err)
	} else {
		logger.InfoContext(ctx, "Goal achieved", "event_id", event.ID)
	}

	_, err = g.ledger.finish(ctx, enrollment.ID, models.RunStateExitedByGoal, "goal "+goal.ID+" achieved")
	if err != nil && !errors.Is(err, ErrEnrollmentTerminal) {
		return achievement, fmt.Errorf("failed to exit enrollment %s: %w", enrollment.ID, err)
	}

	return achievement, nil
}
