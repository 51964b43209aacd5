package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/drip/pkg/events"
	"github.com/dukex/drip/pkg/models"
	"github.com/dukex/drip/pkg/persistence"
)

// Waker is notified when the router moved enrollments back to running.
type Waker interface {
	Nudge()
}

// RouteResult summarizes the effect of one inbound event.
type RouteResult struct {
	Achievements []*models.GoalAchievement `json:"achievements"`
	Woken        []string                  `json:"woken"`
}

// EventRouter feeds inbound domain events to the goal evaluator and wakes
// enrollments suspended on the event's type. Goals are evaluated first so an
// enrollment that exits is never woken.
type EventRouter struct {
	ledger      *Ledger
	enrollments persistence.EnrollmentRepository
	goals       *GoalEvaluator
	waker       Waker
	logger      *slog.Logger
}

func NewEventRouter(ledger *Ledger, p persistence.Persistence, goals *GoalEvaluator, waker Waker, logger *slog.Logger) *EventRouter {
	return &EventRouter{
		ledger:      ledger,
		enrollments: p.EnrollmentRepository(),
		goals:       goals,
		waker:       waker,
		logger:      logger.With("module", "event_router"),
	}
}

func (r *EventRouter) Route(ctx context.Context, event *models.DomainEvent) (*RouteResult, error) {
	err := events.ValidateDomainEvent(event, r.ledger.Now())
	if err != nil {
		return nil, err
	}

	logger := r.logger.With("event_id", event.ID, "event_type", event.Type, "contact_id", event.ContactID)

	achievements, err := r.goals.Evaluate(ctx, event)
	if err != nil {
		return nil, err
	}

	waiting, err := r.enrollments.WaitingForEvent(ctx, event.TenantID, event.ContactID, event.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments waiting for %s: %w", event.Type, err)
	}

	result := &RouteResult{Achievements: achievements, Woken: make([]string, 0, len(waiting))}

	for _, enrollment := range waiting {
		_, err := r.ledger.Transition(ctx, enrollment, "event "+event.Type+" arrived", func(next *models.Enrollment) {
			next.State = models.RunStateRunning
			next.WakeAt = nil
			next.WaitEventType = ""
			next.Context = withEvent(next.Context, event)
		})
		if persistence.IsVersionConflict(err) {
			logger.DebugContext(ctx, "Waiting enrollment moved concurrently", "enrollment_id", enrollment.ID)

			continue
		}

		if err != nil {
			return result, fmt.Errorf("failed to wake enrollment %s: %w", enrollment.ID, err)
		}

		result.Woken = append(result.Woken, enrollment.ID)
	}

	if len(result.Woken) > 0 && r.waker != nil {
		r.waker.Nudge()
	}

	if len(result.Achievements) > 0 || len(result.Woken) > 0 {
		logger.InfoContext(ctx, "Event routed", "achievements", len(result.Achievements), "woken", len(result.Woken))
	}

	return result, nil
}

// HandleDomainEvent adapts Route to an event bus handler.
func (r *EventRouter) HandleDomainEvent(ctx context.Context, event any) error {
	received, ok := event.(*events.DomainEventReceived)
	if !ok {
		r.logger.ErrorContext(ctx, "Invalid event type for DomainEventReceived")

		return nil
	}

	_, err := r.Route(ctx, &received.Event)
	if errors.Is(err, events.ErrInvalidEventData) {
		r.logger.WarnContext(ctx, "Dropping invalid domain event", "error", err)

		return nil
	}

	return err
}

func withEvent(context map[string]any, event *models.DomainEvent) map[string]any {
	if context == nil {
		context = map[string]any{}
	}

	context["event"] = map[string]any{
		"id":          event.ID,
		"type":        event.Type,
		"payload":     event.Payload,
		"occurred_at": event.OccurredAt,
	}

	return context
}
