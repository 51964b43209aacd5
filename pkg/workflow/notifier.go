package workflow

import (
	"context"
	"log/slog"

	"github.com/dukex/drip/pkg/eventbus"
	"github.com/dukex/drip/pkg/events"
	"github.com/dukex/drip/pkg/models"
)

// Notifier observes applied enrollment transitions.
type Notifier interface {
	StateChanged(ctx context.Context, before, after *models.Enrollment, reason string)
}

// BusNotifier publishes enrollment.state_changed keyed by enrollment id so
// consumers see the transitions of one enrollment in order.
type BusNotifier struct {
	publisher eventbus.EventPublisher
	workerID  string
	logger    *slog.Logger
}

func NewBusNotifier(publisher eventbus.EventPublisher, workerID string, logger *slog.Logger) *BusNotifier {
	return &BusNotifier{
		publisher: publisher,
		workerID:  workerID,
		logger:    logger.With("module", "enrollment_notifier"),
	}
}

// StateChanged publishes the change. A failed publish is logged; the
// transition is already durable.
func (n *BusNotifier) StateChanged(ctx context.Context, before, after *models.Enrollment, reason string) {
	event := events.EnrollmentStateChanged{
		BaseEvent:    events.NewBaseEvent(events.EnrollmentStateChangedEvent, after.TenantID),
		EnrollmentID: after.ID,
		WorkflowID:   after.WorkflowID,
		ContactID:    after.ContactID,
		From:         before.State,
		To:           after.State,
		Cursor:       after.Cursor,
		Version:      after.Version,
		Reason:       reason,
	}
	event.WorkerID = n.workerID

	err := n.publisher.Publish(ctx, after.ID, event)
	if err != nil {
		n.logger.ErrorContext(ctx, "Failed to publish enrollment state change",
			"enrollment_id", after.ID,
			"to", after.State,
			"error", err)
	}
}

type nopNotifier struct{}

func (nopNotifier) StateChanged(context.Context, *models.Enrollment, *models.Enrollment, string) {}

// NopNotifier discards notifications.
func NopNotifier() Notifier {
	return nopNotifier{}
}
