package workflow

import (
	"errors"
	"testing"

	"github.com/dukex/drip/pkg/events"
	"github.com/dukex/drip/pkg/mocks"
	"github.com/dukex/drip/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestBusNotifier_PublishesKeyedByEnrollment(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "enr-1", mock.MatchedBy(func(event events.EnrollmentStateChanged) bool {
		return event.From == models.RunStateRunning &&
			event.To == models.RunStateWaiting &&
			event.Cursor == 2 &&
			event.Version == 4 &&
			event.Reason == "wait_time" &&
			event.WorkerID == "worker-1" &&
			event.TenantID == "tenant-1"
	})).Return(nil).Once()

	notifier := NewBusNotifier(bus, "worker-1", testLogger())
	notifier.StateChanged(t.Context(),
		&models.Enrollment{ID: "enr-1", TenantID: "tenant-1", State: models.RunStateRunning, Cursor: 1, Version: 3},
		&models.Enrollment{ID: "enr-1", TenantID: "tenant-1", State: models.RunStateWaiting, Cursor: 2, Version: 4},
		"wait_time")

	bus.AssertExpectations(t)
}

func TestBusNotifier_PublishFailureIsLogged(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	notifier := NewBusNotifier(bus, "worker-1", testLogger())

	assert.NotPanics(t, func() {
		notifier.StateChanged(t.Context(), &models.Enrollment{ID: "enr-1"}, &models.Enrollment{ID: "enr-1"}, "claimed")
	})
	bus.AssertNumberOfCalls(t, "Publish", 1)
}

func TestLedger_NotifiesTransitions(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	h := newHarness(t, definitionOf())
	ledger := NewLedger(h.persistence, h.store, NewBusNotifier(bus, "worker-1", testLogger()), testLogger())

	enrollment, err := ledger.Enroll(t.Context(), EnrollRequest{WorkflowID: "wf-1", TenantID: "tenant-1", ContactID: "c-1"})
	assert.NoError(t, err)

	_, err = ledger.Cancel(t.Context(), enrollment.ID, "operator request")
	assert.NoError(t, err)

	bus.AssertCalled(t, "Publish", mock.Anything, enrollment.ID, mock.MatchedBy(func(event events.EnrollmentStateChanged) bool {
		return event.To == models.RunStateCancelled && event.Reason == "operator request"
	}))
}
