package eventbus

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/dukex/drip/pkg/events"
	"github.com/dukex/drip/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *WatermillEventBus {
	t.Helper()

	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 10}, watermill.NopLogger{})
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	bus := NewWatermillEventBus(pubSub, pubSub, logger)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_RoutesByType(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan *events.EnrollmentStateChanged, 1)

	require.NoError(t, bus.Handle(events.EnrollmentStateChangedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.EnrollmentStateChanged)

		return nil
	}))

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	published := events.EnrollmentStateChanged{
		BaseEvent:    events.NewBaseEvent(events.EnrollmentStateChangedEvent, "tenant-1"),
		EnrollmentID: "enr-1",
		From:         models.RunStateRunning,
		To:           models.RunStateSucceeded,
		Cursor:       3,
		Version:      5,
	}
	require.NoError(t, bus.Publish(ctx, "enr-1", published))

	select {
	case event := <-received:
		assert.Equal(t, "enr-1", event.EnrollmentID)
		assert.Equal(t, models.RunStateSucceeded, event.To)
		assert.Equal(t, int64(5), event.Version)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestWatermillEventBus_DomainEvents(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan models.DomainEvent, 1)

	require.NoError(t, bus.Handle(events.DomainEventReceivedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.DomainEventReceived).Event

		return nil
	}))

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "contact-1", events.DomainEventReceived{
		BaseEvent: events.NewBaseEvent(events.DomainEventReceivedEvent, "tenant-1"),
		Event: models.DomainEvent{
			Type:      models.EventTagAdded,
			TenantID:  "tenant-1",
			ContactID: "contact-1",
			Payload:   map[string]any{"tag_id": "vip"},
		},
	}))

	select {
	case event := <-received:
		assert.Equal(t, "vip", event.String("tag_id"))
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}
