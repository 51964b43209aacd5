// Package events defines the wire events the engine consumes and emits.
package events

import (
	"time"

	"github.com/dukex/drip/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Kafka topics.
const (
	DomainEventsTopic = "drip.domain-events" // Inbound contact events
	EnrollmentsTopic  = "drip.enrollments"   // Enrollment state-change notifications
	DeliveriesTopic   = "drip.deliveries"    // Webhook delivery outcomes
)

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	DomainEventReceivedEvent      EventType = "domain_event.received"
	EnrollmentStateChangedEvent   EventType = "enrollment.state_changed"
	WebhookDeliveryAbandonedEvent EventType = "webhook.delivery_abandoned"
	WebhookDeliveryDeliveredEvent EventType = "webhook.delivery_delivered"
)

// TopicFor returns the topic events of the given type are published to.
func TopicFor(eventType EventType) string {
	switch eventType {
	case DomainEventReceivedEvent:
		return DomainEventsTopic
	case WebhookDeliveryAbandonedEvent, WebhookDeliveryDeliveredEvent:
		return DeliveriesTopic
	default:
		return EnrollmentsTopic
	}
}

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	TenantID  string         `json:"tenant_id"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, tenantID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		TenantID:  tenantID,
		Metadata:  make(map[string]any),
	}
}

// DomainEventReceived carries an inbound contact event to the event router.
type DomainEventReceived struct {
	BaseEvent

	Event models.DomainEvent `json:"event"`
}

func (DomainEventReceived) GetType() EventType {
	return DomainEventReceivedEvent
}

// EnrollmentStateChanged is emitted after every applied enrollment transition.
type EnrollmentStateChanged struct {
	BaseEvent

	EnrollmentID string          `json:"enrollment_id"`
	WorkflowID   string          `json:"workflow_id"`
	ContactID    string          `json:"contact_id"`
	From         models.RunState `json:"from"`
	To           models.RunState `json:"to"`
	Cursor       int             `json:"cursor"`
	Version      int64           `json:"version"`
	Reason       string          `json:"reason,omitempty"`
}

func (EnrollmentStateChanged) GetType() EventType {
	return EnrollmentStateChangedEvent
}

// WebhookDeliveryAbandoned surfaces a delivery that exhausted its attempts
// so an operator can redeliver it.
type WebhookDeliveryAbandoned struct {
	BaseEvent

	DeliveryID   string `json:"delivery_id"`
	WebhookID    string `json:"webhook_id"`
	EnrollmentID string `json:"enrollment_id,omitempty"`
	Attempts     int    `json:"attempts"`
	LastError    string `json:"last_error,omitempty"`
}

func (WebhookDeliveryAbandoned) GetType() EventType {
	return WebhookDeliveryAbandonedEvent
}

type WebhookDeliveryDelivered struct {
	BaseEvent

	DeliveryID     string `json:"delivery_id"`
	WebhookID      string `json:"webhook_id"`
	AttemptNumber  int    `json:"attempt_number"`
	ResponseStatus int    `json:"response_status"`
}

func (WebhookDeliveryDelivered) GetType() EventType {
	return WebhookDeliveryDeliveredEvent
}
