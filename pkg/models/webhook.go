package models

import (
	"encoding/json"
	"time"
)

// Webhook is an outbound HTTPS endpoint the dispatcher delivers to.
type Webhook struct {
	ID       string            `json:"id"                validate:"required"`
	TenantID string            `json:"tenant_id"`
	URL      string            `json:"url"               validate:"required,url"`
	Secret   string            `json:"secret,omitempty"`
	Method   string            `json:"method,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// DeliveryStatus is the aggregate state of one delivery sequence.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusAbandoned DeliveryStatus = "abandoned"
)

// DeliveryOutcome is the state of one delivery attempt.
type DeliveryOutcome string

const (
	DeliveryOutcomePending   DeliveryOutcome = "pending"
	DeliveryOutcomeDelivered DeliveryOutcome = "delivered"
	DeliveryOutcomeFailed    DeliveryOutcome = "failed"
	DeliveryOutcomeAbandoned DeliveryOutcome = "abandoned"
)

// WebhookDelivery is one attempt sequence for a payload. Redelivery creates a
// new sequence pointing at the original through RedeliveryOf.
type WebhookDelivery struct {
	ID           string          `json:"id"`
	Webhook      Webhook         `json:"webhook"`
	Payload      json.RawMessage `json:"payload"`
	Status       DeliveryStatus  `json:"status"`
	MaxAttempts  int             `json:"max_attempts"`
	EnrollmentID string          `json:"enrollment_id,omitempty"`
	RedeliveryOf string          `json:"redelivery_of,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// WebhookDeliveryAttempt is the durable log entry of one delivery attempt.
type WebhookDeliveryAttempt struct {
	ID             string          `json:"id"`
	DeliveryID     string          `json:"delivery_id"`
	WebhookID      string          `json:"webhook_id"`
	Payload        json.RawMessage `json:"payload"`
	AttemptNumber  int             `json:"attempt_number"`
	ScheduledAt    time.Time       `json:"scheduled_at"`
	AttemptedAt    *time.Time      `json:"attempted_at,omitempty"`
	ResponseStatus *int            `json:"response_status,omitempty"`
	Outcome        DeliveryOutcome `json:"outcome"`
	Error          string          `json:"error,omitempty"`
	LeaseUntil     *time.Time      `json:"lease_until,omitempty"`
}

// IsDue reports whether a pending attempt may be claimed at now.
func (a *WebhookDeliveryAttempt) IsDue(now time.Time) bool {
	if a.Outcome != DeliveryOutcomePending || a.ScheduledAt.After(now) {
		return false
	}

	return a.LeaseUntil == nil || !a.LeaseUntil.After(now)
}
