package models

import (
	"strconv"
	"time"
)

// Domain event types the engine reacts to.
const (
	EventTagAdded             = "tag_added"
	EventPurchaseMade         = "purchase_made"
	EventAppointmentBooked    = "appointment_booked"
	EventFormSubmitted        = "form_submitted"
	EventPipelineStageChanged = "pipeline_stage_changed"
	EventPipelineStageReached = "pipeline_stage_reached"
)

// DomainEvent is an externally produced fact about a contact.
type DomainEvent struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"        validate:"required"`
	TenantID   string         `json:"tenant_id"   validate:"required"`
	ContactID  string         `json:"contact_id"  validate:"required"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// String returns a payload field rendered as a string, or "" when absent.
func (e *DomainEvent) String(key string) string {
	value, ok := e.Payload[key]
	if !ok || value == nil {
		return ""
	}

	switch typed := value.(type) {
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	default:
		return ""
	}
}

// Float returns a numeric payload field. Numeric strings are accepted.
func (e *DomainEvent) Float(key string) (float64, bool) {
	switch typed := e.Payload[key].(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case string:
		parsed, err := strconv.ParseFloat(typed, 64)

		return parsed, err == nil
	default:
		return 0, false
	}
}
