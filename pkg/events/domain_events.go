package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/drip/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrInvalidEventData is returned when an inbound event cannot be parsed or is invalid.
var ErrInvalidEventData = errors.New("invalid event data")

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeDomainEvent parses an inbound event body and fills the id and
// occurred_at fields when the producer left them empty.
func DecodeDomainEvent(body []byte, now time.Time) (*models.DomainEvent, error) {
	var event models.DomainEvent

	err := json.Unmarshal(body, &event)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEventData, err)
	}

	err = ValidateDomainEvent(&event, now)
	if err != nil {
		return nil, err
	}

	return &event, nil
}

// ValidateDomainEvent checks the required fields and applies defaults.
func ValidateDomainEvent(event *models.DomainEvent, now time.Time) error {
	err := validate.Struct(event)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEventData, err)
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = now.UTC()
	}

	if event.Payload == nil {
		event.Payload = map[string]any{}
	}

	return nil
}
