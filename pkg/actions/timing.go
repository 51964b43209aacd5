package actions

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/drip/pkg/models"
	"github.com/dukex/drip/pkg/protocol"
	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// maxWait is the longest representable wait.
const maxWait = time.Duration(math.MaxInt64)

var units = map[string]time.Duration{
	"seconds": time.Second,
	"minutes": time.Minute,
	"hours":   time.Hour,
	"days":    24 * time.Hour,
	"weeks":   7 * 24 * time.Hour,
}

// WaitTime suspends the enrollment for a relative duration.
type WaitTime struct {
	Amount float64 `json:"amount" validate:"gt=0"`
	Unit   string  `json:"unit"   validate:"required,oneof=seconds minutes hours days weeks"`
}

func (*WaitTime) Type() models.ActionType { return models.ActionWaitTime }

func (*WaitTime) schema() map[string]any {
	return object([]string{"amount", "unit"}, map[string]any{
		"amount": map[string]any{"type": "number", "minimum": 0},
		"unit":   enum("seconds", "minutes", "hours", "days", "weeks"),
	})
}

func (a *WaitTime) check() error {
	if !(a.Amount*float64(units[a.Unit]) < float64(maxWait)) {
		return protocol.NewValidationError(models.ActionWaitTime, "amount", "wait is too long")
	}

	return nil
}

// Duration returns the configured wait.
func (a *WaitTime) Duration() time.Duration {
	return time.Duration(a.Amount * float64(units[a.Unit]))
}

func (a *WaitTime) Execute(_ context.Context, env Env) (Outcome, error) {
	wakeAt := env.Now.Add(a.Duration())

	return Outcome{
		Wait:   true,
		WakeAt: &wakeAt,
		Output: map[string]any{"wake_at": wakeAt.Format(time.RFC3339)},
	}, nil
}

// WaitUntilDate suspends the enrollment until an absolute instant, given either
// as a date or as the next match of a cron expression in a timezone.
type WaitUntilDate struct {
	Date           string `json:"date,omitempty"            validate:"required_without=CronExpression"`
	CronExpression string `json:"cron_expression,omitempty" validate:"required_without=Date"`
	Timezone       string `json:"timezone,omitempty"`

	location *time.Location
	date     time.Time
	schedule cron.Schedule
}

func (*WaitUntilDate) Type() models.ActionType { return models.ActionWaitUntilDate }

func (*WaitUntilDate) schema() map[string]any {
	return oneOfRequired(object(nil, map[string]any{
		"date":            text(),
		"cron_expression": text(),
		"timezone":        optionalText(),
	}), "date", "cron_expression")
}

func (a *WaitUntilDate) check() error {
	if a.Date != "" && a.CronExpression != "" {
		return protocol.NewValidationError(models.ActionWaitUntilDate, "date", "date and cron_expression are mutually exclusive")
	}

	a.location = time.UTC

	if a.Timezone != "" {
		location, err := time.LoadLocation(a.Timezone)
		if err != nil {
			return invalid(models.ActionWaitUntilDate, "timezone", err)
		}

		a.location = location
	}

	if a.Date != "" {
		date, err := parseDate(a.Date, a.location)
		if err != nil {
			return invalid(models.ActionWaitUntilDate, "date", err)
		}

		a.date = date

		return nil
	}

	schedule, err := cronParser.Parse(a.CronExpression)
	if err != nil {
		return invalid(models.ActionWaitUntilDate, "cron_expression", err)
	}

	a.schedule = schedule

	return nil
}

// WakeAt returns the instant to resume at. A date in the past resumes immediately.
func (a *WaitUntilDate) WakeAt(now time.Time) time.Time {
	if a.schedule != nil {
		return a.schedule.Next(now.In(a.location)).UTC()
	}

	if a.date.Before(now) {
		return now
	}

	return a.date.UTC()
}

func (a *WaitUntilDate) Execute(_ context.Context, env Env) (Outcome, error) {
	wakeAt := a.WakeAt(env.Now)

	return Outcome{
		Wait:   true,
		WakeAt: &wakeAt,
		Output: map[string]any{"wake_at": wakeAt.Format(time.RFC3339)},
	}, nil
}

// WaitForEvent suspends the enrollment until an event of EventType arrives for
// the contact, or until the optional timeout elapses.
type WaitForEvent struct {
	EventType string `json:"event_type"        validate:"required"`
	Timeout   string `json:"timeout,omitempty"`

	timeout time.Duration
}

func (*WaitForEvent) Type() models.ActionType { return models.ActionWaitForEvent }

func (*WaitForEvent) schema() map[string]any {
	return object([]string{"event_type"}, map[string]any{
		"event_type": text(),
		"timeout":    optionalText(),
	})
}

func (a *WaitForEvent) check() error {
	if a.Timeout == "" {
		return nil
	}

	timeout, err := parseDuration(a.Timeout)
	if err != nil {
		return invalid(models.ActionWaitForEvent, "timeout", err)
	}

	if timeout <= 0 {
		return protocol.NewValidationError(models.ActionWaitForEvent, "timeout", "must be positive")
	}

	a.timeout = timeout

	return nil
}

func (a *WaitForEvent) Execute(_ context.Context, env Env) (Outcome, error) {
	outcome := Outcome{
		Wait:          true,
		WaitEventType: a.EventType,
		Output:        map[string]any{"event_type": a.EventType},
	}

	if a.timeout > 0 {
		deadline := env.Now.Add(a.timeout)
		outcome.WakeAt = &deadline
		outcome.Output["timeout_at"] = deadline.Format(time.RFC3339)
	}

	return outcome, nil
}

// parseDuration accepts Go durations plus a whole-day suffix, e.g. "3d".
func parseDuration(value string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(value, "d"); ok {
		count, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid day count %q", value)
		}

		if count > int(maxWait/(24*time.Hour)) {
			return 0, fmt.Errorf("day count %q is too large", value)
		}

		return time.Duration(count) * 24 * time.Hour, nil
	}

	return time.ParseDuration(value)
}

func parseDate(value string, location *time.Location) (time.Time, error) {
	if date, err := time.Parse(time.RFC3339, value); err == nil {
		return date, nil
	}

	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"} {
		if date, err := time.ParseInLocation(layout, value, location); err == nil {
			return date, nil
		}
	}

	return time.Time{}, errors.New("expected RFC 3339 or YYYY-MM-DD")
}

func invalid(actionType models.ActionType, field string, err error) error {
	return protocol.NewValidationError(actionType, field, err.Error())
}
