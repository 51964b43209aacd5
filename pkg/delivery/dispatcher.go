// Package delivery performs signed HTTPS webhook deliveries with a durable
// attempt log and a bounded retry schedule.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/dukex/drip/pkg/eventbus"
	"github.com/dukex/drip/pkg/events"
	"github.com/dukex/drip/pkg/models"
	"github.com/dukex/drip/pkg/otelhelper"
	"github.com/dukex/drip/pkg/persistence"
	"github.com/dukex/drip/pkg/protocol"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const maxErrorBody = 512

var (
	ErrInsecureURL    = errors.New("webhook url must use https")
	ErrInvalidPayload = errors.New("webhook payload must be valid JSON")
	ErrNotAbandoned   = errors.New("only abandoned deliveries can be redelivered")
)

// Dispatcher owns webhook deliveries and their attempts. Enqueue schedules the
// first attempt; Run claims due attempts from storage so any number of
// dispatchers can share one delivery log.
type Dispatcher struct {
	config     Config
	deliveries persistence.DeliveryRepository
	publisher  eventbus.EventPublisher
	client     *http.Client
	clock      func() time.Time
	validate   *validator.Validate
	tracer     trace.Tracer
	logger     *slog.Logger

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter

	nudge chan struct{}
	slots chan struct{}
	wg    sync.WaitGroup
}

// NewDispatcher validates config. publisher may be nil when outcome events
// are not wanted.
func NewDispatcher(config Config, p persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) (*Dispatcher, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	err := validate.Struct(config)
	if err != nil {
		return nil, fmt.Errorf("invalid delivery config: %w", err)
	}

	return &Dispatcher{
		config:     config,
		deliveries: p.DeliveryRepository(),
		publisher:  publisher,
		client:     &http.Client{Timeout: config.Timeout},
		clock:      time.Now,
		validate:   validate,
		tracer:     otelhelper.Tracer("drip/delivery"),
		logger:     logger.With("module", "delivery_dispatcher", "worker_id", config.WorkerID),
		limiters:   make(map[string]*rate.Limiter),
		nudge:      make(chan struct{}, 1),
		slots:      make(chan struct{}, config.Concurrency),
	}, nil
}

func (d *Dispatcher) WithClient(client *http.Client) *Dispatcher {
	d.client = client

	return d
}

func (d *Dispatcher) WithClock(clock func() time.Time) *Dispatcher {
	d.clock = clock

	return d
}

// Enqueue durably schedules the first attempt of a new delivery.
func (d *Dispatcher) Enqueue(ctx context.Context, webhook models.Webhook, payload []byte, enrollmentID string) (*models.WebhookDelivery, error) {
	err := d.validate.Struct(webhook)
	if err != nil {
		return nil, protocol.NewValidationError(models.ActionWebhookCall, "webhook", err.Error())
	}

	err = checkURL(webhook.URL)
	if err != nil {
		return nil, protocol.Terminal(err)
	}

	if !json.Valid(payload) {
		return nil, protocol.Terminal(ErrInvalidPayload)
	}

	now := d.clock()

	return d.start(ctx, &models.WebhookDelivery{
		ID:           uuid.New().String(),
		Webhook:      webhook,
		Payload:      json.RawMessage(payload),
		Status:       models.DeliveryStatusPending,
		MaxAttempts:  d.config.MaxAttempts(),
		EnrollmentID: enrollmentID,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

// Redeliver starts a fresh attempt sequence for an abandoned delivery.
func (d *Dispatcher) Redeliver(ctx context.Context, deliveryID string) (*models.WebhookDelivery, error) {
	original, err := d.deliveries.GetDelivery(ctx, deliveryID)
	if err != nil {
		return nil, err
	}

	if original.Status != models.DeliveryStatusAbandoned {
		return nil, fmt.Errorf("%w: delivery %s is %s", ErrNotAbandoned, deliveryID, original.Status)
	}

	now := d.clock()

	return d.start(ctx, &models.WebhookDelivery{
		ID:           uuid.New().String(),
		Webhook:      original.Webhook,
		Payload:      original.Payload,
		Status:       models.DeliveryStatusPending,
		MaxAttempts:  d.config.MaxAttempts(),
		EnrollmentID: original.EnrollmentID,
		RedeliveryOf: original.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (d *Dispatcher) Get(ctx context.Context, deliveryID string) (*models.WebhookDelivery, error) {
	return d.deliveries.GetDelivery(ctx, deliveryID)
}

// Attempts returns the attempt log of a delivery in attempt order.
func (d *Dispatcher) Attempts(ctx context.Context, deliveryID string) ([]*models.WebhookDeliveryAttempt, error) {
	return d.deliveries.Attempts(ctx, deliveryID)
}

func (d *Dispatcher) start(ctx context.Context, delivery *models.WebhookDelivery) (*models.WebhookDelivery, error) {
	first := newAttempt(delivery, 1, delivery.CreatedAt)

	err := d.deliveries.CreateDelivery(ctx, delivery, first)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule delivery: %w", err)
	}

	d.logger.InfoContext(ctx, "Delivery scheduled",
		"delivery_id", delivery.ID,
		"webhook_id", delivery.Webhook.ID,
		"enrollment_id", delivery.EnrollmentID,
		"redelivery_of", delivery.RedeliveryOf)

	d.Nudge()

	return delivery, nil
}

// Run polls for due attempts until ctx is cancelled, then waits for in-flight
// attempts.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.InfoContext(ctx, "Starting delivery dispatcher",
		"poll_interval", d.config.PollInterval,
		"max_attempts", d.config.MaxAttempts())

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.wg.Wait()
			d.logger.InfoContext(context.WithoutCancel(ctx), "Delivery dispatcher stopped")

			return nil
		case <-ticker.C:
			d.Poll(ctx)
		case <-d.nudge:
			d.Poll(ctx)
		}
	}
}

func (d *Dispatcher) Nudge() {
	select {
	case d.nudge <- struct{}{}:
	default:
	}
}

// Poll leases up to one batch of due attempts and sends them. It returns the
// number claimed.
func (d *Dispatcher) Poll(ctx context.Context) int {
	now := d.clock()

	due, err := d.deliveries.ClaimDueAttempts(ctx, now, now.Add(d.config.Lease), d.config.BatchSize)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to claim due attempts", "error", err)

		return 0
	}

	for i, attempt := range due {
		select {
		case d.slots <- struct{}{}:
		case <-ctx.Done():
			return i
		}

		d.wg.Add(1)

		go func() {
			defer d.wg.Done()
			defer func() { <-d.slots }()

			d.process(context.WithoutCancel(ctx), attempt)
		}()
	}

	return len(due)
}

// Wait blocks until every dispatched attempt returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) process(ctx context.Context, attempt *models.WebhookDeliveryAttempt) {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "delivery.attempt",
		attribute.String(otelhelper.DeliveryIDKey, attempt.DeliveryID),
		attribute.Int(otelhelper.AttemptKey, attempt.AttemptNumber),
		attribute.String(otelhelper.WorkerIDKey, d.config.WorkerID))
	defer span.End()

	logger := d.logger.With("delivery_id", attempt.DeliveryID, "attempt", attempt.AttemptNumber)

	delivery, err := d.deliveries.GetDelivery(ctx, attempt.DeliveryID)
	if err != nil {
		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "Failed to load delivery", "error", err)

		return
	}

	status, sendErr := d.send(ctx, delivery, attempt)
	now := d.clock()

	finished := *attempt
	finished.AttemptedAt = &now
	finished.LeaseUntil = nil

	if status != 0 {
		finished.ResponseStatus = &status
	}

	switch {
	case sendErr == nil:
		finished.Outcome = models.DeliveryOutcomeDelivered
	case attempt.AttemptNumber >= delivery.MaxAttempts:
		finished.Outcome = models.DeliveryOutcomeAbandoned
		finished.Error = sendErr.Error()
	default:
		finished.Outcome = models.DeliveryOutcomeFailed
		finished.Error = sendErr.Error()

		next := newAttempt(delivery, attempt.AttemptNumber+1, d.nextSchedule(delivery, attempt.AttemptNumber+1, now))

		err := d.deliveries.InsertAttempt(ctx, next)
		if err != nil && !errors.Is(err, persistence.ErrDuplicateAttempt) {
			otelhelper.SetError(span, err)
			logger.ErrorContext(ctx, "Failed to schedule retry", "error", err)

			return
		}
	}

	err = d.deliveries.FinishAttempt(ctx, &finished)
	if errors.Is(err, persistence.ErrAttemptFinished) {
		logger.DebugContext(ctx, "Attempt already finished by another dispatcher")

		return
	}

	if err != nil {
		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "Failed to record attempt", "error", err)

		return
	}

	switch finished.Outcome {
	case models.DeliveryOutcomeDelivered:
		d.conclude(ctx, delivery, models.DeliveryStatusDelivered, now)
		d.publish(ctx, delivery.ID, events.WebhookDeliveryDelivered{
			BaseEvent:      d.baseEvent(events.WebhookDeliveryDeliveredEvent, delivery),
			DeliveryID:     delivery.ID,
			WebhookID:      delivery.Webhook.ID,
			AttemptNumber:  attempt.AttemptNumber,
			ResponseStatus: status,
		})
		logger.InfoContext(ctx, "Webhook delivered", "status", status)
	case models.DeliveryOutcomeAbandoned:
		otelhelper.SetError(span, sendErr)
		d.conclude(ctx, delivery, models.DeliveryStatusAbandoned, now)
		d.publish(ctx, delivery.ID, events.WebhookDeliveryAbandoned{
			BaseEvent:    d.baseEvent(events.WebhookDeliveryAbandonedEvent, delivery),
			DeliveryID:   delivery.ID,
			WebhookID:    delivery.Webhook.ID,
			EnrollmentID: delivery.EnrollmentID,
			Attempts:     attempt.AttemptNumber,
			LastError:    finished.Error,
		})
		logger.WarnContext(ctx, "Webhook delivery abandoned", "error", sendErr)
	default:
		logger.InfoContext(ctx, "Webhook attempt failed, retry scheduled", "error", sendErr)
	}
}

// nextSchedule keeps retries on the sequence's offsets; a late attempt never
// schedules its successor in the past.
func (d *Dispatcher) nextSchedule(delivery *models.WebhookDelivery, attempt int, now time.Time) time.Time {
	scheduled := delivery.CreatedAt.Add(d.config.Offset(attempt))
	if scheduled.Before(now) {
		return now
	}

	return scheduled
}

// send performs one signed request and returns the response status, zero when
// no response arrived.
func (d *Dispatcher) send(ctx context.Context, delivery *models.WebhookDelivery, attempt *models.WebhookDeliveryAttempt) (int, error) {
	target, err := url.Parse(delivery.Webhook.URL)
	if err != nil {
		return 0, fmt.Errorf("invalid url: %w", err)
	}

	if target.Scheme != "https" {
		return 0, ErrInsecureURL
	}

	limiter := d.limiter(target.Host)
	if limiter != nil {
		err := limiter.Wait(ctx)
		if err != nil {
			return 0, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	method := delivery.Webhook.Method
	if method == "" {
		method = http.MethodPost
	}

	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target.String(), bytes.NewReader(attempt.Payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range delivery.Webhook.Headers {
		req.Header.Set(key, value)
	}

	timestamp := d.clock().Unix()

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TimestampHeader, strconv.FormatInt(timestamp, 10))
	req.Header.Set(SignatureHeader, Sign(delivery.Webhook.Secret, timestamp, attempt.Payload))
	req.Header.Set(DeliveryHeader, delivery.ID)
	req.Header.Set(AttemptHeader, strconv.Itoa(attempt.AttemptNumber))

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			d.logger.WarnContext(ctx, "failed to close response body", "error", closeErr)
		}
	}()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	return resp.StatusCode, nil
}

func (d *Dispatcher) limiter(host string) *rate.Limiter {
	if d.config.RatePerHost <= 0 {
		return nil
	}

	d.limitersMu.Lock()
	defer d.limitersMu.Unlock()

	limiter, ok := d.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(d.config.RatePerHost), max(d.config.Burst, 1))
		d.limiters[host] = limiter
	}

	return limiter
}

func (d *Dispatcher) conclude(ctx context.Context, delivery *models.WebhookDelivery, status models.DeliveryStatus, now time.Time) {
	err := d.deliveries.UpdateDeliveryStatus(ctx, delivery.ID, status, now)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to update delivery status",
			"delivery_id", delivery.ID,
			"status", status,
			"error", err)
	}
}

func (d *Dispatcher) baseEvent(eventType events.EventType, delivery *models.WebhookDelivery) events.BaseEvent {
	base := events.NewBaseEvent(eventType, delivery.Webhook.TenantID)
	base.WorkerID = d.config.WorkerID

	return base
}

func (d *Dispatcher) publish(ctx context.Context, key string, event eventbus.Event) {
	if d.publisher == nil {
		return
	}

	err := d.publisher.Publish(ctx, key, event)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to publish delivery outcome", "delivery_id", key, "error", err)
	}
}

func newAttempt(delivery *models.WebhookDelivery, number int, scheduledAt time.Time) *models.WebhookDeliveryAttempt {
	return &models.WebhookDeliveryAttempt{
		ID:            uuid.New().String(),
		DeliveryID:    delivery.ID,
		WebhookID:     delivery.Webhook.ID,
		Payload:       delivery.Payload,
		AttemptNumber: number,
		ScheduledAt:   scheduledAt,
		Outcome:       models.DeliveryOutcomePending,
	}
}

func checkURL(raw string) error {
	target, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInsecureURL, err)
	}

	if target.Scheme != "https" || target.Host == "" {
		return ErrInsecureURL
	}

	return nil
}
