package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/drip/pkg/models"
	"github.com/dukex/drip/pkg/otelhelper"
	"github.com/dukex/drip/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SchedulerConfig controls the claim loop. Any number of schedulers may run
// against the same store; claims are version-guarded.
type SchedulerConfig struct {
	WorkerID     string        `validate:"required"`
	PollInterval time.Duration `validate:"gt=0"`
	BatchSize    int           `validate:"gte=1,lte=1000"`
	Concurrency  int           `validate:"gte=1,lte=256"`
	Lease        time.Duration `validate:"gt=0"`
}

func DefaultSchedulerConfig(workerID string) SchedulerConfig {
	return SchedulerConfig{
		WorkerID:     workerID,
		PollInterval: time.Second,
		BatchSize:    50,
		Concurrency:  8,
		Lease:        5 * time.Minute,
	}
}

// Scheduler polls for due enrollments, claims them and hands each claimed
// enrollment to the executor on a bounded worker pool. Nudge triggers an
// immediate poll, used when an inbound event wakes enrollments.
type Scheduler struct {
	config      SchedulerConfig
	enrollments persistence.EnrollmentRepository
	ledger      *Ledger
	executor    *Executor
	tracer      trace.Tracer
	logger      *slog.Logger

	nudge chan struct{}
	slots chan struct{}
	wg    sync.WaitGroup
}

func NewScheduler(
	config SchedulerConfig,
	p persistence.Persistence,
	ledger *Ledger,
	executor *Executor,
	logger *slog.Logger,
) (*Scheduler, error) {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(config)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler config: %w", err)
	}

	return &Scheduler{
		config:      config,
		enrollments: p.EnrollmentRepository(),
		ledger:      ledger,
		executor:    executor,
		tracer:      otelhelper.Tracer("drip/workflow"),
		logger:      logger.With("module", "action_scheduler", "worker_id", config.WorkerID),
		nudge:       make(chan struct{}, 1),
		slots:       make(chan struct{}, config.Concurrency),
	}, nil
}

// Run polls until ctx is cancelled, then waits for in-flight executions.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Starting scheduler",
		"poll_interval", s.config.PollInterval,
		"concurrency", s.config.Concurrency)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.InfoContext(context.WithoutCancel(ctx), "Scheduler stopped")

			return nil
		case <-ticker.C:
			s.Poll(ctx)
		case <-s.nudge:
			s.Poll(ctx)
		}
	}
}

// Nudge requests a poll without waiting for the next tick.
func (s *Scheduler) Nudge() {
	select {
	case s.nudge <- struct{}{}:
	default:
	}
}

// Poll claims up to one batch of due enrollments and dispatches them to the
// pool. It returns the number claimed.
func (s *Scheduler) Poll(ctx context.Context) int {
	due, err := s.enrollments.Due(ctx, s.ledger.Now(), s.config.BatchSize)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list due enrollments", "error", err)

		return 0
	}

	claimed := 0

	for _, enrollment := range due {
		select {
		case s.slots <- struct{}{}:
		case <-ctx.Done():
			return claimed
		}

		owned, ok := s.claim(ctx, enrollment)
		if !ok {
			<-s.slots

			continue
		}

		claimed++

		s.wg.Add(1)

		go func() {
			defer s.wg.Done()
			defer func() { <-s.slots }()
			defer func() {
				if r := recover(); r != nil {
					s.logger.ErrorContext(ctx, "Enrollment processing panicked, left for lease expiry",
						"enrollment_id", owned.ID, "panic", r)
				}
			}()

			err := s.executor.Process(context.WithoutCancel(ctx), owned)
			if err != nil {
				s.logger.ErrorContext(ctx, "Enrollment processing failed", "enrollment_id", owned.ID, "error", err)
			}
		}()
	}

	if claimed > 0 {
		s.logger.DebugContext(ctx, "Claimed due enrollments", "count", claimed)
	}

	return claimed
}

// Wait blocks until every dispatched execution returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) claim(ctx context.Context, enrollment *models.Enrollment) (*models.Enrollment, bool) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "workflow.claim",
		attribute.String(otelhelper.EnrollmentIDKey, enrollment.ID),
		attribute.String(otelhelper.WorkerIDKey, s.config.WorkerID))
	defer span.End()

	claimed, err := s.ledger.Claim(ctx, enrollment, s.config.WorkerID, s.config.Lease)
	if err == nil {
		return claimed, true
	}

	if persistence.IsVersionConflict(err) || errors.Is(err, ErrNotDue) {
		s.logger.DebugContext(ctx, "Claim lost", "enrollment_id", enrollment.ID, "reason", err)

		return nil, false
	}

	otelhelper.SetError(span, err)
	s.logger.ErrorContext(ctx, "Failed to claim enrollment", "enrollment_id", enrollment.ID, "error", err)

	return nil, false
}
