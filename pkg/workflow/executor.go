package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/dukex/drip/pkg/actions"
	"github.com/dukex/drip/pkg/definitions"
	"github.com/dukex/drip/pkg/models"
	"github.com/dukex/drip/pkg/otelhelper"
	"github.com/dukex/drip/pkg/persistence"
	"github.com/dukex/drip/pkg/protocol"
	"github.com/dukex/drip/pkg/template"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ExecutorConfig bounds retries of side-effecting actions.
type ExecutorConfig struct {
	MaxAttempts int           `validate:"gte=1"`
	RetryBase   time.Duration `validate:"gt=0"`
	Lease       time.Duration `validate:"gt=0"`
}

func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxAttempts: 3,
		RetryBase:   30 * time.Second,
		Lease:       5 * time.Minute,
	}
}

// RetryDelay is the wait before attempt+1 after attempt failed transiently.
func (c ExecutorConfig) RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	return c.RetryBase << (attempt - 1)
}

// Executor runs the actions of a claimed enrollment in cursor order. Every
// attempt is recorded before its side effect and finished after it; handler
// errors end in the record and in the enrollment state, never in the return
// value.
type Executor struct {
	ledger        *Ledger
	records       persistence.ExecutionRecordRepository
	definitions   definitions.Store
	collaborators protocol.Collaborators
	config        ExecutorConfig
	tracer        trace.Tracer
	logger        *slog.Logger
}

func NewExecutor(
	ledger *Ledger,
	p persistence.Persistence,
	store definitions.Store,
	collaborators protocol.Collaborators,
	config ExecutorConfig,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		ledger:        ledger,
		records:       p.ExecutionRecordRepository(),
		definitions:   store,
		collaborators: collaborators,
		config:        config,
		tracer:        otelhelper.Tracer("drip/workflow"),
		logger:        logger.With("module", "action_executor"),
	}
}

// Process advances a claimed enrollment until it waits, finishes, fails or
// loses a version check to another actor. Only infrastructure errors are
// returned.
func (e *Executor) Process(ctx context.Context, enrollment *models.Enrollment) error {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.process",
		attribute.String(otelhelper.EnrollmentIDKey, enrollment.ID),
		attribute.String(otelhelper.WorkflowIDKey, enrollment.WorkflowID),
		attribute.String(otelhelper.ContactIDKey, enrollment.ContactID))
	defer span.End()

	logger := e.logger.With(
		"enrollment_id", enrollment.ID,
		"workflow_id", enrollment.WorkflowID,
		"contact_id", enrollment.ContactID,
	)

	definition, err := e.definitions.WorkflowDefinition(ctx, enrollment.WorkflowID, enrollment.DefinitionVersion)
	if err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("failed to load definition of %s: %w", enrollment.ID, err)
	}

	current := enrollment

	for {
		next, done, err := e.step(ctx, logger, definition, current)
		if persistence.IsVersionConflict(err) {
			logger.DebugContext(ctx, "Enrollment moved by another actor, abandoning", "cursor", current.Cursor)

			return nil
		}

		if err != nil {
			otelhelper.SetError(span, err)

			return err
		}

		if done {
			return nil
		}

		current = next
	}
}

// step runs the action at the cursor and applies the resulting transition.
func (e *Executor) step(
	ctx context.Context,
	logger *slog.Logger,
	definition *models.WorkflowDefinition,
	current *models.Enrollment,
) (*models.Enrollment, bool, error) {
	if current.State != models.RunStateRunning {
		return current, true, nil
	}

	spec, ok := definition.ActionAt(current.Cursor)
	if !ok {
		_, err := e.ledger.Transition(ctx, current, "completed", func(next *models.Enrollment) {
			next.State = models.RunStateSucceeded
			next.Cursor = definition.Len()
			next.Attempt = 0
		})
		if err == nil {
			logger.InfoContext(ctx, "Enrollment completed")
		}

		return nil, true, err
	}

	logger = logger.With("action_id", spec.ID, "action_type", spec.Type, "attempt", current.Attempt)

	if current.Attempt > e.config.MaxAttempts {
		_, err := e.ledger.Transition(ctx, current, "attempts exhausted", func(next *models.Enrollment) {
			next.State = models.RunStateFailed
			next.LastError = fmt.Sprintf("action %s exhausted %d attempts", spec.ID, e.config.MaxAttempts)
		})

		return nil, true, err
	}

	now := e.ledger.Now()

	record := &models.ActionExecutionRecord{
		ID:           uuid.New().String(),
		EnrollmentID: current.ID,
		ActionID:     spec.ID,
		ActionType:   spec.Type,
		Attempt:      current.Attempt,
		Status:       models.ExecutionStatusRunning,
		StartedAt:    &now,
	}

	if !spec.IsEnabled() {
		record.Status = models.ExecutionStatusSkipped
		record.FinishedAt = &now
	}

	err := e.records.Insert(ctx, record)
	if errors.Is(err, persistence.ErrDuplicateExecution) {
		logger.WarnContext(ctx, "Attempt already recorded, abandoning claim")

		return nil, true, nil
	}

	if err != nil {
		return nil, true, fmt.Errorf("failed to record attempt: %w", err)
	}

	if !spec.IsEnabled() {
		logger.DebugContext(ctx, "Action disabled, skipping")

		return e.advance(ctx, definition, current, spec, actions.Outcome{})
	}

	outcome, execErr := e.execute(ctx, current, spec)

	finishedAt := e.ledger.Now()
	record.FinishedAt = &finishedAt

	if execErr != nil {
		detail := execErr.Error()
		record.Status = models.ExecutionStatusFailed
		record.ErrorKind = protocol.Classify(execErr)
		record.ErrorDetail = &detail
	} else {
		record.Status = models.ExecutionStatusSucceeded
		record.Output = outcome.Output
	}

	err = e.records.Finish(ctx, record)
	if errors.Is(err, persistence.ErrRecordFinished) {
		logger.WarnContext(ctx, "Attempt closed by another worker, abandoning claim")

		return nil, true, nil
	}

	if err != nil {
		return nil, true, fmt.Errorf("failed to finish attempt: %w", err)
	}

	if execErr != nil {
		return e.fail(ctx, logger, current, spec, record.ErrorKind, execErr)
	}

	logger.InfoContext(ctx, "Action succeeded")

	return e.advance(ctx, definition, current, spec, outcome)
}

func (e *Executor) execute(ctx context.Context, enrollment *models.Enrollment, spec *models.ActionSpec) (actions.Outcome, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.execute_action",
		attribute.String(otelhelper.ActionIDKey, spec.ID),
		attribute.String(otelhelper.ActionTypeKey, string(spec.Type)),
		attribute.Int(otelhelper.AttemptKey, enrollment.Attempt))
	defer span.End()

	config := template.RenderConfig(spec.Config, templateData(enrollment))

	action, err := actions.Decode(spec.Type, config)
	if err != nil {
		otelhelper.SetError(span, err)

		return actions.Outcome{}, err
	}

	env := actions.Env{
		Now: e.ledger.Now(),
		Call: protocol.Call{
			TenantID:       enrollment.TenantID,
			ContactID:      enrollment.ContactID,
			EnrollmentID:   enrollment.ID,
			WorkflowID:     enrollment.WorkflowID,
			ActionID:       spec.ID,
			ActionType:     spec.Type,
			Attempt:        enrollment.Attempt,
			IdempotencyKey: models.IdempotencyKey(enrollment.ID, spec.ID, enrollment.Attempt),
			Config:         config,
		},
		Collaborators: e.collaborators,
	}

	outcome, err := action.Execute(ctx, env)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return outcome, err
}

// advance moves the cursor past spec. A waiting outcome releases the lease;
// otherwise the claim is extended and the caller continues with the next action.
func (e *Executor) advance(
	ctx context.Context,
	definition *models.WorkflowDefinition,
	current *models.Enrollment,
	spec *models.ActionSpec,
	outcome actions.Outcome,
) (*models.Enrollment, bool, error) {
	now := e.ledger.Now()

	next, err := e.ledger.Transition(ctx, current, "action "+spec.ID+" finished", func(next *models.Enrollment) {
		next.Cursor = current.Cursor + 1
		next.LastError = ""

		if len(outcome.Output) > 0 {
			next.Context = withActionOutput(next.Context, spec.ID, outcome.Output)
		}

		switch {
		case outcome.Wait:
			next.State = models.RunStateWaiting
			next.WakeAt = outcome.WakeAt
			next.WaitEventType = outcome.WaitEventType
			next.LeaseOwner = ""
			next.LeaseUntil = nil
			next.Attempt = 0
		case next.Cursor >= definition.Len():
			next.State = models.RunStateSucceeded
			next.Attempt = 0
		default:
			leaseUntil := now.Add(e.config.Lease)
			next.LeaseUntil = &leaseUntil
			next.Attempt = 1
		}
	})
	if err != nil {
		return nil, true, err
	}

	if next.State == models.RunStateSucceeded {
		e.logger.InfoContext(ctx, "Enrollment completed", "enrollment_id", next.ID)
	}

	return next, next.State != models.RunStateRunning, nil
}

// fail applies the retry policy. Transient failures below the attempt ceiling
// wait for a backoff without moving the cursor.
func (e *Executor) fail(
	ctx context.Context,
	logger *slog.Logger,
	current *models.Enrollment,
	spec *models.ActionSpec,
	kind models.ErrorKind,
	cause error,
) (*models.Enrollment, bool, error) {
	retry := kind == models.ErrorKindTransient && current.Attempt < e.config.MaxAttempts

	if !retry {
		logger.WarnContext(ctx, "Action failed", "error_kind", kind, "error", cause)

		_, err := e.ledger.Transition(ctx, current, "action "+spec.ID+" failed", func(next *models.Enrollment) {
			next.State = models.RunStateFailed
			next.LastError = cause.Error()
		})

		return nil, true, err
	}

	wakeAt := e.ledger.Now().Add(e.config.RetryDelay(current.Attempt))

	logger.InfoContext(ctx, "Action failed transiently, retry scheduled", "wake_at", wakeAt, "error", cause)

	_, err := e.ledger.Transition(ctx, current, "retry scheduled", func(next *models.Enrollment) {
		next.State = models.RunStateWaiting
		next.WakeAt = &wakeAt
		next.LeaseOwner = ""
		next.LeaseUntil = nil
		next.LastError = cause.Error()
	})

	return nil, true, err
}

// templateData exposes the enrollment context plus the enrollment's own ids.
func templateData(enrollment *models.Enrollment) map[string]any {
	data := maps.Clone(enrollment.Context)
	if data == nil {
		data = map[string]any{}
	}

	data["enrollment"] = map[string]any{
		"id":          enrollment.ID,
		"workflow_id": enrollment.WorkflowID,
		"tenant_id":   enrollment.TenantID,
		"contact_id":  enrollment.ContactID,
	}

	contact, ok := data["contact"].(map[string]any)
	if !ok || contact == nil {
		contact = map[string]any{}
	} else {
		contact = maps.Clone(contact)
	}

	if _, ok := contact["id"]; !ok {
		contact["id"] = enrollment.ContactID
	}

	data["contact"] = contact

	return data
}

func withActionOutput(context map[string]any, actionID string, output map[string]any) map[string]any {
	if context == nil {
		context = map[string]any{}
	}

	outputs, ok := context["actions"].(map[string]any)
	if !ok || outputs == nil {
		outputs = map[string]any{}
	} else {
		outputs = maps.Clone(outputs)
	}

	outputs[actionID] = output
	context["actions"] = outputs

	return context
}
