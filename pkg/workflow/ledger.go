// Package workflow implements the enrollment state machine and the components
// that drive it: the executor, the scheduler, the goal evaluator and the
// inbound event router.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/drip/pkg/definitions"
	"github.com/dukex/drip/pkg/models"
	"github.com/dukex/drip/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Clock returns the current time. Tests inject a controllable one.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

// EnrollRequest starts a contact on a workflow. Context seeds the template
// data, conventionally with contact attributes under "contact".
type EnrollRequest struct {
	WorkflowID string         `json:"workflow_id" validate:"required"`
	TenantID   string         `json:"tenant_id"   validate:"required"`
	ContactID  string         `json:"contact_id"  validate:"required"`
	Context    map[string]any `json:"context"`
}

// Ledger owns every enrollment transition. A transition is computed on a
// copy of the current row and written only if the stored version is unchanged.
type Ledger struct {
	enrollments persistence.EnrollmentRepository
	records     persistence.ExecutionRecordRepository
	definitions definitions.Store
	notifier    Notifier
	clock       Clock
	validate    *validator.Validate
	logger      *slog.Logger
}

func NewLedger(p persistence.Persistence, store definitions.Store, notifier Notifier, logger *slog.Logger) *Ledger {
	if notifier == nil {
		notifier = NopNotifier()
	}

	return &Ledger{
		enrollments: p.EnrollmentRepository(),
		records:     p.ExecutionRecordRepository(),
		definitions: store,
		notifier:    notifier,
		clock:       systemClock,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With("module", "enrollment_ledger"),
	}
}

// WithClock replaces the time source.
func (l *Ledger) WithClock(clock Clock) *Ledger {
	l.clock = clock

	return l
}

func (l *Ledger) Now() time.Time {
	return l.clock()
}

// Enroll snapshots the current active definition and creates a running
// enrollment at cursor -1, immediately due.
func (l *Ledger) Enroll(ctx context.Context, req EnrollRequest) (*models.Enrollment, error) {
	err := l.validate.Struct(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	definition, err := l.definitions.CurrentDefinition(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	if definition.Status != models.WorkflowStatusActive {
		return nil, fmt.Errorf("workflow %s is %s: %w", definition.ID, definition.Status, ErrWorkflowNotActive)
	}

	if definition.TenantID != req.TenantID {
		return nil, fmt.Errorf("workflow %s: %w", req.WorkflowID, persistence.ErrDefinitionNotFound)
	}

	now := l.clock()

	enrollment := &models.Enrollment{
		ID:                uuid.New().String(),
		WorkflowID:        definition.ID,
		DefinitionVersion: definition.Version,
		TenantID:          req.TenantID,
		ContactID:         req.ContactID,
		Cursor:            models.CursorNotStarted,
		State:             models.RunStateRunning,
		Context:           req.Context,
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           1,
	}

	if enrollment.Context == nil {
		enrollment.Context = map[string]any{}
	}

	err = l.enrollments.Create(ctx, enrollment)
	if err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "Contact enrolled",
		"enrollment_id", enrollment.ID,
		"workflow_id", enrollment.WorkflowID,
		"contact_id", enrollment.ContactID,
		"definition_version", enrollment.DefinitionVersion)

	return enrollment, nil
}

func (l *Ledger) Get(ctx context.Context, id string) (*models.Enrollment, error) {
	return l.enrollments.GetByID(ctx, id)
}

// Transition applies mutate to a copy of current and writes it conditionally.
// It returns persistence.ErrVersionConflict when another actor moved first.
func (l *Ledger) Transition(ctx context.Context, current *models.Enrollment, reason string, mutate func(next *models.Enrollment)) (*models.Enrollment, error) {
	next := current.Clone()
	mutate(next)

	if next.Cursor < current.Cursor {
		return nil, fmt.Errorf("enrollment %s: cursor cannot move from %d to %d", current.ID, current.Cursor, next.Cursor)
	}

	if next.State.IsTerminal() {
		next.LeaseOwner = ""
		next.LeaseUntil = nil
		next.WakeAt = nil
		next.WaitEventType = ""
	}

	next.Version = current.Version + 1
	next.UpdatedAt = l.clock()

	err := l.enrollments.Update(ctx, next)
	if err != nil {
		return nil, err
	}

	if next.State != current.State {
		l.logger.DebugContext(ctx, "Enrollment transitioned",
			"enrollment_id", next.ID,
			"from", current.State,
			"to", next.State,
			"cursor", next.Cursor,
			"reason", reason)
	}

	l.notifier.StateChanged(ctx, current, next, reason)

	return next, nil
}

// Claim hands a due enrollment to owner until now+lease. Reclaiming a running
// enrollment whose lease expired closes the attempt the previous owner left
// unfinished.
func (l *Ledger) Claim(ctx context.Context, current *models.Enrollment, owner string, lease time.Duration) (*models.Enrollment, error) {
	now := l.clock()

	if !current.IsDue(now) {
		return nil, ErrNotDue
	}

	orphaned := current.State == models.RunStateRunning && current.LeaseUntil != nil

	claimed, err := l.Transition(ctx, current, "claimed", func(next *models.Enrollment) {
		leaseUntil := now.Add(lease)

		next.State = models.RunStateRunning
		next.LeaseOwner = owner
		next.LeaseUntil = &leaseUntil
		next.WakeAt = nil
		next.WaitEventType = ""
		next.Attempt++

		if next.Cursor == models.CursorNotStarted {
			next.Cursor = 0
		}
	})
	if err != nil {
		return nil, err
	}

	if orphaned {
		closed, err := l.records.AbandonUnfinished(ctx, claimed.ID, now, "lease expired")
		if err != nil {
			return nil, fmt.Errorf("failed to close orphaned attempts of %s: %w", claimed.ID, err)
		}

		if closed > 0 {
			l.logger.WarnContext(ctx, "Closed attempts of an expired lease",
				"enrollment_id", claimed.ID,
				"previous_owner", current.LeaseOwner,
				"closed", closed)
		}
	}

	return claimed, nil
}

// Cancel stops a non-terminal enrollment. A worker holding it loses its next
// write to the version check.
func (l *Ledger) Cancel(ctx context.Context, id, reason string) (*models.Enrollment, error) {
	if reason == "" {
		reason = "cancelled"
	}

	return l.finish(ctx, id, models.RunStateCancelled, reason)
}

// finish moves an enrollment to a terminal state, re-reading on conflict.
func (l *Ledger) finish(ctx context.Context, id string, state models.RunState, reason string) (*models.Enrollment, error) {
	const maxRereads = 5

	for range maxRereads {
		current, err := l.enrollments.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if current.State.IsTerminal() {
			return current, &TerminalStateError{EnrollmentID: id, State: current.State}
		}

		next, err := l.Transition(ctx, current, reason, func(next *models.Enrollment) {
			next.State = state
			next.LastError = ""
		})
		if persistence.IsVersionConflict(err) {
			continue
		}

		if err != nil {
			return nil, err
		}

		l.logger.InfoContext(ctx, "Enrollment finished",
			"enrollment_id", id,
			"state", state,
			"reason", reason)

		return next, nil
	}

	return nil, persistence.NewEnrollmentError("finish", id, persistence.ErrVersionConflict)
}
