// Package persistence provides the durable storage contracts of the engine.
//
// Every mutation of an enrollment is a conditional write keyed on its version:
// callers compute the next state with Version = current + 1 and the repository
// applies it only while the stored version still equals current.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/drip/pkg/models"
)

type Persistence interface {
	EnrollmentRepository() EnrollmentRepository
	ExecutionRecordRepository() ExecutionRecordRepository
	AchievementRepository() AchievementRepository
	DeliveryRepository() DeliveryRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// EnrollmentRepository is the Enrollment Ledger.
type EnrollmentRepository interface {
	// Create inserts a new enrollment. Returns ErrActiveEnrollmentExists when the
	// contact already has a running or waiting enrollment in the workflow.
	Create(ctx context.Context, enrollment *models.Enrollment) error

	GetByID(ctx context.Context, id string) (*models.Enrollment, error)

	// Update writes next only if the stored version equals next.Version-1.
	// Returns ErrVersionConflict otherwise.
	Update(ctx context.Context, next *models.Enrollment) error

	// Due returns up to limit enrollments the scheduler may claim at now.
	Due(ctx context.Context, now time.Time, limit int) ([]*models.Enrollment, error)

	// ActiveByContact returns running and waiting enrollments of a contact.
	ActiveByContact(ctx context.Context, tenantID, contactID string) ([]*models.Enrollment, error)

	// WaitingForEvent returns enrollments of a contact suspended on eventType.
	WaitingForEvent(ctx context.Context, tenantID, contactID, eventType string) ([]*models.Enrollment, error)
}

// ExecutionRecordRepository stores the append-only action attempt history.
type ExecutionRecordRepository interface {
	// Insert appends an attempt. Returns ErrDuplicateExecution when a record
	// with the same (enrollment, action, attempt) exists.
	Insert(ctx context.Context, record *models.ActionExecutionRecord) error

	// Finish sets the final status of an unfinished record. Returns
	// ErrRecordFinished when finished_at was already set.
	Finish(ctx context.Context, record *models.ActionExecutionRecord) error

	// AbandonUnfinished closes every unfinished record of the enrollment as
	// failed with the given detail and returns how many were closed.
	AbandonUnfinished(ctx context.Context, enrollmentID string, finishedAt time.Time, detail string) (int, error)

	ByEnrollment(ctx context.Context, enrollmentID string) ([]*models.ActionExecutionRecord, error)
}

type AchievementRepository interface {
	// Insert records an achievement while its enrollment is running or
	// waiting. Returns ErrDuplicateAchievement when the (enrollment, goal) pair
	// was already recorded and ErrEnrollmentInactive when the enrollment is
	// terminal or missing.
	Insert(ctx context.Context, achievement *models.GoalAchievement) error

	ByEnrollment(ctx context.Context, enrollmentID string) ([]*models.GoalAchievement, error)
}

// DeliveryRepository is owned by the delivery dispatcher.
type DeliveryRepository interface {
	// CreateDelivery stores a delivery together with its first attempt.
	CreateDelivery(ctx context.Context, delivery *models.WebhookDelivery, first *models.WebhookDeliveryAttempt) error

	GetDelivery(ctx context.Context, id string) (*models.WebhookDelivery, error)

	UpdateDeliveryStatus(ctx context.Context, id string, status models.DeliveryStatus, updatedAt time.Time) error

	// InsertAttempt appends a scheduled attempt. Returns ErrDuplicateAttempt when
	// the attempt number already exists for the delivery.
	InsertAttempt(ctx context.Context, attempt *models.WebhookDeliveryAttempt) error

	// ClaimDueAttempts leases up to limit pending attempts scheduled at or before
	// now until leaseUntil. An attempt is handed to one claimer at a time.
	ClaimDueAttempts(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*models.WebhookDeliveryAttempt, error)

	// FinishAttempt stores the result of a pending attempt. Returns
	// ErrAttemptFinished when the attempt is no longer pending.
	FinishAttempt(ctx context.Context, attempt *models.WebhookDeliveryAttempt) error

	Attempts(ctx context.Context, deliveryID string) ([]*models.WebhookDeliveryAttempt, error)
}
