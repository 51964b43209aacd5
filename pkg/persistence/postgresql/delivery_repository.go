package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/drip/pkg/models"
	"github.com/dukex/drip/pkg/persistence"
)

const attemptColumns = `id, delivery_id, webhook_id, payload, attempt_number, scheduled_at, attempted_at,
	response_status, outcome, error, lease_until`

// DeliveryRepository handles the webhook delivery log.
type DeliveryRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDeliveryRepository creates a new delivery repository.
func NewDeliveryRepository(db *sql.DB, logger *slog.Logger) *DeliveryRepository {
	return &DeliveryRepository{db: db, logger: logger}
}

// CreateDelivery stores a delivery and its first attempt in one transaction.
func (r *DeliveryRepository) CreateDelivery(ctx context.Context, delivery *models.WebhookDelivery, first *models.WebhookDeliveryAttempt) error {
	webhookJSON, err := json.Marshal(delivery.Webhook)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			r.logger.ErrorContext(ctx, "failed to rollback transaction", "error", rollbackErr)
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (id, webhook, payload, status, max_attempts, enrollment_id, redelivery_of, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		delivery.ID,
		webhookJSON,
		[]byte(delivery.Payload),
		delivery.Status,
		delivery.MaxAttempts,
		delivery.EnrollmentID,
		delivery.RedeliveryOf,
		delivery.CreatedAt,
		delivery.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert delivery: %w", err)
	}

	err = insertAttempt(ctx, tx, first)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit delivery: %w", err)
	}

	return nil
}

// GetDelivery retrieves a delivery by its ID.
func (r *DeliveryRepository) GetDelivery(ctx context.Context, id string) (*models.WebhookDelivery, error) {
	var (
		delivery    models.WebhookDelivery
		webhookJSON []byte
		payload     []byte
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, webhook, payload, status, max_attempts, enrollment_id, redelivery_of, created_at, updated_at
		FROM webhook_deliveries WHERE id = $1`, id).Scan(
		&delivery.ID,
		&webhookJSON,
		&payload,
		&delivery.Status,
		&delivery.MaxAttempts,
		&delivery.EnrollmentID,
		&delivery.RedeliveryOf,
		&delivery.CreatedAt,
		&delivery.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewDeliveryError("GetDelivery", id, persistence.ErrDeliveryNotFound)
		}

		return nil, fmt.Errorf("failed to scan delivery: %w", err)
	}

	err = json.Unmarshal(webhookJSON, &delivery.Webhook)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal webhook: %w", err)
	}

	delivery.Payload = payload

	return &delivery, nil
}

// UpdateDeliveryStatus sets the aggregate status of a delivery.
func (r *DeliveryRepository) UpdateDeliveryStatus(ctx context.Context, id string, status models.DeliveryStatus, updatedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE webhook_deliveries SET status = $2, updated_at = $3 WHERE id = $1", id, status, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to update delivery status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewDeliveryError("UpdateDeliveryStatus", id, persistence.ErrDeliveryNotFound)
	}

	return nil
}

// InsertAttempt appends a scheduled attempt to the log.
func (r *DeliveryRepository) InsertAttempt(ctx context.Context, attempt *models.WebhookDeliveryAttempt) error {
	return insertAttempt(ctx, r.db, attempt)
}

// ClaimDueAttempts leases due attempts. FOR UPDATE SKIP LOCKED keeps
// concurrent dispatchers from claiming the same row.
func (r *DeliveryRepository) ClaimDueAttempts(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*models.WebhookDeliveryAttempt, error) {
	query := `
		UPDATE webhook_delivery_attempts SET lease_until = $2
		WHERE id IN (
			SELECT id FROM webhook_delivery_attempts
			WHERE outcome = 'pending' AND scheduled_at <= $1 AND (lease_until IS NULL OR lease_until <= $1)
			ORDER BY scheduled_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + attemptColumns

	return r.queryAttempts(ctx, query, now, leaseUntil, limit)
}

// FinishAttempt stores the result of a pending attempt and releases its lease.
func (r *DeliveryRepository) FinishAttempt(ctx context.Context, attempt *models.WebhookDeliveryAttempt) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE webhook_delivery_attempts SET
			attempted_at = $2,
			response_status = $3,
			outcome = $4,
			error = $5,
			lease_until = NULL
		WHERE id = $1 AND outcome = 'pending'`,
		attempt.ID,
		attempt.AttemptedAt,
		attempt.ResponseStatus,
		attempt.Outcome,
		attempt.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to finish delivery attempt: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewDeliveryError("FinishAttempt", attempt.DeliveryID, persistence.ErrAttemptFinished)
	}

	return nil
}

// Attempts returns the attempt log of a delivery ordered by attempt number.
func (r *DeliveryRepository) Attempts(ctx context.Context, deliveryID string) ([]*models.WebhookDeliveryAttempt, error) {
	var exists bool

	err := r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM webhook_deliveries WHERE id = $1)", deliveryID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check delivery existence: %w", err)
	}

	if !exists {
		return nil, persistence.NewDeliveryError("Attempts", deliveryID, persistence.ErrDeliveryNotFound)
	}

	query := `SELECT ` + attemptColumns + ` FROM webhook_delivery_attempts
		WHERE delivery_id = $1
		ORDER BY attempt_number ASC`

	return r.queryAttempts(ctx, query, deliveryID)
}

func (r *DeliveryRepository) queryAttempts(ctx context.Context, query string, args ...any) ([]*models.WebhookDeliveryAttempt, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery attempts: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	attempts := make([]*models.WebhookDeliveryAttempt, 0)

	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery attempt: %w", err)
		}

		attempts = append(attempts, attempt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating delivery attempts: %w", err)
	}

	return attempts, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertAttempt(ctx context.Context, db execer, attempt *models.WebhookDeliveryAttempt) error {
	query := `INSERT INTO webhook_delivery_attempts (` + attemptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := db.ExecContext(ctx, query,
		attempt.ID,
		attempt.DeliveryID,
		attempt.WebhookID,
		[]byte(attempt.Payload),
		attempt.AttemptNumber,
		attempt.ScheduledAt,
		attempt.AttemptedAt,
		attempt.ResponseStatus,
		attempt.Outcome,
		attempt.Error,
		attempt.LeaseUntil,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewDeliveryError("InsertAttempt", attempt.DeliveryID, persistence.ErrDuplicateAttempt)
		}

		return fmt.Errorf("failed to insert delivery attempt: %w", err)
	}

	return nil
}

func scanAttempt(row scanner) (*models.WebhookDeliveryAttempt, error) {
	var (
		attempt        models.WebhookDeliveryAttempt
		payload        []byte
		attemptedAt    sql.NullTime
		responseStatus sql.NullInt64
		leaseUntil     sql.NullTime
	)

	err := row.Scan(
		&attempt.ID,
		&attempt.DeliveryID,
		&attempt.WebhookID,
		&payload,
		&attempt.AttemptNumber,
		&attempt.ScheduledAt,
		&attemptedAt,
		&responseStatus,
		&attempt.Outcome,
		&attempt.Error,
		&leaseUntil,
	)
	if err != nil {
		return nil, err
	}

	attempt.Payload = payload

	if attemptedAt.Valid {
		attempt.AttemptedAt = &attemptedAt.Time
	}

	if responseStatus.Valid {
		status := int(responseStatus.Int64)
		attempt.ResponseStatus = &status
	}

	if leaseUntil.Valid {
		attempt.LeaseUntil = &leaseUntil.Time
	}

	return &attempt, nil
}
