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

const enrollmentColumns = `id, workflow_id, definition_version, tenant_id, contact_id, cursor_position,
	state, wake_at, wait_event_type, attempt, lease_owner, lease_until, context, last_error,
	created_at, updated_at, version`

// EnrollmentRepository handles enrollment ledger database operations.
type EnrollmentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewEnrollmentRepository creates a new enrollment repository.
func NewEnrollmentRepository(db *sql.DB, logger *slog.Logger) *EnrollmentRepository {
	return &EnrollmentRepository{db: db, logger: logger}
}

// Create inserts a new enrollment. The partial unique index on active
// enrollments rejects a second running or waiting row for the same pair.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	contextJSON, err := json.Marshal(enrollment.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal enrollment context: %w", err)
	}

	query := `INSERT INTO enrollments (` + enrollmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err = r.db.ExecContext(ctx, query,
		enrollment.ID,
		enrollment.WorkflowID,
		enrollment.DefinitionVersion,
		enrollment.TenantID,
		enrollment.ContactID,
		enrollment.Cursor,
		enrollment.State,
		enrollment.WakeAt,
		enrollment.WaitEventType,
		enrollment.Attempt,
		enrollment.LeaseOwner,
		enrollment.LeaseUntil,
		contextJSON,
		enrollment.LastError,
		enrollment.CreatedAt,
		enrollment.UpdatedAt,
		enrollment.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewEnrollmentError("Create", enrollment.ID, persistence.ErrActiveEnrollmentExists)
		}

		return fmt.Errorf("failed to insert enrollment: %w", err)
	}

	return nil
}

// GetByID retrieves an enrollment by its ID.
func (r *EnrollmentRepository) GetByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`

	enrollment, err := scanEnrollment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEnrollmentError("GetByID", id, persistence.ErrEnrollmentNotFound)
		}

		return nil, fmt.Errorf("failed to scan enrollment: %w", err)
	}

	return enrollment, nil
}

// Update applies next only while the stored version equals next.Version-1.
func (r *EnrollmentRepository) Update(ctx context.Context, next *models.Enrollment) error {
	contextJSON, err := json.Marshal(next.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal enrollment context: %w", err)
	}

	query := `
		UPDATE enrollments SET
			cursor_position = $2,
			state = $3,
			wake_at = $4,
			wait_event_type = $5,
			attempt = $6,
			lease_owner = $7,
			lease_until = $8,
			context = $9,
			last_error = $10,
			updated_at = $11,
			version = $12
		WHERE id = $1 AND version = $13
	`

	result, err := r.db.ExecContext(ctx, query,
		next.ID,
		next.Cursor,
		next.State,
		next.WakeAt,
		next.WaitEventType,
		next.Attempt,
		next.LeaseOwner,
		next.LeaseUntil,
		contextJSON,
		next.LastError,
		next.UpdatedAt,
		next.Version,
		next.Version-1,
	)
	if err != nil {
		return fmt.Errorf("failed to update enrollment: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 1 {
		return nil
	}

	var exists bool

	err = r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM enrollments WHERE id = $1)", next.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check enrollment existence: %w", err)
	}

	if !exists {
		return persistence.NewEnrollmentError("Update", next.ID, persistence.ErrEnrollmentNotFound)
	}

	return persistence.NewEnrollmentError("Update", next.ID, persistence.ErrVersionConflict)
}

// Due returns enrollments that are running without a live lease or waiting past wake_at.
func (r *EnrollmentRepository) Due(ctx context.Context, now time.Time, limit int) ([]*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments
		WHERE (state = 'running' AND (lease_until IS NULL OR lease_until <= $1))
		   OR (state = 'waiting' AND wake_at IS NOT NULL AND wake_at <= $1)
		ORDER BY updated_at ASC
		LIMIT $2`

	return r.query(ctx, query, now, limit)
}

// ActiveByContact returns the running and waiting enrollments of a contact.
func (r *EnrollmentRepository) ActiveByContact(ctx context.Context, tenantID, contactID string) ([]*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments
		WHERE tenant_id = $1 AND contact_id = $2 AND state IN ('running', 'waiting')
		ORDER BY created_at ASC`

	return r.query(ctx, query, tenantID, contactID)
}

// WaitingForEvent returns the enrollments of a contact suspended on eventType.
func (r *EnrollmentRepository) WaitingForEvent(ctx context.Context, tenantID, contactID, eventType string) ([]*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments
		WHERE tenant_id = $1 AND contact_id = $2 AND state = 'waiting' AND wait_event_type = $3
		ORDER BY created_at ASC`

	return r.query(ctx, query, tenantID, contactID, eventType)
}

func (r *EnrollmentRepository) query(ctx context.Context, query string, args ...any) ([]*models.Enrollment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollments: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	enrollments := make([]*models.Enrollment, 0)

	for rows.Next() {
		enrollment, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}

		enrollments = append(enrollments, enrollment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating enrollments: %w", err)
	}

	return enrollments, nil
}

func scanEnrollment(row scanner) (*models.Enrollment, error) {
	var (
		enrollment  models.Enrollment
		wakeAt      sql.NullTime
		leaseUntil  sql.NullTime
		contextJSON []byte
	)

	err := row.Scan(
		&enrollment.ID,
		&enrollment.WorkflowID,
		&enrollment.DefinitionVersion,
		&enrollment.TenantID,
		&enrollment.ContactID,
		&enrollment.Cursor,
		&enrollment.State,
		&wakeAt,
		&enrollment.WaitEventType,
		&enrollment.Attempt,
		&enrollment.LeaseOwner,
		&leaseUntil,
		&contextJSON,
		&enrollment.LastError,
		&enrollment.CreatedAt,
		&enrollment.UpdatedAt,
		&enrollment.Version,
	)
	if err != nil {
		return nil, err
	}

	if wakeAt.Valid {
		enrollment.WakeAt = &wakeAt.Time
	}

	if leaseUntil.Valid {
		enrollment.LeaseUntil = &leaseUntil.Time
	}

	if len(contextJSON) > 0 {
		err := json.Unmarshal(contextJSON, &enrollment.Context)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal enrollment context: %w", err)
		}
	}

	return &enrollment, nil
}
