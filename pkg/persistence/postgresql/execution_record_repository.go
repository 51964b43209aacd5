package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/drip/pkg/models"
	"github.com/dukex/drip/pkg/persistence"
)

const recordColumns = `id, enrollment_id, action_id, action_type, attempt, status, started_at, finished_at,
	error_kind, error_detail, output`

// ExecutionRecordRepository handles the append-only action attempt history.
type ExecutionRecordRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRecordRepository creates a new execution record repository.
func NewExecutionRecordRepository(db *sql.DB, logger *slog.Logger) *ExecutionRecordRepository {
	return &ExecutionRecordRepository{db: db, logger: logger}
}

// Insert appends an attempt row; the (enrollment, action, attempt) unique
// constraint rejects a second claimer of the same attempt.
func (r *ExecutionRecordRepository) Insert(ctx context.Context, record *models.ActionExecutionRecord) error {
	outputJSON, err := json.Marshal(record.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal record output: %w", err)
	}

	query := `INSERT INTO action_execution_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.db.ExecContext(ctx, query,
		record.ID,
		record.EnrollmentID,
		record.ActionID,
		record.ActionType,
		record.Attempt,
		record.Status,
		record.StartedAt,
		record.FinishedAt,
		record.ErrorKind,
		record.ErrorDetail,
		outputJSON,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewEnrollmentError("InsertExecution", record.EnrollmentID, persistence.ErrDuplicateExecution)
		}

		return fmt.Errorf("failed to insert execution record: %w", err)
	}

	return nil
}

// Finish stores the final status of a record whose finished_at is still unset.
func (r *ExecutionRecordRepository) Finish(ctx context.Context, record *models.ActionExecutionRecord) error {
	outputJSON, err := json.Marshal(record.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal record output: %w", err)
	}

	query := `
		UPDATE action_execution_records SET
			status = $2,
			finished_at = $3,
			error_kind = $4,
			error_detail = $5,
			output = $6
		WHERE id = $1 AND finished_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.Status,
		record.FinishedAt,
		record.ErrorKind,
		record.ErrorDetail,
		outputJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to finish execution record: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewEnrollmentError("FinishExecution", record.EnrollmentID, persistence.ErrRecordFinished)
	}

	return nil
}

// AbandonUnfinished closes the orphaned attempts of a crashed worker.
func (r *ExecutionRecordRepository) AbandonUnfinished(ctx context.Context, enrollmentID string, finishedAt time.Time, detail string) (int, error) {
	query := `
		UPDATE action_execution_records SET
			status = $2,
			finished_at = $3,
			error_kind = $4,
			error_detail = $5
		WHERE enrollment_id = $1 AND finished_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query,
		enrollmentID,
		models.ExecutionStatusFailed,
		finishedAt,
		models.ErrorKindTransient,
		detail,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to abandon execution records: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return int(affected), nil
}

// ByEnrollment returns every attempt of an enrollment in execution order.
func (r *ExecutionRecordRepository) ByEnrollment(ctx context.Context, enrollmentID string) ([]*models.ActionExecutionRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM action_execution_records
		WHERE enrollment_id = $1
		ORDER BY started_at ASC, attempt ASC`

	rows, err := r.db.QueryContext(ctx, query, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution records: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	records := make([]*models.ActionExecutionRecord, 0)

	for rows.Next() {
		var (
			record     models.ActionExecutionRecord
			startedAt  sql.NullTime
			finishedAt sql.NullTime
			detail     sql.NullString
			outputJSON []byte
		)

		err := rows.Scan(
			&record.ID,
			&record.EnrollmentID,
			&record.ActionID,
			&record.ActionType,
			&record.Attempt,
			&record.Status,
			&startedAt,
			&finishedAt,
			&record.ErrorKind,
			&detail,
			&outputJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution record: %w", err)
		}

		if startedAt.Valid {
			record.StartedAt = &startedAt.Time
		}

		if finishedAt.Valid {
			record.FinishedAt = &finishedAt.Time
		}

		if detail.Valid {
			record.ErrorDetail = &detail.String
		}

		if len(outputJSON) > 0 {
			err := json.Unmarshal(outputJSON, &record.Output)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal record output: %w", err)
			}
		}

		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution records: %w", err)
	}

	return records, nil
}
