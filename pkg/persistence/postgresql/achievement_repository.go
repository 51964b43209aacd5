package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukex/drip/pkg/models"
	"github.com/dukex/drip/pkg/persistence"
)

// AchievementRepository handles goal achievement database operations.
type AchievementRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAchievementRepository creates a new achievement repository.
func NewAchievementRepository(db *sql.DB, logger *slog.Logger) *AchievementRepository {
	return &AchievementRepository{db: db, logger: logger}
}

// Insert records an achievement, relying on the (enrollment_id, goal_id)
// unique constraint instead of a read-then-write check. The enrollment row is
// share-locked so a concurrent transition to a terminal state either commits
// first, and no row is inserted, or waits for the insert.
func (r *AchievementRepository) Insert(ctx context.Context, achievement *models.GoalAchievement) error {
	eventJSON, err := json.Marshal(achievement.Event)
	if err != nil {
		return fmt.Errorf("failed to marshal triggering event: %w", err)
	}

	query := `
		INSERT INTO goal_achievements (id, workflow_id, enrollment_id, contact_id, goal_id, achieved_at, event)
		SELECT $1, $2, $3, $4, $5, $6, $7
		WHERE EXISTS (
			SELECT 1 FROM enrollments
			WHERE id = $3 AND state IN ('running', 'waiting')
			FOR SHARE
		)
	`

	result, err := r.db.ExecContext(ctx, query,
		achievement.ID,
		achievement.WorkflowID,
		achievement.EnrollmentID,
		achievement.ContactID,
		achievement.GoalID,
		achievement.AchievedAt,
		eventJSON,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewEnrollmentError("InsertAchievement", achievement.EnrollmentID, persistence.ErrDuplicateAchievement)
		}

		return fmt.Errorf("failed to insert goal achievement: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read inserted rows: %w", err)
	}

	if inserted == 0 {
		return persistence.NewEnrollmentError("InsertAchievement", achievement.EnrollmentID, persistence.ErrEnrollmentInactive)
	}

	return nil
}

// ByEnrollment returns the achievements recorded for an enrollment.
func (r *AchievementRepository) ByEnrollment(ctx context.Context, enrollmentID string) ([]*models.GoalAchievement, error) {
	query := `
		SELECT id, workflow_id, enrollment_id, contact_id, goal_id, achieved_at, event
		FROM goal_achievements
		WHERE enrollment_id = $1
		ORDER BY achieved_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query goal achievements: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	achievements := make([]*models.GoalAchievement, 0)

	for rows.Next() {
		var (
			achievement models.GoalAchievement
			eventJSON   []byte
		)

		err := rows.Scan(
			&achievement.ID,
			&achievement.WorkflowID,
			&achievement.EnrollmentID,
			&achievement.ContactID,
			&achievement.GoalID,
			&achievement.AchievedAt,
			&eventJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan goal achievement: %w", err)
		}

		if len(eventJSON) > 0 {
			err := json.Unmarshal(eventJSON, &achievement.Event)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal triggering event: %w", err)
			}
		}

		achievements = append(achievements, &achievement)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating goal achievements: %w", err)
	}

	return achievements, nil
}
