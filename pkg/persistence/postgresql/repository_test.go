package postgresql_test

import (
	"database/sql"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dukex/drip/pkg/models"
	"github.com/dukex/drip/pkg/persistence"
	"github.com/dukex/drip/pkg/persistence/postgresql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPersistence(t *testing.T) (*postgresql.Persistence, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})

	return postgresql.New(db, slog.Default()), mock
}

func enrollmentRow(now time.Time, state models.RunState, wakeAt any) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "workflow_id", "definition_version", "tenant_id", "contact_id", "cursor_position",
		"state", "wake_at", "wait_event_type", "attempt", "lease_owner", "lease_until", "context",
		"last_error", "created_at", "updated_at", "version",
	}).AddRow(
		"enr-1", "wf-1", 3, "tenant-1", "contact-1", 1,
		string(state), wakeAt, "", 1, "", nil, []byte(`{"contact":{"first_name":"Ada"}}`),
		"", now, now, int64(4),
	)
}

func TestEnrollmentRepository_CreateMapsUniqueViolation(t *testing.T) {
	p, mock := newMockPersistence(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := p.EnrollmentRepository().Create(t.Context(), &models.Enrollment{ID: "enr-2", WorkflowID: "wf-1", ContactID: "contact-1"})
	assert.True(t, persistence.IsActiveEnrollmentExists(err))
}

func TestEnrollmentRepository_UpdateVersionGuard(t *testing.T) {
	now := time.Now().UTC()
	next := &models.Enrollment{ID: "enr-1", Cursor: 2, State: models.RunStateRunning, UpdatedAt: now, Version: 5}

	t.Run("applies when version matches", func(t *testing.T) {
		p, mock := newMockPersistence(t)

		mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET")).
			WithArgs("enr-1", 2, models.RunStateRunning, sqlmock.AnyArg(), "", 0, "", sqlmock.AnyArg(),
				sqlmock.AnyArg(), "", now, int64(5), int64(4)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, p.EnrollmentRepository().Update(t.Context(), next))
	})

	t.Run("conflict when another writer advanced", func(t *testing.T) {
		p, mock := newMockPersistence(t)

		mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM enrollments WHERE id = $1)")).
			WithArgs("enr-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		err := p.EnrollmentRepository().Update(t.Context(), next)
		assert.True(t, persistence.IsVersionConflict(err))
	})

	t.Run("not found when row is missing", func(t *testing.T) {
		p, mock := newMockPersistence(t)

		mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		err := p.EnrollmentRepository().Update(t.Context(), next)
		assert.True(t, persistence.IsEnrollmentNotFound(err))
	})
}

func TestEnrollmentRepository_GetByID(t *testing.T) {
	now := time.Now().UTC()

	t.Run("scans nullable columns and context", func(t *testing.T) {
		p, mock := newMockPersistence(t)

		mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE id = $1")).
			WithArgs("enr-1").
			WillReturnRows(enrollmentRow(now, models.RunStateWaiting, now.Add(time.Hour)))

		enrollment, err := p.EnrollmentRepository().GetByID(t.Context(), "enr-1")
		require.NoError(t, err)

		assert.Equal(t, models.RunStateWaiting, enrollment.State)
		require.NotNil(t, enrollment.WakeAt)
		assert.Nil(t, enrollment.LeaseUntil)
		assert.Equal(t, int64(4), enrollment.Version)
		assert.Equal(t, map[string]any{"first_name": "Ada"}, enrollment.Context["contact"])
	})

	t.Run("missing row", func(t *testing.T) {
		p, mock := newMockPersistence(t)

		mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE id = $1")).
			WillReturnError(sql.ErrNoRows)

		_, err := p.EnrollmentRepository().GetByID(t.Context(), "missing")
		assert.True(t, persistence.IsEnrollmentNotFound(err))
	})
}

func TestEnrollmentRepository_Due(t *testing.T) {
	p, mock := newMockPersistence(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("state = 'waiting' AND wake_at IS NOT NULL AND wake_at <= $1")).
		WithArgs(now, 10).
		WillReturnRows(enrollmentRow(now, models.RunStateRunning, nil))

	due, err := p.EnrollmentRepository().Due(t.Context(), now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Nil(t, due[0].WakeAt)
}

func TestExecutionRecordRepository_InsertAndFinish(t *testing.T) {
	now := time.Now().UTC()
	record := &models.ActionExecutionRecord{
		ID: "rec-1", EnrollmentID: "enr-1", ActionID: "act-1", ActionType: models.ActionSendEmail,
		Attempt: 1, Status: models.ExecutionStatusRunning, StartedAt: &now,
	}

	t.Run("duplicate attempt", func(t *testing.T) {
		p, mock := newMockPersistence(t)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO action_execution_records")).
			WillReturnError(&pq.Error{Code: "23505"})

		err := p.ExecutionRecordRepository().Insert(t.Context(), record)
		assert.ErrorIs(t, err, persistence.ErrDuplicateExecution)
	})

	t.Run("finish only once", func(t *testing.T) {
		p, mock := newMockPersistence(t)

		mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND finished_at IS NULL")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := p.ExecutionRecordRepository().Finish(t.Context(), record)
		assert.ErrorIs(t, err, persistence.ErrRecordFinished)
	})

	t.Run("abandon unfinished", func(t *testing.T) {
		p, mock := newMockPersistence(t)

		mock.ExpectExec(regexp.QuoteMeta("WHERE enrollment_id = $1 AND finished_at IS NULL")).
			WithArgs("enr-1", models.ExecutionStatusFailed, now, models.ErrorKindTransient, "lease expired").
			WillReturnResult(sqlmock.NewResult(0, 2))

		closed, err := p.ExecutionRecordRepository().AbandonUnfinished(t.Context(), "enr-1", now, "lease expired")
		require.NoError(t, err)
		assert.Equal(t, 2, closed)
	})
}

func TestAchievementRepository_DuplicateIsRejected(t *testing.T) {
	p, mock := newMockPersistence(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO goal_achievements")).
		WillReturnError(&pq.Error{Code: "23505"})

	err := p.AchievementRepository().Insert(t.Context(), &models.GoalAchievement{
		ID: "ach-2", EnrollmentID: "enr-1", GoalID: "goal-1", AchievedAt: time.Now(),
	})
	assert.True(t, persistence.IsDuplicateAchievement(err))
}

func TestAchievementRepository_InsertRequiresActiveEnrollment(t *testing.T) {
	p, mock := newMockPersistence(t)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $3 AND state IN ('running', 'waiting')")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := p.AchievementRepository().Insert(t.Context(), &models.GoalAchievement{
		ID: "ach-3", EnrollmentID: "enr-1", GoalID: "goal-1", AchievedAt: time.Now(),
	})
	assert.True(t, persistence.IsEnrollmentInactive(err))
}

func TestDeliveryRepository_CreateDeliveryIsTransactional(t *testing.T) {
	p, mock := newMockPersistence(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO webhook_deliveries")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO webhook_delivery_attempts")).WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := p.DeliveryRepository().CreateDelivery(t.Context(),
		&models.WebhookDelivery{ID: "dlv-1", Payload: []byte(`{}`), Status: models.DeliveryStatusPending, CreatedAt: now, UpdatedAt: now},
		&models.WebhookDeliveryAttempt{ID: "att-1", DeliveryID: "dlv-1", Payload: []byte(`{}`), AttemptNumber: 1, ScheduledAt: now, Outcome: models.DeliveryOutcomePending},
	)
	assert.ErrorIs(t, err, persistence.ErrDuplicateAttempt)
}

func TestDeliveryRepository_FinishAttemptOnlyWhilePending(t *testing.T) {
	p, mock := newMockPersistence(t)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND outcome = 'pending'")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := p.DeliveryRepository().FinishAttempt(t.Context(), &models.WebhookDeliveryAttempt{ID: "att-1", DeliveryID: "dlv-1"})
	assert.ErrorIs(t, err, persistence.ErrAttemptFinished)
}
