// Package memory provides an in-process persistence implementation. It honours
// the same conditional-write and uniqueness contracts as the PostgreSQL store
// and is used by tests and single-process deployments.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dukex/drip/pkg/models"
	"github.com/dukex/drip/pkg/persistence"
)

// Persistence implements persistence.Persistence in memory.
type Persistence struct {
	mu sync.Mutex

	enrollments  map[string]*models.Enrollment
	records      []*models.ActionExecutionRecord
	achievements []*models.GoalAchievement
	deliveries   map[string]*models.WebhookDelivery
	attempts     []*models.WebhookDeliveryAttempt
}

func NewPersistence() *Persistence {
	return &Persistence{
		enrollments: make(map[string]*models.Enrollment),
		deliveries:  make(map[string]*models.WebhookDelivery),
	}
}

func (p *Persistence) EnrollmentRepository() persistence.EnrollmentRepository {
	return &enrollmentRepository{p: p}
}

func (p *Persistence) ExecutionRecordRepository() persistence.ExecutionRecordRepository {
	return &recordRepository{p: p}
}

func (p *Persistence) AchievementRepository() persistence.AchievementRepository {
	return &achievementRepository{p: p}
}

func (p *Persistence) DeliveryRepository() persistence.DeliveryRepository {
	return &deliveryRepository{p: p}
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

type enrollmentRepository struct {
	p *Persistence
}

func (r *enrollmentRepository) Create(_ context.Context, enrollment *models.Enrollment) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	for _, existing := range r.p.enrollments {
		if existing.WorkflowID == enrollment.WorkflowID &&
			existing.ContactID == enrollment.ContactID &&
			existing.State.IsActive() {
			return persistence.NewEnrollmentError("Create", existing.ID, persistence.ErrActiveEnrollmentExists)
		}
	}

	if _, ok := r.p.enrollments[enrollment.ID]; ok {
		return persistence.NewEnrollmentError("Create", enrollment.ID, persistence.ErrActiveEnrollmentExists)
	}

	r.p.enrollments[enrollment.ID] = enrollment.Clone()

	return nil
}

func (r *enrollmentRepository) GetByID(_ context.Context, id string) (*models.Enrollment, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	enrollment, ok := r.p.enrollments[id]
	if !ok {
		return nil, persistence.NewEnrollmentError("GetByID", id, persistence.ErrEnrollmentNotFound)
	}

	return enrollment.Clone(), nil
}

func (r *enrollmentRepository) Update(_ context.Context, next *models.Enrollment) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	current, ok := r.p.enrollments[next.ID]
	if !ok {
		return persistence.NewEnrollmentError("Update", next.ID, persistence.ErrEnrollmentNotFound)
	}

	if current.Version != next.Version-1 {
		return persistence.NewEnrollmentError("Update", next.ID, persistence.ErrVersionConflict)
	}

	r.p.enrollments[next.ID] = next.Clone()

	return nil
}

func (r *enrollmentRepository) Due(_ context.Context, now time.Time, limit int) ([]*models.Enrollment, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	due := make([]*models.Enrollment, 0)

	for _, enrollment := range r.p.enrollments {
		if enrollment.IsDue(now) {
			due = append(due, enrollment.Clone())
		}
	}

	slices.SortFunc(due, func(a, b *models.Enrollment) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	return due, nil
}

func (r *enrollmentRepository) ActiveByContact(_ context.Context, tenantID, contactID string) ([]*models.Enrollment, error) {
	return r.filter(func(e *models.Enrollment) bool {
		return e.TenantID == tenantID && e.ContactID == contactID && e.State.IsActive()
	}), nil
}

func (r *enrollmentRepository) WaitingForEvent(_ context.Context, tenantID, contactID, eventType string) ([]*models.Enrollment, error) {
	return r.filter(func(e *models.Enrollment) bool {
		return e.TenantID == tenantID && e.ContactID == contactID && e.IsWaitingFor(eventType)
	}), nil
}

func (r *enrollmentRepository) filter(keep func(*models.Enrollment) bool) []*models.Enrollment {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	matched := make([]*models.Enrollment, 0)

	for _, enrollment := range r.p.enrollments {
		if keep(enrollment) {
			matched = append(matched, enrollment.Clone())
		}
	}

	slices.SortFunc(matched, func(a, b *models.Enrollment) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return matched
}

type recordRepository struct {
	p *Persistence
}

func (r *recordRepository) Insert(_ context.Context, record *models.ActionExecutionRecord) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	for _, existing := range r.p.records {
		if existing.IdempotencyKey() == record.IdempotencyKey() {
			return persistence.NewEnrollmentError("InsertExecution", record.EnrollmentID, persistence.ErrDuplicateExecution)
		}
	}

	copied := *record
	r.p.records = append(r.p.records, &copied)

	return nil
}

func (r *recordRepository) Finish(_ context.Context, record *models.ActionExecutionRecord) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	for i, existing := range r.p.records {
		if existing.ID != record.ID {
			continue
		}

		if existing.IsFinished() {
			return persistence.NewEnrollmentError("FinishExecution", record.EnrollmentID, persistence.ErrRecordFinished)
		}

		copied := *record
		r.p.records[i] = &copied

		return nil
	}

	return persistence.NewEnrollmentError("FinishExecution", record.EnrollmentID, persistence.ErrEnrollmentNotFound)
}

func (r *recordRepository) AbandonUnfinished(_ context.Context, enrollmentID string, finishedAt time.Time, detail string) (int, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	closed := 0

	for i, existing := range r.p.records {
		if existing.EnrollmentID != enrollmentID || existing.IsFinished() {
			continue
		}

		copied := *existing
		copied.Status = models.ExecutionStatusFailed
		copied.FinishedAt = &finishedAt
		copied.ErrorKind = models.ErrorKindTransient
		copied.ErrorDetail = &detail
		r.p.records[i] = &copied
		closed++
	}

	return closed, nil
}

func (r *recordRepository) ByEnrollment(_ context.Context, enrollmentID string) ([]*models.ActionExecutionRecord, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	records := make([]*models.ActionExecutionRecord, 0)

	for _, record := range r.p.records {
		if record.EnrollmentID == enrollmentID {
			copied := *record
			records = append(records, &copied)
		}
	}

	return records, nil
}

type achievementRepository struct {
	p *Persistence
}

func (r *achievementRepository) Insert(_ context.Context, achievement *models.GoalAchievement) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	for _, existing := range r.p.achievements {
		if existing.EnrollmentID == achievement.EnrollmentID && existing.GoalID == achievement.GoalID {
			return persistence.NewEnrollmentError("InsertAchievement", achievement.EnrollmentID, persistence.ErrDuplicateAchievement)
		}
	}

	enrollment, ok := r.p.enrollments[achievement.EnrollmentID]
	if !ok || !enrollment.State.IsActive() {
		return persistence.NewEnrollmentError("InsertAchievement", achievement.EnrollmentID, persistence.ErrEnrollmentInactive)
	}

	copied := *achievement
	r.p.achievements = append(r.p.achievements, &copied)

	return nil
}

func (r *achievementRepository) ByEnrollment(_ context.Context, enrollmentID string) ([]*models.GoalAchievement, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	achievements := make([]*models.GoalAchievement, 0)

	for _, achievement := range r.p.achievements {
		if achievement.EnrollmentID == enrollmentID {
			copied := *achievement
			achievements = append(achievements, &copied)
		}
	}

	return achievements, nil
}
