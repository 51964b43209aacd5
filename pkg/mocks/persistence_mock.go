package mocks

import (
	"context"
	"time"

	"github.com/dukex/drip/pkg/models"
	"github.com/dukex/drip/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock
}

func (m *MockPersistence) EnrollmentRepository() persistence.EnrollmentRepository {
	args := m.Called()

	return args.Get(0).(persistence.EnrollmentRepository)
}

func (m *MockPersistence) ExecutionRecordRepository() persistence.ExecutionRecordRepository {
	args := m.Called()

	return args.Get(0).(persistence.ExecutionRecordRepository)
}

func (m *MockPersistence) AchievementRepository() persistence.AchievementRepository {
	args := m.Called()

	return args.Get(0).(persistence.AchievementRepository)
}

func (m *MockPersistence) DeliveryRepository() persistence.DeliveryRepository {
	args := m.Called()

	return args.Get(0).(persistence.DeliveryRepository)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// MockEnrollmentRepository is a mock implementation of persistence.EnrollmentRepository interface.
type MockEnrollmentRepository struct {
	mock.Mock
}

func enrollmentOf(args mock.Arguments) (*models.Enrollment, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Enrollment), args.Error(1)
}

func enrollmentsOf(args mock.Arguments) ([]*models.Enrollment, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Enrollment), args.Error(1)
}

func (m *MockEnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	args := m.Called(ctx, enrollment)

	return args.Error(0)
}

func (m *MockEnrollmentRepository) GetByID(ctx context.Context, id string) (*models.Enrollment, error) {
	return enrollmentOf(m.Called(ctx, id))
}

func (m *MockEnrollmentRepository) Update(ctx context.Context, next *models.Enrollment) error {
	args := m.Called(ctx, next)

	return args.Error(0)
}

func (m *MockEnrollmentRepository) Due(ctx context.Context, now time.Time, limit int) ([]*models.Enrollment, error) {
	return enrollmentsOf(m.Called(ctx, now, limit))
}

func (m *MockEnrollmentRepository) ActiveByContact(ctx context.Context, tenantID, contactID string) ([]*models.Enrollment, error) {
	return enrollmentsOf(m.Called(ctx, tenantID, contactID))
}

func (m *MockEnrollmentRepository) WaitingForEvent(ctx context.Context, tenantID, contactID, eventType string) ([]*models.Enrollment, error) {
	return enrollmentsOf(m.Called(ctx, tenantID, contactID, eventType))
}

// MockDefinitionStore is a mock implementation of definitions.Store interface.
type MockDefinitionStore struct {
	mock.Mock
}

func definitionOf(args mock.Arguments) (*models.WorkflowDefinition, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowDefinition), args.Error(1)
}

func (m *MockDefinitionStore) WorkflowDefinition(ctx context.Context, workflowID string, version int) (*models.WorkflowDefinition, error) {
	return definitionOf(m.Called(ctx, workflowID, version))
}

func (m *MockDefinitionStore) CurrentDefinition(ctx context.Context, workflowID string) (*models.WorkflowDefinition, error) {
	return definitionOf(m.Called(ctx, workflowID))
}

func (m *MockDefinitionStore) ActiveGoals(ctx context.Context, workflowID string) ([]*models.GoalDefinition, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.GoalDefinition), args.Error(1)
}
