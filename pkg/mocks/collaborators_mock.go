package mocks

import (
	"context"

	"github.com/dukex/drip/pkg/models"
	"github.com/dukex/drip/pkg/protocol"
	"github.com/stretchr/testify/mock"
)

func resultOf(args mock.Arguments) (*protocol.Result, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*protocol.Result), args.Error(1)
}

// MockCommunicator is a mock implementation of protocol.Communicator.
type MockCommunicator struct {
	mock.Mock
}

func (m *MockCommunicator) SendEmail(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return resultOf(m.Called(ctx, call))
}

func (m *MockCommunicator) SendSMS(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return resultOf(m.Called(ctx, call))
}

func (m *MockCommunicator) SendVoicemail(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return resultOf(m.Called(ctx, call))
}

func (m *MockCommunicator) SendMessenger(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return resultOf(m.Called(ctx, call))
}

func (m *MockCommunicator) MakeCall(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return resultOf(m.Called(ctx, call))
}

// MockCRM is a mock implementation of protocol.CRM.
type MockCRM struct {
	mock.Mock
}

func (m *MockCRM) CreateContact(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return resultOf(m.Called(ctx, call))
}

func (m *MockCRM) UpdateContact(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return resultOf(m.Called(ctx, call))
}

func (m *MockCRM) AddTag(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return resultOf(m.Called(ctx, call))
}

func (m *MockCRM) RemoveTag(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return resultOf(m.Called(ctx, call))
}

func (m *MockCRM) AddToCampaign(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return resultOf(m.Called(ctx, call))
}

func (m *MockCRM) RemoveFromCampaign(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return resultOf(m.Called(ctx, call))
}

func (m *MockCRM) MovePipelineStage(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return resultOf(m.Called(ctx, call))
}

func (m *MockCRM) AssignUser(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return resultOf(m.Called(ctx, call))
}

func (m *MockCRM) CreateTask(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return resultOf(m.Called(ctx, call))
}

func (m *MockCRM) AddNote(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return resultOf(m.Called(ctx, call))
}

// MockInternal is a mock implementation of protocol.Internal.
type MockInternal struct {
	mock.Mock
}

func (m *MockInternal) SendNotification(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return resultOf(m.Called(ctx, call))
}

func (m *MockInternal) CreateOpportunity(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return resultOf(m.Called(ctx, call))
}

func (m *MockInternal) RunCustomCode(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return resultOf(m.Called(ctx, call))
}

// MockMembership is a mock implementation of protocol.Membership.
type MockMembership struct {
	mock.Mock
}

func (m *MockMembership) GrantCourseAccess(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return resultOf(m.Called(ctx, call))
}

func (m *MockMembership) RevokeCourseAccess(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return resultOf(m.Called(ctx, call))
}

// MockWebhookEnqueuer is a mock implementation of protocol.WebhookEnqueuer.
type MockWebhookEnqueuer struct {
	mock.Mock
}

func (m *MockWebhookEnqueuer) Enqueue(ctx context.Context, webhook models.Webhook, payload []byte, enrollmentID string) (*models.WebhookDelivery, error) {
	args := m.Called(ctx, webhook, payload, enrollmentID)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WebhookDelivery), args.Error(1)
}
