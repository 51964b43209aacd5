package workflow

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dukex/drip/pkg/mocks"
	"github.com/dukex/drip/pkg/models"
	"github.com/dukex/drip/pkg/persistence"
	"github.com/dukex/drip/pkg/persistence/memory"
	"github.com/dukex/drip/pkg/protocol"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type staticStore struct {
	definitions map[string]*models.WorkflowDefinition
	goals       map[string][]*models.GoalDefinition
}

func (s *staticStore) WorkflowDefinition(_ context.Context, workflowID string, version int) (*models.WorkflowDefinition, error) {
	definition, ok := s.definitions[workflowID]
	if !ok || definition.Version != version {
		return nil, persistence.ErrDefinitionNotFound
	}

	return definition, nil
}

func (s *staticStore) CurrentDefinition(_ context.Context, workflowID string) (*models.WorkflowDefinition, error) {
	definition, ok := s.definitions[workflowID]
	if !ok {
		return nil, persistence.ErrDefinitionNotFound
	}

	return definition, nil
}

func (s *staticStore) ActiveGoals(_ context.Context, workflowID string) ([]*models.GoalDefinition, error) {
	return s.goals[workflowID], nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu          sync.Mutex
	transitions []models.RunState
}

func (n *recordingNotifier) StateChanged(_ context.Context, before, after *models.Enrollment, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if before.State != after.State {
		n.transitions = append(n.transitions, after.State)
	}
}

func (n *recordingNotifier) States() []models.RunState {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]models.RunState(nil), n.transitions...)
}

type harness struct {
	persistence  persistence.Persistence
	store        *staticStore
	clock        *testClock
	notifier     *recordingNotifier
	communicator *mocks.MockCommunicator
	crm          *mocks.MockCRM
	ledger       *Ledger
	executor     *Executor
	scheduler    *Scheduler
	goals        *GoalEvaluator
	router       *EventRouter
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newHarness(t *testing.T, definition *models.WorkflowDefinition, goals ...*models.GoalDefinition) *harness {
	t.Helper()

	h := &harness{
		persistence: memory.NewPersistence(),
		store: &staticStore{
			definitions: map[string]*models.WorkflowDefinition{definition.ID: definition},
			goals:       map[string][]*models.GoalDefinition{definition.ID: goals},
		},
		clock:        &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		notifier:     &recordingNotifier{},
		communicator: &mocks.MockCommunicator{},
		crm:          &mocks.MockCRM{},
	}

	logger := testLogger()

	h.ledger = NewLedger(h.persistence, h.store, h.notifier, logger).WithClock(h.clock.Now)
	h.executor = NewExecutor(h.ledger, h.persistence, h.store, protocol.Collaborators{
		Communicator: h.communicator,
		CRM:          h.crm,
	}, DefaultExecutorConfig(), logger)

	scheduler, err := NewScheduler(DefaultSchedulerConfig("worker-test"), h.persistence, h.ledger, h.executor, logger)
	require.NoError(t, err)

	h.scheduler = scheduler
	h.goals = NewGoalEvaluator(h.ledger, h.persistence, h.store, logger)
	h.router = NewEventRouter(h.ledger, h.persistence, h.goals, h.scheduler, logger)

	return h
}

// poll runs one scheduler pass and waits for the dispatched executions.
func (h *harness) poll(t *testing.T) int {
	t.Helper()

	claimed := h.scheduler.Poll(t.Context())
	h.scheduler.Wait()

	return claimed
}

func (h *harness) enroll(t *testing.T, workflowID string, contact map[string]any) *models.Enrollment {
	t.Helper()

	enrollment, err := h.ledger.Enroll(t.Context(), EnrollRequest{
		WorkflowID: workflowID,
		TenantID:   "tenant-1",
		ContactID:  "contact-1",
		Context:    map[string]any{"contact": contact},
	})
	require.NoError(t, err)

	return enrollment
}

func (h *harness) reload(t *testing.T, id string) *models.Enrollment {
	t.Helper()

	enrollment, err := h.ledger.Get(t.Context(), id)
	require.NoError(t, err)

	return enrollment
}

func (h *harness) records(t *testing.T, id string) []*models.ActionExecutionRecord {
	t.Helper()

	records, err := h.persistence.ExecutionRecordRepository().ByEnrollment(t.Context(), id)
	require.NoError(t, err)

	return records
}

func definitionOf(actions ...*models.ActionSpec) *models.WorkflowDefinition {
	for i, action := range actions {
		action.Position = i
	}

	return &models.WorkflowDefinition{
		ID:       "wf-1",
		TenantID: "tenant-1",
		Version:  1,
		Status:   models.WorkflowStatusActive,
		Actions:  actions,
	}
}

func sendEmail(id string) *models.ActionSpec {
	return &models.ActionSpec{ID: id, Type: models.ActionSendEmail, Config: map[string]any{
		"subject": "Hi {{contact.first_name}}",
		"body":    "Welcome aboard",
	}}
}

func waitTime(id string, amount float64, unit string) *models.ActionSpec {
	return &models.ActionSpec{ID: id, Type: models.ActionWaitTime, Config: map[string]any{
		"amount": amount,
		"unit":   unit,
	}}
}

func addTag(id, tag string) *models.ActionSpec {
	return &models.ActionSpec{ID: id, Type: models.ActionAddTag, Config: map[string]any{"tag_name": tag}}
}

var (
	anyArg   = mock.Anything
	okResult = &protocol.Result{}
)

func noCollaborators() protocol.Collaborators {
	return protocol.Collaborators{}
}
