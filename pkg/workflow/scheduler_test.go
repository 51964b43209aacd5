package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukex/drip/pkg/mocks"
	"github.com/dukex/drip/pkg/models"
	"github.com/dukex/drip/pkg/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewScheduler_ValidatesConfig(t *testing.T) {
	h := newHarness(t, definitionOf())

	tests := map[string]func(*SchedulerConfig){
		"missing worker id": func(c *SchedulerConfig) { c.WorkerID = "" },
		"zero interval":     func(c *SchedulerConfig) { c.PollInterval = 0 },
		"zero batch":        func(c *SchedulerConfig) { c.BatchSize = 0 },
		"zero concurrency":  func(c *SchedulerConfig) { c.Concurrency = 0 },
		"zero lease":        func(c *SchedulerConfig) { c.Lease = 0 },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			config := DefaultSchedulerConfig("worker-1")
			mutate(&config)

			_, err := NewScheduler(config, h.persistence, h.ledger, h.executor, testLogger())
			assert.Error(t, err)
		})
	}
}

func TestScheduler_WakeAtBoundary(t *testing.T) {
	h := newHarness(t, definitionOf(waitTime("pause", 5, "seconds"), addTag("tag", "x")))
	h.crm.On("AddTag", anyArg, anyArg).Return(okResult, nil).Once()

	enrollment := h.enroll(t, "wf-1", nil)
	h.poll(t)
	require.Equal(t, models.RunStateWaiting, h.reload(t, enrollment.ID).State)

	h.clock.Advance(4*time.Second + 999*time.Millisecond)
	assert.Equal(t, 0, h.poll(t))

	h.clock.Advance(time.Millisecond)
	assert.Equal(t, 1, h.poll(t))
	assert.Equal(t, models.RunStateSucceeded, h.reload(t, enrollment.ID).State)
}

func TestScheduler_RunClaimsWithinLatencyBound(t *testing.T) {
	p := memory.NewPersistence()
	store := &staticStore{definitions: map[string]*models.WorkflowDefinition{
		"wf-1": definitionOf(waitTime("pause", 0.2, "seconds")),
	}}

	logger := testLogger()
	ledger := NewLedger(p, store, nil, logger)
	executor := NewExecutor(ledger, p, store, noCollaborators(), DefaultExecutorConfig(), logger)

	config := DefaultSchedulerConfig("worker-run")
	config.PollInterval = 20 * time.Millisecond

	scheduler, err := NewScheduler(config, p, ledger, executor, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)

	go func() { done <- scheduler.Run(ctx) }()

	enrollment, err := ledger.Enroll(ctx, EnrollRequest{WorkflowID: "wf-1", TenantID: "tenant-1", ContactID: "c-1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		current, err := ledger.Get(ctx, enrollment.ID)

		return err == nil && current.State == models.RunStateWaiting
	}, time.Second, 5*time.Millisecond)

	waiting, err := ledger.Get(ctx, enrollment.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		current, err := ledger.Get(ctx, enrollment.ID)

		return err == nil && current.State == models.RunStateSucceeded
	}, time.Second, 5*time.Millisecond)

	finished, err := ledger.Get(ctx, enrollment.ID)
	require.NoError(t, err)
	assert.False(t, finished.UpdatedAt.Before(*waiting.WakeAt))

	cancel()
	assert.NoError(t, <-done)
}

func TestScheduler_NudgeTriggersPoll(t *testing.T) {
	p := memory.NewPersistence()
	store := &staticStore{definitions: map[string]*models.WorkflowDefinition{"wf-1": definitionOf()}}

	logger := testLogger()
	ledger := NewLedger(p, store, nil, logger)
	executor := NewExecutor(ledger, p, store, noCollaborators(), DefaultExecutorConfig(), logger)

	config := DefaultSchedulerConfig("worker-nudge")
	config.PollInterval = time.Hour

	scheduler, err := NewScheduler(config, p, ledger, executor, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	go func() { _ = scheduler.Run(ctx) }()

	enrollment, err := ledger.Enroll(ctx, EnrollRequest{WorkflowID: "wf-1", TenantID: "tenant-1", ContactID: "c-1"})
	require.NoError(t, err)

	scheduler.Nudge()

	require.Eventually(t, func() bool {
		current, err := ledger.Get(ctx, enrollment.ID)

		return err == nil && current.State == models.RunStateSucceeded
	}, time.Second, 5*time.Millisecond)
}

func TestScheduler_ConcurrentSchedulersExecuteOnce(t *testing.T) {
	h := newHarness(t, definitionOf(addTag("tag", "x")))
	h.crm.On("AddTag", anyArg, anyArg).Return(okResult, nil).Once()

	second, err := NewScheduler(DefaultSchedulerConfig("worker-other"), h.persistence, h.ledger, h.executor, testLogger())
	require.NoError(t, err)

	enrollment := h.enroll(t, "wf-1", nil)

	start := make(chan struct{})
	results := make(chan int, 2)

	for _, scheduler := range []*Scheduler{h.scheduler, second} {
		go func() {
			<-start
			results <- scheduler.Poll(t.Context())
		}()
	}

	close(start)

	total := <-results + <-results
	h.scheduler.Wait()
	second.Wait()

	assert.Equal(t, 1, total)
	assert.Equal(t, models.RunStateSucceeded, h.reload(t, enrollment.ID).State)
	assert.Len(t, h.records(t, enrollment.ID), 1)
	h.crm.AssertNumberOfCalls(t, "AddTag", 1)
}

func TestScheduler_PollSurvivesListingFailure(t *testing.T) {
	h := newHarness(t, definitionOf())

	enrollments := &mocks.MockEnrollmentRepository{}
	enrollments.On("Due", mock.Anything, mock.Anything, 50).Return(nil, errors.New("connection reset")).Once()

	p := &mocks.MockPersistence{}
	p.On("EnrollmentRepository").Return(enrollments)

	scheduler, err := NewScheduler(DefaultSchedulerConfig("worker-1"), p, h.ledger, h.executor, testLogger())
	require.NoError(t, err)

	assert.Equal(t, 0, scheduler.Poll(t.Context()))
	enrollments.AssertExpectations(t)
}

func TestScheduler_PanicLeavesEnrollmentForLeaseExpiry(t *testing.T) {
	h := newHarness(t, definitionOf(addTag("tag", "vip")))

	h.crm.On("AddTag", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		panic("collaborator bug")
	}).Once()

	enrollment := h.enroll(t, "wf-1", nil)

	require.NotPanics(t, func() { h.poll(t) })

	current := h.reload(t, enrollment.ID)
	assert.Equal(t, models.RunStateRunning, current.State)
	assert.NotNil(t, current.LeaseUntil)
}
