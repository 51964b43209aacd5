package workflow

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/drip/pkg/models"
	"github.com/dukex/drip/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_Enroll(t *testing.T) {
	h := newHarness(t, definitionOf(addTag("tag", "vip")))

	enrollment := h.enroll(t, "wf-1", map[string]any{"first_name": "Ada"})

	assert.NotEmpty(t, enrollment.ID)
	assert.Equal(t, models.CursorNotStarted, enrollment.Cursor)
	assert.Equal(t, models.RunStateRunning, enrollment.State)
	assert.Equal(t, 1, enrollment.DefinitionVersion)
	assert.Equal(t, int64(1), enrollment.Version)
	assert.True(t, enrollment.IsDue(h.clock.Now()))
}

func TestLedger_Enroll_RejectsSecondActiveEnrollment(t *testing.T) {
	h := newHarness(t, definitionOf(addTag("tag", "vip")))

	h.enroll(t, "wf-1", nil)

	_, err := h.ledger.Enroll(t.Context(), EnrollRequest{WorkflowID: "wf-1", TenantID: "tenant-1", ContactID: "contact-1"})
	assert.ErrorIs(t, err, persistence.ErrActiveEnrollmentExists)
}

func TestLedger_Enroll_AllowsReenrollmentAfterTerminal(t *testing.T) {
	h := newHarness(t, definitionOf(addTag("tag", "vip")))

	first := h.enroll(t, "wf-1", nil)

	_, err := h.ledger.Cancel(t.Context(), first.ID, "")
	require.NoError(t, err)

	second := h.enroll(t, "wf-1", nil)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestLedger_Enroll_Rejections(t *testing.T) {
	draft := definitionOf(addTag("tag", "vip"))
	draft.Status = models.WorkflowStatusDraft

	h := newHarness(t, draft)

	_, err := h.ledger.Enroll(t.Context(), EnrollRequest{WorkflowID: "wf-1", TenantID: "tenant-1", ContactID: "c"})
	assert.ErrorIs(t, err, ErrWorkflowNotActive)

	_, err = h.ledger.Enroll(t.Context(), EnrollRequest{WorkflowID: "missing", TenantID: "tenant-1", ContactID: "c"})
	assert.ErrorIs(t, err, persistence.ErrDefinitionNotFound)

	_, err = h.ledger.Enroll(t.Context(), EnrollRequest{WorkflowID: "wf-1", TenantID: "tenant-1"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestLedger_Enroll_OtherTenant(t *testing.T) {
	h := newHarness(t, definitionOf(addTag("tag", "vip")))

	_, err := h.ledger.Enroll(t.Context(), EnrollRequest{WorkflowID: "wf-1", TenantID: "tenant-2", ContactID: "c"})
	assert.ErrorIs(t, err, persistence.ErrDefinitionNotFound)
}

func TestLedger_Cancel(t *testing.T) {
	h := newHarness(t, definitionOf(waitTime("pause", 1, "days"), addTag("tag", "vip")))

	enrollment := h.enroll(t, "wf-1", nil)
	h.poll(t)
	require.Equal(t, models.RunStateWaiting, h.reload(t, enrollment.ID).State)

	cancelled, err := h.ledger.Cancel(t.Context(), enrollment.ID, "operator request")
	require.NoError(t, err)
	assert.Equal(t, models.RunStateCancelled, cancelled.State)
	assert.Nil(t, cancelled.WakeAt)

	_, err = h.ledger.Cancel(t.Context(), enrollment.ID, "")
	assert.True(t, IsEnrollmentTerminal(err))

	h.clock.Advance(48 * time.Hour)
	assert.Equal(t, 0, h.poll(t))
}

func TestLedger_Cancel_NotFound(t *testing.T) {
	h := newHarness(t, definitionOf())

	_, err := h.ledger.Cancel(t.Context(), "missing", "")
	assert.True(t, persistence.IsEnrollmentNotFound(err))
}

func TestLedger_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	h := newHarness(t, definitionOf(addTag("tag", "vip")))

	enrollment := h.enroll(t, "wf-1", nil)

	const claimers = 10

	var (
		wins      atomic.Int32
		conflicts atomic.Int32
		wg        sync.WaitGroup
	)

	for i := range claimers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := h.ledger.Claim(t.Context(), enrollment, "worker-"+string(rune('a'+i)), time.Minute)
			switch {
			case err == nil:
				wins.Add(1)
			case persistence.IsVersionConflict(err):
				conflicts.Add(1)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(claimers-1), conflicts.Load())

	current := h.reload(t, enrollment.ID)
	assert.Equal(t, 0, current.Cursor)
	assert.Equal(t, 1, current.Attempt)
	assert.Equal(t, int64(2), current.Version)
}

func TestLedger_Claim_NotDue(t *testing.T) {
	h := newHarness(t, definitionOf(addTag("tag", "vip")))

	enrollment := h.enroll(t, "wf-1", nil)

	claimed, err := h.ledger.Claim(t.Context(), enrollment, "worker-a", time.Minute)
	require.NoError(t, err)

	_, err = h.ledger.Claim(t.Context(), claimed, "worker-b", time.Minute)
	assert.ErrorIs(t, err, ErrNotDue)
}

func TestLedger_ExpiredLeaseIsReclaimed(t *testing.T) {
	h := newHarness(t, definitionOf(addTag("tag", "vip")))
	h.crm.On("AddTag", anyArg, anyArg).Return(okResult, nil).Once()

	enrollment := h.enroll(t, "wf-1", nil)

	claimed, err := h.ledger.Claim(t.Context(), enrollment, "crashed-worker", 5*time.Minute)
	require.NoError(t, err)

	startedAt := h.clock.Now()
	require.NoError(t, h.persistence.ExecutionRecordRepository().Insert(t.Context(), &models.ActionExecutionRecord{
		ID:           "orphan",
		EnrollmentID: claimed.ID,
		ActionID:     "tag",
		ActionType:   models.ActionAddTag,
		Attempt:      claimed.Attempt,
		Status:       models.ExecutionStatusRunning,
		StartedAt:    &startedAt,
	}))

	h.clock.Advance(time.Minute)
	assert.Equal(t, 0, h.poll(t))

	h.clock.Advance(5 * time.Minute)
	assert.Equal(t, 1, h.poll(t))

	current := h.reload(t, enrollment.ID)
	assert.Equal(t, models.RunStateSucceeded, current.State)

	records := h.records(t, enrollment.ID)
	require.Len(t, records, 2)
	assert.Equal(t, models.ExecutionStatusFailed, records[0].Status)
	require.NotNil(t, records[0].ErrorDetail)
	assert.Equal(t, "lease expired", *records[0].ErrorDetail)
	assert.Equal(t, 2, records[1].Attempt)
	assert.Equal(t, models.ExecutionStatusSucceeded, records[1].Status)
}

func TestLedger_TransitionRejectsStaleVersion(t *testing.T) {
	h := newHarness(t, definitionOf(addTag("tag", "vip")))

	enrollment := h.enroll(t, "wf-1", nil)

	_, err := h.ledger.Transition(t.Context(), enrollment, "first", func(next *models.Enrollment) {
		next.Cursor = 0
	})
	require.NoError(t, err)

	_, err = h.ledger.Transition(t.Context(), enrollment, "stale", func(next *models.Enrollment) {
		next.State = models.RunStateFailed
	})
	assert.True(t, persistence.IsVersionConflict(err))
	assert.Equal(t, models.RunStateRunning, h.reload(t, enrollment.ID).State)
}

func TestLedger_TransitionRejectsCursorRewind(t *testing.T) {
	h := newHarness(t, definitionOf(addTag("tag", "vip")))

	enrollment := h.enroll(t, "wf-1", nil)

	advanced, err := h.ledger.Transition(t.Context(), enrollment, "advance", func(next *models.Enrollment) {
		next.Cursor = 1
	})
	require.NoError(t, err)

	_, err = h.ledger.Transition(t.Context(), advanced, "rewind", func(next *models.Enrollment) {
		next.Cursor = 0
	})
	assert.Error(t, err)
	assert.Equal(t, 1, h.reload(t, enrollment.ID).Cursor)
}
