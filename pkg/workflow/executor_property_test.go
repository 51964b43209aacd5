//go:build property
// +build property

package workflow

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dukex/drip/pkg/models"
	"github.com/dukex/drip/pkg/protocol"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

const (
	outcomeOK = iota
	outcomeTransient
	outcomeTerminal
)

// TestEnrollmentProgressProperties drives random workflows through random
// collaborator outcomes.
// Property: the cursor never decreases, every (action, attempt) pair is
// recorded once, and the enrollment always reaches a terminal state.
func TestEnrollmentProgressProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("enrollments progress monotonically to a terminal state", prop.ForAll(
		func(size int, outcomes []int) string {
			specs := make([]*models.ActionSpec, size)
			for i := range size {
				specs[i] = addTag(fmt.Sprintf("tag-%d", i), "t")
			}

			h := newHarness(t, definitionOf(specs...))

			for _, outcome := range outcomes {
				switch outcome {
				case outcomeTransient:
					h.crm.On("AddTag", anyArg, anyArg).Return(nil, protocol.Transient(errors.New("HTTP 503"))).Once()
				case outcomeTerminal:
					h.crm.On("AddTag", anyArg, anyArg).Return(nil, protocol.Terminal(errors.New("HTTP 400"))).Once()
				default:
					h.crm.On("AddTag", anyArg, anyArg).Return(okResult, nil).Once()
				}
			}

			h.crm.On("AddTag", anyArg, anyArg).Return(okResult, nil)

			enrollment := h.enroll(t, "wf-1", nil)
			cursor := enrollment.Cursor

			for range size*(DefaultExecutorConfig().MaxAttempts+1) + 1 {
				h.poll(t)

				current := h.reload(t, enrollment.ID)
				if current.Cursor < cursor {
					return fmt.Sprintf("cursor moved back from %d to %d", cursor, current.Cursor)
				}

				cursor = current.Cursor

				if current.State.IsTerminal() {
					break
				}

				h.clock.Advance(time.Hour)
			}

			current := h.reload(t, enrollment.ID)
			if !current.State.IsTerminal() {
				return fmt.Sprintf("enrollment still %s at cursor %d", current.State, current.Cursor)
			}

			seen := map[string]bool{}
			for _, record := range h.records(t, enrollment.ID) {
				if seen[record.IdempotencyKey()] {
					return "duplicate record " + record.IdempotencyKey()
				}

				seen[record.IdempotencyKey()] = true

				if !record.IsFinished() {
					return "unfinished record " + record.IdempotencyKey()
				}
			}

			return ""
		},
		gen.IntRange(0, 6),
		gen.SliceOf(gen.IntRange(outcomeOK, outcomeTerminal)),
	))

	properties.TestingRun(t)
}
