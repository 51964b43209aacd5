package protocol_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dukex/drip/pkg/models"
	"github.com/dukex/drip/pkg/protocol"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want models.ErrorKind
	}{
		{"validation", protocol.NewValidationError(models.ActionSendSMS, "from_number", "is required"), models.ErrorKindValidation},
		{"wrapped validation", fmt.Errorf("decode: %w", protocol.NewValidationError(models.ActionSendSMS, "", "bad")), models.ErrorKindValidation},
		{"terminal", protocol.Terminal(errors.New("HTTP 422")), models.ErrorKindTerminal},
		{"transient", protocol.Transient(errors.New("HTTP 503")), models.ErrorKindTransient},
		{"deadline", context.DeadlineExceeded, models.ErrorKindTransient},
		{"unclassified", errors.New("boom"), models.ErrorKindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, protocol.Classify(tt.err))
		})
	}
}

func TestErrorHelpers(t *testing.T) {
	t.Parallel()

	assert.True(t, protocol.IsTransient(protocol.Transient(errors.New("reset"))))
	assert.True(t, protocol.IsTransient(fmt.Errorf("call: %w", context.DeadlineExceeded)))
	assert.False(t, protocol.IsTransient(protocol.Terminal(errors.New("HTTP 400"))))
	assert.True(t, protocol.IsTerminal(fmt.Errorf("call: %w", protocol.Terminal(errors.New("HTTP 404")))))
	assert.NoError(t, protocol.Transient(nil))
	assert.NoError(t, protocol.Terminal(nil))

	err := protocol.NewValidationError(models.ActionSendSMS, "from_number", "is required")
	assert.Equal(t, "invalid send_sms config: from_number: is required", err.Error())
}
