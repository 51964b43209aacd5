package definitions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/drip/pkg/models"
	"github.com/dukex/drip/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const onboardingYAML = `
id: onboarding
tenant_id: tenant-1
name: Onboarding
version: 2
status: active
actions:
  - id: tag
    type: add_tag
    position: 2
    config:
      tag_name: onboarded
  - id: welcome
    type: send_email
    position: 0
    config:
      subject: "Hi {{contact.first_name}}"
      body: Welcome
  - id: wait
    type: wait_time
    position: 1
    enabled: false
    config:
      amount: 1
      unit: days
goals:
  - id: bought
    type: purchase_made
    active: true
    criteria:
      min_amount: 100
  - id: old
    type: tag_added
    active: false
    criteria:
      tag_id: t-1
`

const onboardingV1JSON = `{
  "id": "onboarding",
  "tenant_id": "tenant-1",
  "version": 1,
  "status": "archived",
  "actions": [{"id": "welcome", "type": "send_email", "position": 0, "config": {"subject": "Hi", "body": "Welcome"}}]
}`

func writeDefinition(t *testing.T, root, name, body string) {
	t.Helper()

	dir := filepath.Join(root, "workflows")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func TestFileStore_CurrentDefinition(t *testing.T) {
	root := t.TempDir()
	writeDefinition(t, root, "onboarding.yaml", onboardingYAML)

	store := NewFileStore("file://" + root)

	definition, err := store.CurrentDefinition(t.Context(), "onboarding")
	require.NoError(t, err)

	assert.Equal(t, 2, definition.Version)
	assert.Equal(t, models.WorkflowStatusActive, definition.Status)
	require.Len(t, definition.Actions, 3)
	assert.Equal(t, "welcome", definition.Actions[0].ID)
	assert.Equal(t, "wait", definition.Actions[1].ID)
	assert.Equal(t, "tag", definition.Actions[2].ID)
	assert.False(t, definition.Actions[1].IsEnabled())
	assert.True(t, definition.Actions[2].IsEnabled())
	assert.Equal(t, "Hi {{contact.first_name}}", definition.Actions[0].Config["subject"])
}

func TestFileStore_WorkflowDefinition_Versions(t *testing.T) {
	root := t.TempDir()
	writeDefinition(t, root, "onboarding.yaml", onboardingYAML)
	writeDefinition(t, root, "onboarding@1.json", onboardingV1JSON)

	store := NewFileStore(root)

	current, err := store.WorkflowDefinition(t.Context(), "onboarding", 2)
	require.NoError(t, err)
	assert.Len(t, current.Actions, 3)

	previous, err := store.WorkflowDefinition(t.Context(), "onboarding", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, previous.Version)
	assert.Len(t, previous.Actions, 1)

	_, err = store.WorkflowDefinition(t.Context(), "onboarding", 7)
	assert.ErrorIs(t, err, persistence.ErrDefinitionNotFound)
}

func TestFileStore_NotFound(t *testing.T) {
	store := NewFileStore(t.TempDir())

	_, err := store.CurrentDefinition(t.Context(), "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsDefinitionNotFound(err))

	goals, err := store.ActiveGoals(t.Context(), "missing")
	require.NoError(t, err)
	assert.Empty(t, goals)
}

func TestFileStore_ActiveGoals(t *testing.T) {
	root := t.TempDir()
	writeDefinition(t, root, "onboarding.yml", onboardingYAML)

	store := NewFileStore(root)

	goals, err := store.ActiveGoals(t.Context(), "onboarding")
	require.NoError(t, err)
	require.Len(t, goals, 1)

	goal := goals[0]
	assert.Equal(t, "bought", goal.ID)
	assert.Equal(t, "onboarding", goal.WorkflowID)
	assert.Equal(t, "tenant-1", goal.TenantID)
	assert.Equal(t, models.GoalPurchaseMade, goal.Type)
	require.NotNil(t, goal.Criteria.MinAmount)
	assert.InDelta(t, 100.0, *goal.Criteria.MinAmount, 0.001)
}

func TestFileStore_InvalidDocument(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "missing tenant",
			body: "id: broken\nversion: 1\nstatus: active\nactions: []\n",
		},
		{
			name: "duplicate position",
			body: `id: broken
tenant_id: t
version: 1
status: active
actions:
  - {id: a, type: add_note, position: 0}
  - {id: b, type: add_note, position: 0}
`,
		},
		{
			name: "unknown goal type",
			body: `id: broken
tenant_id: t
version: 1
status: active
goals:
  - {id: g, type: page_visited, active: true}
`,
		},
		{
			name: "not yaml",
			body: "id: [",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeDefinition(t, root, "broken.yaml", tt.body)

			_, err := NewFileStore(root).CurrentDefinition(t.Context(), "broken")
			require.Error(t, err)
			assert.False(t, persistence.IsDefinitionNotFound(err))
		})
	}
}
