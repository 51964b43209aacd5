// Package definitions reads workflow and goal definitions. The engine treats
// definitions as read-only; an active (workflow, version) snapshot never changes.
package definitions

import (
	"context"

	"github.com/dukex/drip/pkg/models"
)

// Store is the read side of the definition store.
type Store interface {
	// WorkflowDefinition returns the snapshot of workflowID at version.
	WorkflowDefinition(ctx context.Context, workflowID string, version int) (*models.WorkflowDefinition, error)

	// CurrentDefinition returns the latest snapshot, used when enrolling.
	CurrentDefinition(ctx context.Context, workflowID string) (*models.WorkflowDefinition, error)

	// ActiveGoals returns the goals of workflowID whose active flag is set.
	ActiveGoals(ctx context.Context, workflowID string) ([]*models.GoalDefinition, error)
}
