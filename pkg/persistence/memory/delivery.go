package memory

import (
	"context"
	"slices"
	"time"

	"github.com/dukex/drip/pkg/models"
	"github.com/dukex/drip/pkg/persistence"
)

type deliveryRepository struct {
	p *Persistence
}

func (r *deliveryRepository) CreateDelivery(_ context.Context, delivery *models.WebhookDelivery, first *models.WebhookDeliveryAttempt) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	copiedDelivery := *delivery
	r.p.deliveries[delivery.ID] = &copiedDelivery

	copiedAttempt := *first
	r.p.attempts = append(r.p.attempts, &copiedAttempt)

	return nil
}

func (r *deliveryRepository) GetDelivery(_ context.Context, id string) (*models.WebhookDelivery, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	delivery, ok := r.p.deliveries[id]
	if !ok {
		return nil, persistence.NewDeliveryError("GetDelivery", id, persistence.ErrDeliveryNotFound)
	}

	copied := *delivery

	return &copied, nil
}

func (r *deliveryRepository) UpdateDeliveryStatus(_ context.Context, id string, status models.DeliveryStatus, updatedAt time.Time) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	delivery, ok := r.p.deliveries[id]
	if !ok {
		return persistence.NewDeliveryError("UpdateDeliveryStatus", id, persistence.ErrDeliveryNotFound)
	}

	delivery.Status = status
	delivery.UpdatedAt = updatedAt

	return nil
}

func (r *deliveryRepository) InsertAttempt(_ context.Context, attempt *models.WebhookDeliveryAttempt) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.deliveries[attempt.DeliveryID]; !ok {
		return persistence.NewDeliveryError("InsertAttempt", attempt.DeliveryID, persistence.ErrDeliveryNotFound)
	}

	for _, existing := range r.p.attempts {
		if existing.DeliveryID == attempt.DeliveryID && existing.AttemptNumber == attempt.AttemptNumber {
			return persistence.NewDeliveryError("InsertAttempt", attempt.DeliveryID, persistence.ErrDuplicateAttempt)
		}
	}

	copied := *attempt
	r.p.attempts = append(r.p.attempts, &copied)

	return nil
}

func (r *deliveryRepository) ClaimDueAttempts(_ context.Context, now, leaseUntil time.Time, limit int) ([]*models.WebhookDeliveryAttempt, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	due := make([]*models.WebhookDeliveryAttempt, 0)

	for _, attempt := range r.p.attempts {
		if attempt.IsDue(now) {
			due = append(due, attempt)
		}
	}

	slices.SortFunc(due, func(a, b *models.WebhookDeliveryAttempt) int {
		return a.ScheduledAt.Compare(b.ScheduledAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*models.WebhookDeliveryAttempt, 0, len(due))

	for _, attempt := range due {
		lease := leaseUntil
		attempt.LeaseUntil = &lease

		copied := *attempt
		claimed = append(claimed, &copied)
	}

	return claimed, nil
}

func (r *deliveryRepository) FinishAttempt(_ context.Context, attempt *models.WebhookDeliveryAttempt) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	for i, existing := range r.p.attempts {
		if existing.ID != attempt.ID {
			continue
		}

		if existing.Outcome != models.DeliveryOutcomePending {
			return persistence.NewDeliveryError("FinishAttempt", attempt.DeliveryID, persistence.ErrAttemptFinished)
		}

		copied := *attempt
		copied.LeaseUntil = nil
		r.p.attempts[i] = &copied

		return nil
	}

	return persistence.NewDeliveryError("FinishAttempt", attempt.DeliveryID, persistence.ErrDeliveryNotFound)
}

func (r *deliveryRepository) Attempts(_ context.Context, deliveryID string) ([]*models.WebhookDeliveryAttempt, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.deliveries[deliveryID]; !ok {
		return nil, persistence.NewDeliveryError("Attempts", deliveryID, persistence.ErrDeliveryNotFound)
	}

	attempts := make([]*models.WebhookDeliveryAttempt, 0)

	for _, attempt := range r.p.attempts {
		if attempt.DeliveryID == deliveryID {
			copied := *attempt
			attempts = append(attempts, &copied)
		}
	}

	slices.SortFunc(attempts, func(a, b *models.WebhookDeliveryAttempt) int {
		return a.AttemptNumber - b.AttemptNumber
	})

	return attempts, nil
}
