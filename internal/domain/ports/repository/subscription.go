package repository

import (
	"context"
	"time"

	"vendor-billing-engine/internal/domain/model"
)

// SubscriptionRepository is the port for subscription persistence.
type SubscriptionRepository interface {
	Create(ctx context.Context, tx Tx, s *model.Subscription) error
	// Update persists s conditionally on the UpdatedAt the caller read,
	// returning domain.ErrConflict when another writer got there first.
	Update(ctx context.Context, tx Tx, s *model.Subscription, readAt time.Time) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)
	FindActiveByVendor(ctx context.Context, tx Tx, vendorID string) (*model.Subscription, error)
	// ListDue returns subscriptions the sweep must look at: billing due with a
	// payment method on file, or flagged for period-end cancellation with the
	// period elapsed.
	ListDue(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.Subscription, error)
	CountByStatus(ctx context.Context, tx Tx) (map[model.SubscriptionStatus]int, error)
}
