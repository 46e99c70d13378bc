package repository

import (
	"context"

	"vendor-billing-engine/internal/domain/model"
)

// LedgerRepository is the port for the append-only transaction ledger.
// There are deliberately no update or delete methods.
type LedgerRepository interface {
	Append(ctx context.Context, tx Tx, t *model.Transaction) error
	// ExistsByGatewayRef reports whether an entry with the same
	// (subscription, type, gateway ref) tuple is already logged — the
	// practical dedupe guard for redelivered webhook events.
	ExistsByGatewayRef(ctx context.Context, tx Tx, subscriptionID string, typ model.TransactionType, gatewayRef string) (bool, error)
	// ExistsForPeriod reports whether a completed recurring charge for the
	// given billing period is already logged.
	ExistsForPeriod(ctx context.Context, tx Tx, subscriptionID, periodKey string) (bool, error)
	ListBySubscription(ctx context.Context, tx Tx, subscriptionID string, limit int) ([]*model.Transaction, error)
}
