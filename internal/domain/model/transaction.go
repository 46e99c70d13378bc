package model

import (
	"time"

	"vendor-billing-engine/internal/domain"
)

type TransactionType string

const (
	TransactionTrialStart       TransactionType = "trial_start"
	TransactionInitialPayment   TransactionType = "initial_payment"
	TransactionRecurringPayment TransactionType = "recurring_payment"
	TransactionUpgrade          TransactionType = "upgrade"
	TransactionAdminExtension   TransactionType = "admin_extension"
	TransactionAdminForceCancel TransactionType = "admin_force_cancel"
	TransactionCancellation     TransactionType = "cancellation"
	TransactionReactivation     TransactionType = "reactivation"
	TransactionWebhookSuccess   TransactionType = "webhook_payment_success"
	TransactionWebhookFailed    TransactionType = "webhook_payment_failed"
	TransactionEwalletPayment   TransactionType = "ewallet_payment"
)

type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusPending   TransactionStatus = "pending"
)

// Transaction is one immutable ledger entry: a money movement or an
// administrative override tied to a subscription. Entries double as the
// idempotency record — (subscription, type, gateway ref) and
// (subscription, period key) are never logged twice for the same real event.
type Transaction struct {
	ID             string // ULID, sortable by creation time
	SubscriptionID string
	Type           TransactionType
	Amount         int64 // minor currency units, signed
	Status         TransactionStatus
	GatewayRef     string // provider payment/charge id, "" for admin events
	PeriodKey      string // billing period this entry settles, "" otherwise
	Metadata       map[string]any
	CreatedAt      time.Time
}

// NewTransaction validates and constructs a ledger entry.
func NewTransaction(id, subscriptionID string, typ TransactionType, amount int64, status TransactionStatus, now time.Time) (*Transaction, error) {
	if id == "" || subscriptionID == "" || typ == "" || status == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &Transaction{
		ID:             id,
		SubscriptionID: subscriptionID,
		Type:           typ,
		Amount:         amount,
		Status:         status,
		Metadata:       map[string]any{},
		CreatedAt:      now,
	}, nil
}

// PeriodKeyFor formats the idempotency key for the billing period starting at t.
func PeriodKeyFor(t time.Time) string { return t.UTC().Format("2006-01-02") }
