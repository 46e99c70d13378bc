package adapter

import (
	"context"
)

type ChargeStatus string

const (
	ChargeStatusPending   ChargeStatus = "pending"
	ChargeStatusSucceeded ChargeStatus = "succeeded"
	ChargeStatusFailed    ChargeStatus = "failed"
)

// ChargeResult is the provider-agnostic outcome of a charge request.
type ChargeResult struct {
	ID     string // provider payment/charge id
	Status ChargeStatus
	Amount int64          // minor units, as reported by the provider
	Raw    map[string]any // provider payload kept for the ledger
}

// CustomerDetails identifies a vendor on the provider side.
type CustomerDetails struct {
	Name     string
	Email    string
	Phone    string
	Metadata map[string]string
}

// PaymentGateway is the hex port for the external payment provider. Every
// method is a blocking network round trip; implementations must honor ctx
// deadlines and surface domain.ErrGatewayTimeout for an unknown outcome as
// opposed to domain.ErrGatewayDeclined for a definite rejection.
type PaymentGateway interface {
	Name() string

	// CreateCustomer registers a vendor with the provider and returns the
	// provider customer id.
	CreateCustomer(ctx context.Context, details CustomerDetails) (customerID string, err error)

	// Charge requests a payment against a stored customer/payment-method pair
	// or a chargeable source. metadata travels to the provider and comes back
	// on webhook events; callers put the subscription id and billing period in
	// it so retried calls stay idempotent provider-side.
	Charge(ctx context.Context, amount int64, currency, customerOrSource string, metadata map[string]string) (ChargeResult, error)

	// AttachPaymentMethod binds method details to a payment intent.
	AttachPaymentMethod(ctx context.Context, intentID, methodID string) (status string, err error)

	// RetrievePayment fetches a payment by provider id, used to verify
	// externally-obtained payment references before trusting them.
	RetrievePayment(ctx context.Context, paymentID string) (ChargeResult, error)
}

// Webhook event kinds the reconciler understands. Anything else is
// acknowledged and ignored.
const (
	EventPaymentPaid      = "payment.paid"
	EventPaymentFailed    = "payment.failed"
	EventSourceChargeable = "source.chargeable"
)

// WebhookEvent is the parsed inbound gateway callback.
type WebhookEvent struct {
	EventType string           `json:"eventType"`
	Data      WebhookEventData `json:"data"`
}

type WebhookEventData struct {
	ID         string            `json:"id"`
	Attributes WebhookAttributes `json:"attributes"`
}

type WebhookAttributes struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
	Source   string            `json:"source,omitempty"`
	Reason   string            `json:"reason,omitempty"`
}
