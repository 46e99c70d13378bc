package payment

import (
	"context"
	"fmt"
	"sync/atomic"

	"vendor-billing-engine/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopGateway)(nil)

// NoopGateway approves everything. Useful for local development without
// provider credentials.
type NoopGateway struct{ seq atomic.Int64 }

func NewNoopGateway() *NoopGateway { return &NoopGateway{} }

func (g *NoopGateway) Name() string { return "noop" }

func (g *NoopGateway) CreateCustomer(_ context.Context, _ adapter.CustomerDetails) (string, error) {
	return fmt.Sprintf("cus_noop_%d", g.seq.Add(1)), nil
}

func (g *NoopGateway) Charge(_ context.Context, amount int64, currency, _ string, _ map[string]string) (adapter.ChargeResult, error) {
	return adapter.ChargeResult{
		ID:     fmt.Sprintf("pay_noop_%d", g.seq.Add(1)),
		Status: adapter.ChargeStatusSucceeded,
		Amount: amount,
		Raw:    map[string]any{"status": "paid", "currency": currency},
	}, nil
}

func (g *NoopGateway) AttachPaymentMethod(_ context.Context, _, _ string) (string, error) {
	return "succeeded", nil
}

func (g *NoopGateway) RetrievePayment(_ context.Context, paymentID string) (adapter.ChargeResult, error) {
	return adapter.ChargeResult{ID: paymentID, Status: adapter.ChargeStatusSucceeded}, nil
}
