//go:build !integration

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"vendor-billing-engine/internal/domain/model"
)

func TestSetSubscriptionsTotal(t *testing.T) {
	SetSubscriptionsTotal(map[model.SubscriptionStatus]int{
		model.SubscriptionStatusActive:  3,
		model.SubscriptionStatusPastDue: 1,
	})
	SetSubscriptionsTotal(map[model.SubscriptionStatus]int{
		model.SubscriptionStatusActive: 2,
	})

	if got := testutil.ToFloat64(subscriptionsTotal.WithLabelValues(string(model.SubscriptionStatusActive))); got != 2 {
		t.Errorf("expected active gauge at 2, got %v", got)
	}
	if got := testutil.ToFloat64(subscriptionsTotal.WithLabelValues(string(model.SubscriptionStatusPastDue))); got != 0 {
		t.Errorf("a status absent from the snapshot must reset to zero, got %v", got)
	}
}
