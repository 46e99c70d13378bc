package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"vendor-billing-engine/internal/domain/model"
)

func init() { register(subscriptionsTotal) }

var subscriptionsTotal = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "subscriptions_total",
		Help: "Current number of subscriptions by status.",
	},
	[]string{"status"}, // 'trial', 'active', 'past_due', 'cancelled'
)

func SetSubscriptionsTotal(counts map[model.SubscriptionStatus]int) {
	statuses := []model.SubscriptionStatus{
		model.SubscriptionStatusTrial,
		model.SubscriptionStatusActive,
		model.SubscriptionStatusPastDue,
		model.SubscriptionStatusCancelled,
	}
	for _, status := range statuses {
		// Statuses absent from counts must reset to zero, not keep a
		// stale value from the previous snapshot.
		subscriptionsTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
