package model

import "math"

// Prorate computes the amount owed when a subscription changes plan with
// daysRemaining left of a totalDays billing period. The per-day rate of each
// plan is applied to the remaining days and the difference is charged.
//
// The result is never negative: downgrades are floored at zero instead of
// producing a credit, so no refund flow is required — the vendor simply pays
// the lower price from the next period on.
func Prorate(currentPrice, newPrice int64, daysRemaining, totalDays int) int64 {
	if totalDays <= 0 || daysRemaining <= 0 {
		return 0
	}
	if daysRemaining > totalDays {
		daysRemaining = totalDays
	}
	ratio := float64(daysRemaining) / float64(totalDays)
	charge := int64(math.Round(ratio*float64(newPrice))) - int64(math.Round(ratio*float64(currentPrice)))
	if charge < 0 {
		return 0
	}
	return charge
}
