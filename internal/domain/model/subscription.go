package model

import (
	"time"

	"vendor-billing-engine/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusTrial     SubscriptionStatus = "trial"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// Subscription is one vendor-plan enrollment, active or historical.
// Records are never deleted; cancellation is a status transition.
type Subscription struct {
	ID              string // UUID
	VendorID        string // UUID of owning vendor
	PlanID          string // key into the plan catalog
	BillingInterval BillingInterval
	Status          SubscriptionStatus

	StartDate       time.Time
	EndDate         time.Time  // paid-through date
	TrialEndDate    *time.Time // nil if the subscription never had a trial
	NextBillingDate time.Time
	CancelledAt     *time.Time
	CancelReason    string

	PaymentMethodID   *string // nil blocks recurring charges
	GatewayCustomerID *string

	CancelAtPeriodEnd bool

	CreatedAt time.Time
	UpdatedAt time.Time // conditional-update token against lost updates
}

// NewTrialSubscription enrolls a vendor into a plan's trial. Nothing is
// charged; the first real charge is attempted by the sweep at trial end.
func NewTrialSubscription(id, vendorID string, plan *BillingPlan, interval BillingInterval, now time.Time) (*Subscription, error) {
	if id == "" || vendorID == "" || plan.IsZero() || !interval.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	if plan.TrialDays <= 0 {
		return nil, domain.ErrNotEligible
	}
	trialEnd := now.AddDate(0, 0, plan.TrialDays)
	return &Subscription{
		ID:              id,
		VendorID:        vendorID,
		PlanID:          plan.ID,
		BillingInterval: interval,
		Status:          SubscriptionStatusTrial,
		StartDate:       now,
		EndDate:         trialEnd,
		TrialEndDate:    &trialEnd,
		NextBillingDate: trialEnd,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// NewPaidSubscription enrolls a vendor with an immediate charge. The caller
// must have charged the gateway successfully before persisting.
func NewPaidSubscription(id, vendorID string, plan *BillingPlan, interval BillingInterval, now time.Time) (*Subscription, error) {
	if id == "" || vendorID == "" || plan.IsZero() || !interval.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	end := interval.Advance(now)
	return &Subscription{
		ID:              id,
		VendorID:        vendorID,
		PlanID:          plan.ID,
		BillingInterval: interval,
		Status:          SubscriptionStatusActive,
		StartDate:       now,
		EndDate:         end,
		NextBillingDate: end,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// InTrial reports whether the subscription is still inside its trial window.
func (s *Subscription) InTrial(now time.Time) bool {
	return s.Status == SubscriptionStatusTrial && s.TrialEndDate != nil && now.Before(*s.TrialEndDate)
}

// DueForBilling reports whether the sweep should attempt a charge.
func (s *Subscription) DueForBilling(now time.Time) bool {
	switch s.Status {
	case SubscriptionStatusTrial, SubscriptionStatusActive, SubscriptionStatusPastDue:
	default:
		return false
	}
	if s.CancelAtPeriodEnd && !now.Before(s.EndDate) {
		return false // due for expiry, not for billing
	}
	return s.PaymentMethodID != nil && !now.Before(s.NextBillingDate)
}

type TransitionKind string

const (
	TransitionConvertTrial     TransitionKind = "convert_trial"
	TransitionPlanChanged      TransitionKind = "plan_changed"
	TransitionRenewalSucceeded TransitionKind = "renewal_succeeded"
	TransitionRenewalFailed    TransitionKind = "renewal_failed"
	TransitionCancelNow        TransitionKind = "cancel_now"
	TransitionScheduleCancel   TransitionKind = "schedule_cancel"
	TransitionPeriodElapsed    TransitionKind = "period_elapsed"
	TransitionReactivate       TransitionKind = "reactivate"
	TransitionForceCancel      TransitionKind = "force_cancel"
	TransitionAdminExtend      TransitionKind = "admin_extend"
)

// Transition is one state-machine event with its payload. Every mutation of a
// Subscription after construction goes through Apply so that callers (sweep,
// reconciler, admin API) cannot leave the record inconsistent with its dates
// and flags.
type Transition struct {
	Kind       TransitionKind
	At         time.Time
	NewPlanID  string // TransitionPlanChanged
	ExtendDays int    // TransitionAdminExtend
	Reason     string // cancellations
}

// Apply validates the transition against the current state and mutates the
// subscription. Cancelled is terminal against renewal- and webhook-driven
// transitions; only Reactivate escapes a pending period-end cancellation.
func (s *Subscription) Apply(tr Transition) error {
	switch tr.Kind {
	case TransitionConvertTrial:
		if s.Status != SubscriptionStatusTrial {
			return domain.ErrInvalidTransition
		}
		base := s.EndDate
		if s.TrialEndDate != nil {
			base = *s.TrialEndDate
		}
		s.Status = SubscriptionStatusActive
		s.EndDate = s.BillingInterval.Advance(base)
		s.NextBillingDate = s.EndDate

	case TransitionPlanChanged:
		if tr.NewPlanID == "" {
			return domain.ErrInvalidArgument
		}
		if s.Status != SubscriptionStatusTrial && s.Status != SubscriptionStatusActive {
			return domain.ErrInvalidTransition
		}
		s.PlanID = tr.NewPlanID
		s.Status = SubscriptionStatusActive
		s.NextBillingDate = s.EndDate

	case TransitionRenewalSucceeded:
		if s.Status == SubscriptionStatusCancelled {
			return domain.ErrInvalidTransition
		}
		if s.Status == SubscriptionStatusTrial {
			// a successful charge against a trial converts it
			return s.Apply(Transition{Kind: TransitionConvertTrial, At: tr.At})
		}
		s.Status = SubscriptionStatusActive
		s.EndDate = s.BillingInterval.Advance(s.EndDate)
		s.NextBillingDate = s.EndDate

	case TransitionRenewalFailed:
		switch s.Status {
		case SubscriptionStatusTrial, SubscriptionStatusActive, SubscriptionStatusPastDue:
			s.Status = SubscriptionStatusPastDue
		default:
			return domain.ErrInvalidTransition
		}

	case TransitionCancelNow:
		if s.Status == SubscriptionStatusCancelled {
			return domain.ErrInvalidTransition
		}
		at := tr.At
		s.Status = SubscriptionStatusCancelled
		s.CancelledAt = &at
		s.CancelAtPeriodEnd = false
		s.CancelReason = tr.Reason

	case TransitionScheduleCancel:
		if s.Status != SubscriptionStatusTrial && s.Status != SubscriptionStatusActive {
			return domain.ErrInvalidTransition
		}
		s.CancelAtPeriodEnd = true
		s.CancelReason = tr.Reason

	case TransitionPeriodElapsed:
		if s.Status == SubscriptionStatusCancelled || !s.CancelAtPeriodEnd || tr.At.Before(s.EndDate) {
			return domain.ErrInvalidTransition
		}
		at := tr.At
		s.Status = SubscriptionStatusCancelled
		s.CancelledAt = &at

	case TransitionReactivate:
		// Only a scheduled (period-end) cancellation whose period has not yet
		// elapsed can be undone. Immediate or force cancels are terminal.
		if !s.CancelAtPeriodEnd || !tr.At.Before(s.EndDate) {
			return domain.ErrNotEligible
		}
		s.CancelAtPeriodEnd = false
		s.CancelReason = ""
		s.CancelledAt = nil
		if s.Status == SubscriptionStatusCancelled || s.Status == SubscriptionStatusActive {
			s.Status = SubscriptionStatusActive
		}

	case TransitionForceCancel:
		if s.Status == SubscriptionStatusCancelled {
			return domain.ErrInvalidTransition
		}
		at := tr.At
		s.Status = SubscriptionStatusCancelled
		s.CancelledAt = &at
		s.CancelAtPeriodEnd = false
		s.CancelReason = tr.Reason

	case TransitionAdminExtend:
		if tr.ExtendDays <= 0 {
			return domain.ErrInvalidArgument
		}
		if s.Status == SubscriptionStatusCancelled {
			return domain.ErrInvalidTransition
		}
		s.EndDate = s.EndDate.AddDate(0, 0, tr.ExtendDays)
		if s.Status == SubscriptionStatusTrial && s.TrialEndDate != nil {
			te := s.TrialEndDate.AddDate(0, 0, tr.ExtendDays)
			s.TrialEndDate = &te
			s.NextBillingDate = te
		} else {
			s.NextBillingDate = s.EndDate
		}

	default:
		return domain.ErrInvalidTransition
	}

	s.UpdatedAt = tr.At
	return nil
}
