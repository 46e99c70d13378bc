//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"vendor-billing-engine/internal/domain"
)

var (
	tNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tEnd = time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
)

func testPlan() *BillingPlan {
	return &BillingPlan{ID: "basic", Name: "Basic", MonthlyPrice: 100, YearlyPrice: 1000, TrialDays: 14}
}

func subIn(status SubscriptionStatus) *Subscription {
	s := &Subscription{
		ID:              "sub-1",
		VendorID:        "vendor-1",
		PlanID:          "basic",
		BillingInterval: IntervalMonthly,
		Status:          status,
		StartDate:       tEnd.AddDate(0, -1, 0),
		EndDate:         tEnd,
		NextBillingDate: tEnd,
		CreatedAt:       tEnd.AddDate(0, -1, 0),
		UpdatedAt:       tEnd.AddDate(0, -1, 0),
	}
	if status == SubscriptionStatusTrial {
		te := tEnd
		s.TrialEndDate = &te
	}
	if status == SubscriptionStatusCancelled {
		at := tNow.AddDate(0, 0, -1)
		s.CancelledAt = &at
	}
	return s
}

func TestNewTrialSubscription(t *testing.T) {
	t.Run("should start a trial with the trial window as first period", func(t *testing.T) {
		sub, err := NewTrialSubscription("sub-1", "vendor-1", testPlan(), IntervalMonthly, tNow)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if sub.Status != SubscriptionStatusTrial {
			t.Errorf("expected status trial, got %s", sub.Status)
		}
		want := tNow.AddDate(0, 0, 14)
		if !sub.EndDate.Equal(want) || sub.TrialEndDate == nil || !sub.TrialEndDate.Equal(want) || !sub.NextBillingDate.Equal(want) {
			t.Errorf("expected all period dates at trial end %v, got end=%v trialEnd=%v next=%v",
				want, sub.EndDate, sub.TrialEndDate, sub.NextBillingDate)
		}
		if !sub.InTrial(tNow) {
			t.Error("expected InTrial at enrollment time")
		}
		if sub.InTrial(want.Add(time.Hour)) {
			t.Error("expected InTrial false after the trial window")
		}
	})

	t.Run("should refuse a plan with no trial", func(t *testing.T) {
		plan := testPlan()
		plan.TrialDays = 0
		if _, err := NewTrialSubscription("sub-1", "vendor-1", plan, IntervalMonthly, tNow); !errors.Is(err, domain.ErrNotEligible) {
			t.Fatalf("expected ErrNotEligible, got %v", err)
		}
	})

	t.Run("should validate arguments", func(t *testing.T) {
		if _, err := NewTrialSubscription("", "vendor-1", testPlan(), IntervalMonthly, tNow); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
		if _, err := NewTrialSubscription("sub-1", "vendor-1", testPlan(), "weekly", tNow); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument for a bad interval, got %v", err)
		}
	})
}

// TestApply_Guards walks the transition table: which events are legal from
// which states.
func TestApply_Guards(t *testing.T) {
	cases := []struct {
		name    string
		from    SubscriptionStatus
		tr      Transition
		wantErr error
	}{
		{"convert trial from trial", SubscriptionStatusTrial, Transition{Kind: TransitionConvertTrial, At: tEnd}, nil},
		{"convert trial from active", SubscriptionStatusActive, Transition{Kind: TransitionConvertTrial, At: tEnd}, domain.ErrInvalidTransition},
		{"plan change from trial", SubscriptionStatusTrial, Transition{Kind: TransitionPlanChanged, At: tNow, NewPlanID: "pro"}, nil},
		{"plan change from active", SubscriptionStatusActive, Transition{Kind: TransitionPlanChanged, At: tNow, NewPlanID: "pro"}, nil},
		{"plan change from past_due", SubscriptionStatusPastDue, Transition{Kind: TransitionPlanChanged, At: tNow, NewPlanID: "pro"}, domain.ErrInvalidTransition},
		{"plan change without target", SubscriptionStatusActive, Transition{Kind: TransitionPlanChanged, At: tNow}, domain.ErrInvalidArgument},
		{"renewal succeeded from active", SubscriptionStatusActive, Transition{Kind: TransitionRenewalSucceeded, At: tEnd}, nil},
		{"renewal succeeded from past_due", SubscriptionStatusPastDue, Transition{Kind: TransitionRenewalSucceeded, At: tEnd}, nil},
		{"renewal succeeded from cancelled", SubscriptionStatusCancelled, Transition{Kind: TransitionRenewalSucceeded, At: tEnd}, domain.ErrInvalidTransition},
		{"renewal failed from active", SubscriptionStatusActive, Transition{Kind: TransitionRenewalFailed, At: tEnd}, nil},
		{"renewal failed from cancelled", SubscriptionStatusCancelled, Transition{Kind: TransitionRenewalFailed, At: tEnd}, domain.ErrInvalidTransition},
		{"cancel now from active", SubscriptionStatusActive, Transition{Kind: TransitionCancelNow, At: tNow}, nil},
		{"cancel now from past_due", SubscriptionStatusPastDue, Transition{Kind: TransitionCancelNow, At: tNow}, nil},
		{"cancel now from cancelled", SubscriptionStatusCancelled, Transition{Kind: TransitionCancelNow, At: tNow}, domain.ErrInvalidTransition},
		{"schedule cancel from active", SubscriptionStatusActive, Transition{Kind: TransitionScheduleCancel, At: tNow}, nil},
		{"schedule cancel from past_due", SubscriptionStatusPastDue, Transition{Kind: TransitionScheduleCancel, At: tNow}, domain.ErrInvalidTransition},
		{"force cancel from past_due", SubscriptionStatusPastDue, Transition{Kind: TransitionForceCancel, At: tNow, Reason: "abuse"}, nil},
		{"force cancel from cancelled", SubscriptionStatusCancelled, Transition{Kind: TransitionForceCancel, At: tNow}, domain.ErrInvalidTransition},
		{"extend cancelled", SubscriptionStatusCancelled, Transition{Kind: TransitionAdminExtend, At: tNow, ExtendDays: 7}, domain.ErrInvalidTransition},
		{"extend zero days", SubscriptionStatusActive, Transition{Kind: TransitionAdminExtend, At: tNow}, domain.ErrInvalidArgument},
		{"unknown transition kind", SubscriptionStatusActive, Transition{Kind: "explode", At: tNow}, domain.ErrInvalidTransition},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := subIn(tc.from)
			err := s.Apply(tc.tr)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("expected no error, but got: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if tc.wantErr == nil && !s.UpdatedAt.Equal(tc.tr.At) {
				t.Errorf("expected UpdatedAt stamped with the transition time")
			}
		})
	}
}

func TestApply_Effects(t *testing.T) {
	t.Run("trial conversion anchors the paid period at trial end", func(t *testing.T) {
		s := subIn(SubscriptionStatusTrial)
		if err := s.Apply(Transition{Kind: TransitionConvertTrial, At: tEnd}); err != nil {
			t.Fatal(err)
		}
		want := tEnd.AddDate(0, 1, 0)
		if s.Status != SubscriptionStatusActive || !s.EndDate.Equal(want) || !s.NextBillingDate.Equal(want) {
			t.Errorf("expected active through %v, got status=%s end=%v next=%v", want, s.Status, s.EndDate, s.NextBillingDate)
		}
	})

	t.Run("a successful renewal against a trial converts it", func(t *testing.T) {
		s := subIn(SubscriptionStatusTrial)
		if err := s.Apply(Transition{Kind: TransitionRenewalSucceeded, At: tEnd}); err != nil {
			t.Fatal(err)
		}
		if s.Status != SubscriptionStatusActive || !s.EndDate.Equal(tEnd.AddDate(0, 1, 0)) {
			t.Errorf("expected converted trial, got status=%s end=%v", s.Status, s.EndDate)
		}
	})

	t.Run("renewal extends from the paid-through date, not from now", func(t *testing.T) {
		s := subIn(SubscriptionStatusActive)
		late := tEnd.AddDate(0, 0, 3) // sweep ran late
		if err := s.Apply(Transition{Kind: TransitionRenewalSucceeded, At: late}); err != nil {
			t.Fatal(err)
		}
		if want := tEnd.AddDate(0, 1, 0); !s.EndDate.Equal(want) {
			t.Errorf("expected end %v anchored at the previous period, got %v", want, s.EndDate)
		}
	})

	t.Run("yearly interval advances by a year", func(t *testing.T) {
		s := subIn(SubscriptionStatusActive)
		s.BillingInterval = IntervalYearly
		if err := s.Apply(Transition{Kind: TransitionRenewalSucceeded, At: tEnd}); err != nil {
			t.Fatal(err)
		}
		if want := tEnd.AddDate(1, 0, 0); !s.EndDate.Equal(want) {
			t.Errorf("expected end %v, got %v", want, s.EndDate)
		}
	})

	t.Run("period elapsed requires the flag and a finished period", func(t *testing.T) {
		s := subIn(SubscriptionStatusActive)
		if err := s.Apply(Transition{Kind: TransitionPeriodElapsed, At: tEnd}); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition without the flag, got %v", err)
		}
		s.CancelAtPeriodEnd = true
		if err := s.Apply(Transition{Kind: TransitionPeriodElapsed, At: tEnd.Add(-time.Hour)}); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition before the period ends, got %v", err)
		}
		if err := s.Apply(Transition{Kind: TransitionPeriodElapsed, At: tEnd}); err != nil {
			t.Fatal(err)
		}
		if s.Status != SubscriptionStatusCancelled || s.CancelledAt == nil {
			t.Errorf("expected cancelled with timestamp, got %+v", s)
		}
	})

	t.Run("reactivate undoes only a pending period-end cancellation", func(t *testing.T) {
		s := subIn(SubscriptionStatusActive)
		s.CancelAtPeriodEnd = true
		s.CancelReason = "too pricey"
		if err := s.Apply(Transition{Kind: TransitionReactivate, At: tNow}); err != nil {
			t.Fatal(err)
		}
		if s.CancelAtPeriodEnd || s.CancelReason != "" || s.CancelledAt != nil {
			t.Errorf("expected cancellation fully cleared, got %+v", s)
		}

		// After the period elapsed nothing can be undone.
		s2 := subIn(SubscriptionStatusActive)
		s2.CancelAtPeriodEnd = true
		if err := s2.Apply(Transition{Kind: TransitionReactivate, At: tEnd.Add(time.Hour)}); !errors.Is(err, domain.ErrNotEligible) {
			t.Fatalf("expected ErrNotEligible after period end, got %v", err)
		}

		// An immediate cancel never reactivates.
		s3 := subIn(SubscriptionStatusActive)
		if err := s3.Apply(Transition{Kind: TransitionCancelNow, At: tNow}); err != nil {
			t.Fatal(err)
		}
		if err := s3.Apply(Transition{Kind: TransitionReactivate, At: tNow}); !errors.Is(err, domain.ErrNotEligible) {
			t.Fatalf("expected ErrNotEligible for an immediate cancel, got %v", err)
		}
	})

	t.Run("admin extension of a trial pushes the trial window too", func(t *testing.T) {
		s := subIn(SubscriptionStatusTrial)
		if err := s.Apply(Transition{Kind: TransitionAdminExtend, At: tNow, ExtendDays: 5}); err != nil {
			t.Fatal(err)
		}
		want := tEnd.AddDate(0, 0, 5)
		if !s.EndDate.Equal(want) || s.TrialEndDate == nil || !s.TrialEndDate.Equal(want) || !s.NextBillingDate.Equal(want) {
			t.Errorf("expected trial window pushed to %v, got end=%v trialEnd=%v next=%v", want, s.EndDate, s.TrialEndDate, s.NextBillingDate)
		}
	})
}

func TestDueForBilling(t *testing.T) {
	pm := "pm-1"
	cases := []struct {
		name string
		mut  func(*Subscription)
		at   time.Time
		want bool
	}{
		{"active and due", func(s *Subscription) { s.PaymentMethodID = &pm }, tEnd, true},
		{"active before the billing date", func(s *Subscription) { s.PaymentMethodID = &pm }, tEnd.Add(-time.Hour), false},
		{"no payment method", func(s *Subscription) {}, tEnd, false},
		{"cancelled", func(s *Subscription) { s.PaymentMethodID = &pm; s.Status = SubscriptionStatusCancelled }, tEnd, false},
		{"pending period-end expiry", func(s *Subscription) { s.PaymentMethodID = &pm; s.CancelAtPeriodEnd = true }, tEnd, false},
		{"scheduled cancel but period not over", func(s *Subscription) {
			s.PaymentMethodID = &pm
			s.CancelAtPeriodEnd = true
			s.NextBillingDate = tEnd.Add(-2 * time.Hour)
		}, tEnd.Add(-time.Hour), true},
		{"past_due retry", func(s *Subscription) { s.PaymentMethodID = &pm; s.Status = SubscriptionStatusPastDue }, tEnd, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := subIn(SubscriptionStatusActive)
			tc.mut(s)
			if got := s.DueForBilling(tc.at); got != tc.want {
				t.Errorf("DueForBilling = %v, want %v", got, tc.want)
			}
		})
	}
}
