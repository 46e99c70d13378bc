// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"vendor-billing-engine/internal/domain"
	"vendor-billing-engine/internal/domain/model"
	"vendor-billing-engine/internal/domain/ports/adapter"
	"vendor-billing-engine/internal/domain/ports/repository"
	"vendor-billing-engine/internal/infra/logging"
)

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

// EnrollInput carries everything needed to enroll a vendor into a plan.
type EnrollInput struct {
	VendorID        string
	PlanID          string
	Interval        model.BillingInterval
	StartTrial      bool
	Customer        adapter.CustomerDetails
	PaymentMethodID string // may be empty for trials; blocks recurring charges until set
}

// SubscriptionUseCase implements the vendor-facing and admin lifecycle
// operations. All mutations run through the state machine and append exactly
// one ledger entry inside the same database transaction.
type SubscriptionUseCase interface {
	Enroll(ctx context.Context, in EnrollInput) (*model.Subscription, error)
	// ChangePlan swaps the plan mid-cycle and charges the prorated difference.
	// A non-empty alreadyPaidRef skips the charge after verifying the
	// reference against the gateway.
	ChangePlan(ctx context.Context, subscriptionID, newPlanID, alreadyPaidRef string) (*model.Subscription, error)
	Cancel(ctx context.Context, subscriptionID string, immediate bool, reason string) (*model.Subscription, error)
	Reactivate(ctx context.Context, subscriptionID string) (*model.Subscription, error)
	AdminExtend(ctx context.Context, subscriptionID string, days int) (*model.Subscription, error)
	AdminForceCancel(ctx context.Context, subscriptionID, reason string) (*model.Subscription, error)
	Get(ctx context.Context, subscriptionID string) (*model.Subscription, []*model.Transaction, error)
}

type subscriptionUC struct {
	subs     repository.SubscriptionRepository
	ledger   repository.LedgerRepository
	catalog  *model.PlanCatalog
	gateway  adapter.PaymentGateway
	txm      repository.TransactionManager
	currency string
	log      *zerolog.Logger
	now      func() time.Time
}

func NewSubscriptionUseCase(
	subs repository.SubscriptionRepository,
	ledger repository.LedgerRepository,
	catalog *model.PlanCatalog,
	gateway adapter.PaymentGateway,
	txm repository.TransactionManager,
	currency string,
	logger *zerolog.Logger,
) *subscriptionUC {
	l := logger.With().Str("component", "SubscriptionUC").Logger()
	return &subscriptionUC{
		subs:     subs,
		ledger:   ledger,
		catalog:  catalog,
		gateway:  gateway,
		txm:      txm,
		currency: currency,
		log:      &l,
		now:      time.Now,
	}
}

// WithClock overrides the time source; tests use this for fixed dates.
func (u *subscriptionUC) WithClock(now func() time.Time) *subscriptionUC {
	u.now = now
	return u
}

func (u *subscriptionUC) Enroll(ctx context.Context, in EnrollInput) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.Enroll")()
	if in.VendorID == "" {
		return nil, domain.ErrInvalidArgument
	}
	plan, err := u.catalog.Find(in.PlanID)
	if err != nil {
		return nil, err
	}
	if !in.Interval.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	existing, err := u.subs.FindActiveByVendor(ctx, nil, in.VendorID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrNotEligible
	}

	now := u.now()
	id := uuid.NewString()

	if in.StartTrial {
		sub, err := model.NewTrialSubscription(id, in.VendorID, plan, in.Interval, now)
		if err != nil {
			return nil, err
		}
		if in.PaymentMethodID != "" {
			sub.PaymentMethodID = &in.PaymentMethodID
		}
		entry, _ := model.NewTransaction(ulid.Make().String(), sub.ID, model.TransactionTrialStart, 0, model.TransactionStatusCompleted, now)
		entry.Metadata["plan_id"] = plan.ID
		entry.Metadata["trial_days"] = plan.TrialDays
		if err := u.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			if err := u.subs.Create(ctx, tx, sub); err != nil {
				return err
			}
			return u.ledger.Append(ctx, tx, entry)
		}); err != nil {
			return nil, err
		}
		u.log.Info().Str("subscription_id", sub.ID).Str("plan_id", plan.ID).Msg("trial enrollment")
		return sub, nil
	}

	// Immediate pay: the gateway charge must succeed synchronously before
	// anything is persisted.
	custID, err := u.gateway.CreateCustomer(ctx, in.Customer)
	if err != nil {
		return nil, err
	}
	price := plan.Price(in.Interval)
	res, err := u.gateway.Charge(ctx, price, u.currency, custID, map[string]string{
		"subscription_id": id,
		"vendor_id":       in.VendorID,
		"purpose":         "initial_payment",
	})
	if err != nil {
		return nil, err
	}
	if res.Status != adapter.ChargeStatusSucceeded {
		return nil, domain.ErrGatewayDeclined
	}

	sub, err := model.NewPaidSubscription(id, in.VendorID, plan, in.Interval, now)
	if err != nil {
		return nil, err
	}
	sub.GatewayCustomerID = &custID
	if in.PaymentMethodID != "" {
		sub.PaymentMethodID = &in.PaymentMethodID
	}
	entry, _ := model.NewTransaction(ulid.Make().String(), sub.ID, model.TransactionInitialPayment, price, model.TransactionStatusCompleted, now)
	entry.GatewayRef = res.ID
	entry.PeriodKey = model.PeriodKeyFor(sub.StartDate)
	entry.Metadata["plan_id"] = plan.ID
	entry.Metadata["interval"] = string(in.Interval)

	if err := u.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.subs.Create(ctx, tx, sub); err != nil {
			return err
		}
		return u.ledger.Append(ctx, tx, entry)
	}); err != nil {
		return nil, err
	}
	u.log.Info().Str("subscription_id", sub.ID).Str("plan_id", plan.ID).Int64("amount", price).Msg("paid enrollment")
	return sub, nil
}

func (u *subscriptionUC) ChangePlan(ctx context.Context, subscriptionID, newPlanID, alreadyPaidRef string) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.ChangePlan")()
	sub, err := u.subs.FindByID(ctx, nil, subscriptionID)
	if err != nil {
		return nil, err
	}
	readAt := sub.UpdatedAt
	if sub.Status != model.SubscriptionStatusTrial && sub.Status != model.SubscriptionStatusActive {
		return nil, domain.ErrInvalidTransition
	}
	current, err := u.catalog.Find(sub.PlanID)
	if err != nil {
		return nil, err
	}
	next, err := u.catalog.Find(newPlanID)
	if err != nil {
		return nil, err
	}

	now := u.now()
	daysRemaining, totalDays := periodDays(sub, now)
	charge := model.Prorate(current.Price(sub.BillingInterval), next.Price(sub.BillingInterval), daysRemaining, totalDays)

	entry, _ := model.NewTransaction(ulid.Make().String(), sub.ID, model.TransactionUpgrade, charge, model.TransactionStatusCompleted, now)
	entry.Metadata["from_plan"] = current.ID
	entry.Metadata["to_plan"] = next.ID
	entry.Metadata["days_remaining"] = daysRemaining
	entry.Metadata["total_days"] = totalDays
	entry.Metadata["charged"] = false

	switch {
	case alreadyPaidRef != "":
		// The caller claims the charge was settled out-of-band. Never take
		// that at face value — verify the reference with the provider.
		res, err := u.gateway.RetrievePayment(ctx, alreadyPaidRef)
		if err != nil {
			return nil, err
		}
		if res.Status != adapter.ChargeStatusSucceeded || res.Amount < charge {
			return nil, domain.ErrNotEligible
		}
		entry.GatewayRef = alreadyPaidRef
		entry.Metadata["external_ref"] = true

	case charge > 0:
		if sub.GatewayCustomerID == nil {
			return nil, domain.ErrMissingPaymentMethod
		}
		res, err := u.gateway.Charge(ctx, charge, u.currency, *sub.GatewayCustomerID, map[string]string{
			"subscription_id": sub.ID,
			"purpose":         "upgrade",
			"to_plan":         next.ID,
		})
		if err != nil || res.Status != adapter.ChargeStatusSucceeded {
			// The plan stays as it was; only a failed entry is written.
			failed, _ := model.NewTransaction(ulid.Make().String(), sub.ID, model.TransactionUpgrade, charge, model.TransactionStatusFailed, now)
			failed.Metadata["to_plan"] = next.ID
			if err != nil {
				failed.Metadata["error"] = err.Error()
			} else {
				failed.Metadata["charge_status"] = string(res.Status)
			}
			if aerr := u.ledger.Append(ctx, nil, failed); aerr != nil {
				u.log.Error().Err(aerr).Str("subscription_id", sub.ID).Msg("could not record declined plan-change charge")
			}
			if err != nil {
				return nil, err
			}
			return nil, domain.ErrGatewayDeclined
		}
		entry.GatewayRef = res.ID
		entry.Metadata["charged"] = true
	}

	if err := sub.Apply(model.Transition{Kind: model.TransitionPlanChanged, At: now, NewPlanID: next.ID}); err != nil {
		return nil, err
	}
	if err := u.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.subs.Update(ctx, tx, sub, readAt); err != nil {
			return err
		}
		return u.ledger.Append(ctx, tx, entry)
	}); err != nil {
		return nil, err
	}
	u.log.Info().Str("subscription_id", sub.ID).Str("to_plan", next.ID).Int64("prorated", charge).Msg("plan changed")
	return sub, nil
}

func (u *subscriptionUC) Cancel(ctx context.Context, subscriptionID string, immediate bool, reason string) (*model.Subscription, error) {
	kind := model.TransitionScheduleCancel
	if immediate {
		kind = model.TransitionCancelNow
	}
	return u.transition(ctx, subscriptionID, model.Transition{Kind: kind, Reason: reason},
		model.TransactionCancellation, func(e *model.Transaction) {
			e.Metadata["immediate"] = immediate
			if reason != "" {
				e.Metadata["reason"] = reason
			}
		})
}

func (u *subscriptionUC) Reactivate(ctx context.Context, subscriptionID string) (*model.Subscription, error) {
	return u.transition(ctx, subscriptionID, model.Transition{Kind: model.TransitionReactivate},
		model.TransactionReactivation, nil)
}

func (u *subscriptionUC) AdminExtend(ctx context.Context, subscriptionID string, days int) (*model.Subscription, error) {
	return u.transition(ctx, subscriptionID, model.Transition{Kind: model.TransitionAdminExtend, ExtendDays: days},
		model.TransactionAdminExtension, func(e *model.Transaction) {
			e.Metadata["days"] = days
		})
}

func (u *subscriptionUC) AdminForceCancel(ctx context.Context, subscriptionID, reason string) (*model.Subscription, error) {
	return u.transition(ctx, subscriptionID, model.Transition{Kind: model.TransitionForceCancel, Reason: reason},
		model.TransactionAdminForceCancel, func(e *model.Transaction) {
			if reason != "" {
				e.Metadata["reason"] = reason
			}
		})
}

func (u *subscriptionUC) Get(ctx context.Context, subscriptionID string) (*model.Subscription, []*model.Transaction, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.Get")()
	sub, err := u.subs.FindByID(ctx, nil, subscriptionID)
	if err != nil {
		return nil, nil, err
	}
	entries, err := u.ledger.ListBySubscription(ctx, nil, subscriptionID, 100)
	if err != nil {
		return nil, nil, err
	}
	return sub, entries, nil
}

// transition applies a single administrative state-machine event and its
// ledger entry atomically.
func (u *subscriptionUC) transition(ctx context.Context, subscriptionID string, tr model.Transition, typ model.TransactionType, decorate func(*model.Transaction)) (*model.Subscription, error) {
	now := u.now()
	tr.At = now
	var out *model.Subscription
	err := u.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		sub, err := u.subs.FindByID(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		readAt := sub.UpdatedAt
		if err := sub.Apply(tr); err != nil {
			return err
		}
		entry, _ := model.NewTransaction(ulid.Make().String(), sub.ID, typ, 0, model.TransactionStatusCompleted, now)
		entry.Metadata["transition"] = string(tr.Kind)
		if decorate != nil {
			decorate(entry)
		}
		if err := u.subs.Update(ctx, tx, sub, readAt); err != nil {
			return err
		}
		if err := u.ledger.Append(ctx, tx, entry); err != nil {
			return err
		}
		out = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.log.Info().Str("subscription_id", subscriptionID).Str("transition", string(tr.Kind)).Msg("transition applied")
	return out, nil
}

// periodDays computes the whole days remaining and the total length of the
// current billing period, derived from EndDate and the billing interval.
func periodDays(s *model.Subscription, now time.Time) (remaining, total int) {
	end := s.EndDate
	var start time.Time
	if s.BillingInterval == model.IntervalYearly {
		start = end.AddDate(-1, 0, 0)
	} else {
		start = end.AddDate(0, -1, 0)
	}
	total = int(math.Round(end.Sub(start).Hours() / 24))
	remaining = int(math.Ceil(end.Sub(now).Hours() / 24))
	if remaining < 0 {
		remaining = 0
	}
	if remaining > total {
		remaining = total
	}
	return remaining, total
}
