// File: internal/usecase/billing_uc.go
package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"vendor-billing-engine/internal/domain"
	"vendor-billing-engine/internal/domain/model"
	"vendor-billing-engine/internal/domain/ports/adapter"
	"vendor-billing-engine/internal/domain/ports/repository"
	"vendor-billing-engine/internal/infra/logging"
	"vendor-billing-engine/internal/infra/metrics"
)

// SweepLocker serializes sweep runs across processes. The redis implementation
// lives in infra; tests use a no-op.
type SweepLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

const sweepLockKey = "billing:sweep"

// SweepResult is the operational summary a sweep run returns.
type SweepResult struct {
	Processed  int      `json:"processed"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Expired    int      `json:"expired"` // period-end cancellations applied
	Unknown    int      `json:"unknown"` // gateway timeouts left for reconciliation
	Errors     []string `json:"errors,omitempty"`
}

var _ BillingUseCase = (*billingUC)(nil)

// BillingUseCase drives the recurring billing sweep.
type BillingUseCase interface {
	// RunSweep charges every due subscription once. The secret guards the
	// operation against untrusted callers.
	RunSweep(ctx context.Context, secret string) (*SweepResult, error)
}

type billingUC struct {
	subs     repository.SubscriptionRepository
	ledger   repository.LedgerRepository
	catalog  *model.PlanCatalog
	gateway  adapter.PaymentGateway
	txm      repository.TransactionManager
	locker   SweepLocker
	secret   string
	currency string
	batch    int
	log      *zerolog.Logger
	now      func() time.Time
}

func NewBillingUseCase(
	subs repository.SubscriptionRepository,
	ledger repository.LedgerRepository,
	catalog *model.PlanCatalog,
	gateway adapter.PaymentGateway,
	txm repository.TransactionManager,
	locker SweepLocker,
	secret string,
	currency string,
	logger *zerolog.Logger,
) *billingUC {
	l := logger.With().Str("component", "BillingUC").Logger()
	return &billingUC{
		subs:     subs,
		ledger:   ledger,
		catalog:  catalog,
		gateway:  gateway,
		txm:      txm,
		locker:   locker,
		secret:   secret,
		currency: currency,
		batch:    500,
		log:      &l,
		now:      time.Now,
	}
}

func (u *billingUC) WithClock(now func() time.Time) *billingUC {
	u.now = now
	return u
}

func (u *billingUC) RunSweep(ctx context.Context, secret string) (*SweepResult, error) {
	defer logging.TraceDuration(u.log, "BillingUC.RunSweep")()
	if subtle.ConstantTimeCompare([]byte(secret), []byte(u.secret)) != 1 {
		return nil, domain.ErrUnauthorized
	}

	token, err := u.locker.TryLock(ctx, sweepLockKey, 10*time.Minute)
	if err != nil {
		return nil, domain.ErrSweepAlreadyRuns
	}
	defer func() { _ = u.locker.Unlock(ctx, sweepLockKey, token) }()

	now := u.now()
	due, err := u.subs.ListDue(ctx, nil, now, u.batch)
	if err != nil {
		return nil, err
	}

	res := &SweepResult{}
	for _, sub := range due {
		// One subscription's failure must never abort the sweep.
		if sub.CancelAtPeriodEnd && !now.Before(sub.EndDate) {
			if err := u.expire(ctx, sub.ID, now); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: expire: %v", sub.ID, err))
			} else {
				res.Expired++
			}
			continue
		}
		res.Processed++
		switch err := u.billOne(ctx, sub.ID, now); {
		case err == nil:
			res.Successful++
		case errors.Is(err, domain.ErrGatewayTimeout):
			res.Unknown++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: outcome unknown: %v", sub.ID, err))
		case errors.Is(err, domain.ErrDuplicateEvent):
			// already billed for this period; treat as success no-op
			res.Processed--
		default:
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", sub.ID, err))
		}
	}

	metrics.ObserveSweep(res.Successful, res.Failed, res.Expired)
	if counts, err := u.subs.CountByStatus(ctx, nil); err == nil {
		metrics.SetSubscriptionsTotal(counts)
	}
	u.log.Info().
		Int("processed", res.Processed).
		Int("successful", res.Successful).
		Int("failed", res.Failed).
		Int("expired", res.Expired).
		Int("unknown", res.Unknown).
		Msg("billing sweep finished")
	return res, nil
}

// billOne charges a single due subscription and applies the resulting
// transition. The ledger's per-period record makes a second sweep for the same
// period a no-op.
func (u *billingUC) billOne(ctx context.Context, subscriptionID string, now time.Time) error {
	sub, err := u.subs.FindByID(ctx, nil, subscriptionID)
	if err != nil {
		return err
	}
	if !sub.DueForBilling(now) {
		return domain.ErrDuplicateEvent
	}
	plan, err := u.catalog.Find(sub.PlanID)
	if err != nil {
		return err
	}
	periodKey := model.PeriodKeyFor(sub.NextBillingDate)
	if done, err := u.ledger.ExistsForPeriod(ctx, nil, sub.ID, periodKey); err != nil {
		return err
	} else if done {
		return domain.ErrDuplicateEvent
	}
	if sub.GatewayCustomerID == nil {
		return domain.ErrMissingPaymentMethod
	}

	price := plan.Price(sub.BillingInterval)
	start := time.Now()
	charge, chargeErr := u.gateway.Charge(ctx, price, u.currency, *sub.GatewayCustomerID, map[string]string{
		"subscription_id": sub.ID,
		"period":          periodKey,
		"purpose":         "recurring_payment",
	})
	metrics.ObserveGatewayCall("charge", chargeErr == nil, time.Since(start))

	if errors.Is(chargeErr, domain.ErrGatewayTimeout) {
		// Unknown outcome: do not mark past_due, do not log a failed entry.
		// The webhook or the next sweep reconciles the truth.
		u.log.Warn().Str("subscription_id", sub.ID).Msg("charge timed out; leaving for reconciliation")
		return domain.ErrGatewayTimeout
	}

	if chargeErr != nil || charge.Status == adapter.ChargeStatusFailed {
		detail := "charge failed"
		if chargeErr != nil {
			detail = chargeErr.Error()
		}
		if err := u.recordFailure(ctx, sub.ID, price, periodKey, charge.ID, detail, now); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", domain.ErrGatewayDeclined, detail)
	}

	return u.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		cur, err := u.subs.FindByID(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		readAt := cur.UpdatedAt
		entry, _ := model.NewTransaction(ulid.Make().String(), cur.ID, model.TransactionRecurringPayment, price, model.TransactionStatusCompleted, now)
		entry.GatewayRef = charge.ID
		entry.PeriodKey = periodKey
		entry.Metadata["plan_id"] = plan.ID

		if cur.Status == model.SubscriptionStatusCancelled {
			// Cancelled while the charge was in flight: log for audit but
			// never revert a terminal state.
			entry.Metadata["terminal"] = true
			return u.ledger.Append(ctx, tx, entry)
		}
		if err := cur.Apply(model.Transition{Kind: model.TransitionRenewalSucceeded, At: now}); err != nil {
			return err
		}
		if err := u.subs.Update(ctx, tx, cur, readAt); err != nil {
			return err
		}
		return u.ledger.Append(ctx, tx, entry)
	})
}

func (u *billingUC) recordFailure(ctx context.Context, subscriptionID string, amount int64, periodKey, gatewayRef, detail string, now time.Time) error {
	return u.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		cur, err := u.subs.FindByID(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		readAt := cur.UpdatedAt
		entry, _ := model.NewTransaction(ulid.Make().String(), cur.ID, model.TransactionRecurringPayment, amount, model.TransactionStatusFailed, now)
		entry.GatewayRef = gatewayRef
		entry.Metadata["period"] = periodKey
		entry.Metadata["error"] = detail
		if cur.Status != model.SubscriptionStatusCancelled {
			if err := cur.Apply(model.Transition{Kind: model.TransitionRenewalFailed, At: now}); err != nil {
				return err
			}
			if err := u.subs.Update(ctx, tx, cur, readAt); err != nil {
				return err
			}
		}
		return u.ledger.Append(ctx, tx, entry)
	})
}

// expire applies the pending period-end cancellation for a flagged
// subscription whose paid-through date has passed.
func (u *billingUC) expire(ctx context.Context, subscriptionID string, now time.Time) error {
	return u.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		cur, err := u.subs.FindByID(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		readAt := cur.UpdatedAt
		if err := cur.Apply(model.Transition{Kind: model.TransitionPeriodElapsed, At: now}); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				return nil // raced with another writer; nothing to do
			}
			return err
		}
		entry, _ := model.NewTransaction(ulid.Make().String(), cur.ID, model.TransactionCancellation, 0, model.TransactionStatusCompleted, now)
		entry.Metadata["period_end"] = true
		if err := u.subs.Update(ctx, tx, cur, readAt); err != nil {
			return err
		}
		return u.ledger.Append(ctx, tx, entry)
	})
}
