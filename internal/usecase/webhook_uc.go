// File: internal/usecase/webhook_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"errors"
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

var _ WebhookUseCase = (*webhookUC)(nil)

// WebhookUseCase maps asynchronous gateway events onto state-machine
// transitions, idempotently. A redelivered event is a no-op; an unknown event
// type or an unmatched subscription is acknowledged and only logged, because a
// non-2xx answer would trigger endless provider redelivery.
type WebhookUseCase interface {
	HandleEvent(ctx context.Context, raw []byte) error
}

type webhookUC struct {
	subs     repository.SubscriptionRepository
	ledger   repository.LedgerRepository
	gateway  adapter.PaymentGateway
	txm      repository.TransactionManager
	currency string
	log      *zerolog.Logger
	now      func() time.Time
}

func NewWebhookUseCase(
	subs repository.SubscriptionRepository,
	ledger repository.LedgerRepository,
	gateway adapter.PaymentGateway,
	txm repository.TransactionManager,
	currency string,
	logger *zerolog.Logger,
) *webhookUC {
	l := logger.With().Str("component", "WebhookUC").Logger()
	return &webhookUC{
		subs:     subs,
		ledger:   ledger,
		gateway:  gateway,
		txm:      txm,
		currency: currency,
		log:      &l,
		now:      time.Now,
	}
}

func (u *webhookUC) WithClock(now func() time.Time) *webhookUC {
	u.now = now
	return u
}

// HandleEvent returns an error only when the payload cannot be parsed; every
// recognized-or-not event is otherwise acknowledged.
func (u *webhookUC) HandleEvent(ctx context.Context, raw []byte) error {
	defer logging.TraceDuration(u.log, "WebhookUC.HandleEvent")()
	var ev adapter.WebhookEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return domain.ErrInvalidArgument
	}

	switch ev.EventType {
	case adapter.EventPaymentPaid:
		u.reconcilePayment(ctx, ev, model.TransactionWebhookSuccess, true)
	case adapter.EventPaymentFailed:
		u.reconcilePayment(ctx, ev, model.TransactionWebhookFailed, false)
	case adapter.EventSourceChargeable:
		u.chargeSource(ctx, ev)
	default:
		u.log.Info().Str("event_type", ev.EventType).Str("event_id", ev.Data.ID).Msg("ignoring unrecognized webhook event")
		metrics.IncWebhookEvent(ev.EventType, "ignored")
	}
	return nil
}

// reconcilePayment applies the outcome of a provider payment to the owning
// subscription. paid=true drives an active-ward transition, paid=false marks
// the subscription past_due.
func (u *webhookUC) reconcilePayment(ctx context.Context, ev adapter.WebhookEvent, typ model.TransactionType, paid bool) {
	subID := ev.Data.Attributes.Metadata["subscription_id"]
	if subID == "" {
		u.log.Warn().Str("event_id", ev.Data.ID).Str("event_type", ev.EventType).Msg("webhook event without subscription reference")
		metrics.IncWebhookEvent(ev.EventType, "unmatched")
		return
	}

	err := u.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		seen, err := u.ledger.ExistsByGatewayRef(ctx, tx, subID, typ, ev.Data.ID)
		if err != nil {
			return err
		}
		if seen {
			return domain.ErrDuplicateEvent
		}
		sub, err := u.subs.FindByID(ctx, tx, subID)
		if err != nil {
			return err
		}
		readAt := sub.UpdatedAt

		now := u.now()
		status := model.TransactionStatusCompleted
		if !paid {
			status = model.TransactionStatusFailed
		}
		entry, _ := model.NewTransaction(ulid.Make().String(), sub.ID, typ, ev.Data.Attributes.Amount, status, now)
		entry.GatewayRef = ev.Data.ID
		if reason := ev.Data.Attributes.Reason; reason != "" {
			entry.Metadata["reason"] = reason
		}

		if sub.Status == model.SubscriptionStatusCancelled {
			// Terminal: log the event for audit, never resurrect.
			entry.Metadata["terminal"] = true
			return u.ledger.Append(ctx, tx, entry)
		}

		if paid && sub.Status != model.SubscriptionStatusPastDue && now.Before(sub.NextBillingDate) {
			// The provider echoes charges the sweep itself initiated. By the
			// time the event lands the period is already paid through, and
			// advancing again would gift the vendor a free interval. Record
			// the entry for audit only.
			entry.Metadata["already_settled"] = true
			return u.ledger.Append(ctx, tx, entry)
		}

		kind := model.TransitionRenewalSucceeded
		if !paid {
			kind = model.TransitionRenewalFailed
		}
		if paid {
			entry.PeriodKey = model.PeriodKeyFor(sub.NextBillingDate)
		}
		if err := sub.Apply(model.Transition{Kind: kind, At: now}); err != nil {
			return err
		}
		if err := u.subs.Update(ctx, tx, sub, readAt); err != nil {
			return err
		}
		return u.ledger.Append(ctx, tx, entry)
	})

	switch {
	case err == nil:
		metrics.IncWebhookEvent(ev.EventType, "applied")
	case errors.Is(err, domain.ErrDuplicateEvent):
		u.log.Debug().Str("event_id", ev.Data.ID).Msg("duplicate webhook delivery; already handled")
		metrics.IncWebhookEvent(ev.EventType, "duplicate")
	case errors.Is(err, domain.ErrNotFound):
		u.log.Warn().Str("event_id", ev.Data.ID).Str("subscription_id", subID).Msg("webhook for unknown subscription")
		metrics.IncWebhookEvent(ev.EventType, "unmatched")
	default:
		u.log.Error().Err(err).Str("event_id", ev.Data.ID).Msg("webhook reconciliation failed")
		metrics.IncWebhookEvent(ev.EventType, "error")
	}
}

// chargeSource converts a chargeable e-wallet source into an actual charge,
// then records the outcome like a payment event.
func (u *webhookUC) chargeSource(ctx context.Context, ev adapter.WebhookEvent) {
	subID := ev.Data.Attributes.Metadata["subscription_id"]
	sourceID := ev.Data.Attributes.Source
	if sourceID == "" {
		sourceID = ev.Data.ID
	}
	if subID == "" {
		u.log.Warn().Str("event_id", ev.Data.ID).Msg("chargeable source without subscription reference")
		metrics.IncWebhookEvent(ev.EventType, "unmatched")
		return
	}

	// Claim the source before touching the gateway: charging the same source
	// twice is the one mistake this handler must never make. The ledger's
	// uniqueness on (subscription, type, ref) makes a redelivered or
	// concurrent event lose here instead of issuing a second charge, and the
	// claim keeps covering the window where a timed-out charge's outcome is
	// known only to the provider.
	claim, _ := model.NewTransaction(ulid.Make().String(), subID, model.TransactionEwalletPayment, ev.Data.Attributes.Amount, model.TransactionStatusPending, u.now())
	claim.GatewayRef = sourceID
	claim.Metadata["source"] = true
	if err := u.ledger.Append(ctx, nil, claim); err != nil {
		if errors.Is(err, domain.ErrDuplicateEvent) {
			metrics.IncWebhookEvent(ev.EventType, "duplicate")
			return
		}
		u.log.Error().Err(err).Str("source_id", sourceID).Msg("could not claim chargeable source")
		metrics.IncWebhookEvent(ev.EventType, "error")
		return
	}

	start := time.Now()
	res, chargeErr := u.gateway.Charge(ctx, ev.Data.Attributes.Amount, u.currency, sourceID, map[string]string{
		"subscription_id": subID,
		"purpose":         "ewallet_payment",
	})
	metrics.ObserveGatewayCall("charge_source", chargeErr == nil, time.Since(start))
	if errors.Is(chargeErr, domain.ErrGatewayTimeout) {
		// Unknown outcome; the provider will emit payment.paid/failed later.
		u.log.Warn().Str("source_id", sourceID).Msg("source charge timed out; awaiting payment event")
		metrics.IncWebhookEvent(ev.EventType, "unknown")
		return
	}

	now := u.now()
	txErr := u.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		sub, err := u.subs.FindByID(ctx, tx, subID)
		if err != nil {
			return err
		}
		readAt := sub.UpdatedAt

		// The claim already carries sourceID; the outcome entry is keyed to
		// the resulting payment so the two never collide on the ref index.
		entry, _ := model.NewTransaction(ulid.Make().String(), sub.ID, model.TransactionEwalletPayment, ev.Data.Attributes.Amount, model.TransactionStatusCompleted, now)
		entry.GatewayRef = res.ID
		entry.Metadata["source_id"] = sourceID

		failed := chargeErr != nil || res.Status == adapter.ChargeStatusFailed
		if chargeErr != nil {
			entry.Metadata["error"] = chargeErr.Error()
		}
		if failed {
			entry.Status = model.TransactionStatusFailed
		}
		if sub.Status == model.SubscriptionStatusCancelled {
			entry.Metadata["terminal"] = true
			return u.ledger.Append(ctx, tx, entry)
		}
		kind := model.TransitionRenewalSucceeded
		if failed {
			kind = model.TransitionRenewalFailed
		} else {
			entry.PeriodKey = model.PeriodKeyFor(sub.NextBillingDate)
		}
		if err := sub.Apply(model.Transition{Kind: kind, At: now}); err != nil {
			return err
		}
		if err := u.subs.Update(ctx, tx, sub, readAt); err != nil {
			return err
		}
		return u.ledger.Append(ctx, tx, entry)
	})
	if txErr != nil {
		u.log.Error().Err(txErr).Str("source_id", sourceID).Msg("ewallet reconciliation failed")
		metrics.IncWebhookEvent(ev.EventType, "error")
		return
	}
	metrics.IncWebhookEvent(ev.EventType, "applied")
}
