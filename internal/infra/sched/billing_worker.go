package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"vendor-billing-engine/internal/domain"
	"vendor-billing-engine/internal/usecase"
)

// BillingWorker periodically runs the recurring billing sweep via the use
// case. The sweep itself holds a distributed lock, so overlapping ticks and
// other replicas degrade to a no-op.
type BillingWorker struct {
	interval time.Duration
	secret   string
	billing  usecase.BillingUseCase
	log      *zerolog.Logger
}

func NewBillingWorker(interval time.Duration, secret string, billing usecase.BillingUseCase, logger *zerolog.Logger) *BillingWorker {
	wLog := logger.With().Str("component", "BillingWorker").Logger()
	return &BillingWorker{
		interval: interval,
		secret:   secret,
		billing:  billing,
		log:      &wLog,
	}
}

func (w *BillingWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting billing worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping billing worker")
			return ctx.Err()
		case <-ticker.C:
			res, err := w.billing.RunSweep(ctx, w.secret)
			switch {
			case errors.Is(err, domain.ErrSweepAlreadyRuns):
				w.log.Debug().Msg("sweep already running elsewhere, skipping tick")
			case err != nil:
				w.log.Error().Err(err).Msg("billing sweep error")
			default:
				w.log.Info().
					Int("processed", res.Processed).
					Int("successful", res.Successful).
					Int("failed", res.Failed).
					Int("expired", res.Expired).
					Int("unknown", res.Unknown).
					Msg("billing sweep finished")
			}
		}
	}
}
