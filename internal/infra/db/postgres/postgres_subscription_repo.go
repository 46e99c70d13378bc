package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"vendor-billing-engine/internal/domain"
	"vendor-billing-engine/internal/domain/model"
	"vendor-billing-engine/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subColumns = `
id, vendor_id, plan_id, billing_interval, status, start_date, end_date,
trial_end_date, next_billing_date, cancelled_at, cancel_reason,
payment_method_id, gateway_customer_id, cancel_at_period_end, created_at, updated_at`

func (r *subscriptionRepo) Create(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (
  id, vendor_id, plan_id, billing_interval, status, start_date, end_date,
  trial_end_date, next_billing_date, cancelled_at, cancel_reason,
  payment_method_id, gateway_customer_id, cancel_at_period_end, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16);`

	_, err := execSQL(ctx, r.pool, tx, q,
		s.ID, s.VendorID, s.PlanID, s.BillingInterval, s.Status, s.StartDate, s.EndDate,
		s.TrialEndDate, s.NextBillingDate, s.CancelledAt, s.CancelReason,
		s.PaymentMethodID, s.GatewayCustomerID, s.CancelAtPeriodEnd, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return err
		default:
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return domain.ErrOperationFailed
		}
	}
	return nil
}

// Update writes the whole row conditionally on the updated_at value the caller
// read, so two racing writers cannot silently overwrite each other.
func (r *subscriptionRepo) Update(ctx context.Context, tx repository.Tx, s *model.Subscription, readAt time.Time) error {
	const q = `
UPDATE subscriptions SET
  plan_id=$2, billing_interval=$3, status=$4, start_date=$5, end_date=$6,
  trial_end_date=$7, next_billing_date=$8, cancelled_at=$9, cancel_reason=$10,
  payment_method_id=$11, gateway_customer_id=$12, cancel_at_period_end=$13, updated_at=$14
WHERE id=$1 AND updated_at=$15;`

	tag, err := execSQL(ctx, r.pool, tx, q,
		s.ID, s.PlanID, s.BillingInterval, s.Status, s.StartDate, s.EndDate,
		s.TrialEndDate, s.NextBillingDate, s.CancelledAt, s.CancelReason,
		s.PaymentMethodID, s.GatewayCustomerID, s.CancelAtPeriodEnd, s.UpdatedAt, readAt)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return err
		default:
			return domain.ErrOperationFailed
		}
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	q := `SELECT ` + subColumns + ` FROM subscriptions WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	return r.queryOne(ctx, tx, q, id)
}

func (r *subscriptionRepo) FindActiveByVendor(ctx context.Context, tx repository.Tx, vendorID string) (*model.Subscription, error) {
	q := `
SELECT ` + subColumns + `
  FROM subscriptions
 WHERE vendor_id=$1 AND status IN ('trial','active','past_due')
 ORDER BY created_at DESC
 LIMIT 1;`
	return r.queryOne(ctx, tx, q, vendorID)
}

func (r *subscriptionRepo) ListDue(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error) {
	q := `
SELECT ` + subColumns + `
  FROM subscriptions
 WHERE (status IN ('trial','active','past_due')
        AND next_billing_date <= $1
        AND payment_method_id IS NOT NULL
        AND NOT (cancel_at_period_end AND end_date <= $1))
    OR (status IN ('trial','active','past_due')
        AND cancel_at_period_end
        AND end_date <= $1)
 ORDER BY next_billing_date ASC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, now, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()
	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSub(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *subscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	const q = `SELECT status, COUNT(*) FROM subscriptions GROUP BY status;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	counts := make(map[model.SubscriptionStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		counts[model.SubscriptionStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return counts, nil
}

func (r *subscriptionRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.Subscription, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	return scanSub(row)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSub(row rowScanner) (*model.Subscription, error) {
	s := &model.Subscription{}
	var interval, status string
	if err := row.Scan(&s.ID, &s.VendorID, &s.PlanID, &interval, &status, &s.StartDate, &s.EndDate,
		&s.TrialEndDate, &s.NextBillingDate, &s.CancelledAt, &s.CancelReason,
		&s.PaymentMethodID, &s.GatewayCustomerID, &s.CancelAtPeriodEnd, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	s.BillingInterval = model.BillingInterval(interval)
	s.Status = model.SubscriptionStatus(status)
	return s, nil
}
