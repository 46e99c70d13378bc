package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"vendor-billing-engine/internal/domain"
	"vendor-billing-engine/internal/domain/model"
	"vendor-billing-engine/internal/domain/ports/repository"
)

var _ repository.LedgerRepository = (*ledgerRepo)(nil)

// ledgerRepo persists the append-only transaction ledger. Unique indexes on
// (subscription_id, period_key) for completed recurring rows and on
// (subscription_id, type, gateway_ref) back the idempotency checks, so a
// duplicate append surfaces as ErrDuplicateEvent instead of a second row.
type ledgerRepo struct{ pool *pgxpool.Pool }

func NewLedgerRepo(pool *pgxpool.Pool) *ledgerRepo {
	return &ledgerRepo{pool: pool}
}

func (r *ledgerRepo) Append(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	const q = `
INSERT INTO ledger_entries (
  id, subscription_id, type, amount, status, gateway_ref, period_key, metadata, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`

	_, err := execSQL(ctx, r.pool, tx, q,
		t.ID, t.SubscriptionID, t.Type, t.Amount, t.Status,
		nullable(t.GatewayRef), nullable(t.PeriodKey), t.Metadata, t.CreatedAt)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return err
		default:
			if isUniqueViolation(err) {
				return domain.ErrDuplicateEvent
			}
			return domain.ErrOperationFailed
		}
	}
	return nil
}

func (r *ledgerRepo) ExistsByGatewayRef(ctx context.Context, tx repository.Tx, subscriptionID string, typ model.TransactionType, gatewayRef string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM ledger_entries WHERE subscription_id=$1 AND type=$2 AND gateway_ref=$3);`
	row, err := pickRow(ctx, r.pool, tx, q, subscriptionID, typ, gatewayRef)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return exists, nil
}

func (r *ledgerRepo) ExistsForPeriod(ctx context.Context, tx repository.Tx, subscriptionID, periodKey string) (bool, error) {
	const q = `
SELECT EXISTS(
  SELECT 1 FROM ledger_entries
   WHERE subscription_id=$1 AND period_key=$2 AND status='completed');`
	row, err := pickRow(ctx, r.pool, tx, q, subscriptionID, periodKey)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return exists, nil
}

func (r *ledgerRepo) ListBySubscription(ctx context.Context, tx repository.Tx, subscriptionID string, limit int) ([]*model.Transaction, error) {
	const q = `
SELECT id, subscription_id, type, amount, status, COALESCE(gateway_ref,''), COALESCE(period_key,''), metadata, created_at
  FROM ledger_entries
 WHERE subscription_id=$1
 ORDER BY id DESC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, subscriptionID, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()
	var out []*model.Transaction
	for rows.Next() {
		t := &model.Transaction{}
		var typ, status string
		if err := rows.Scan(&t.ID, &t.SubscriptionID, &typ, &t.Amount, &status, &t.GatewayRef, &t.PeriodKey, &t.Metadata, &t.CreatedAt); err != nil {
			if err == pgx.ErrNoRows {
				return nil, domain.ErrNotFound
			}
			return nil, domain.ErrReadDatabaseRow
		}
		t.Type = model.TransactionType(typ)
		t.Status = model.TransactionStatus(status)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
