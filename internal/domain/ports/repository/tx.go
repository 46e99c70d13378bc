package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager executes a function inside a database transaction,
// passing the underlying handle via `tx`.
//
// A state transition and its ledger entry must either both persist or
// neither — the ledger's idempotency checks are only trustworthy if they run
// against committed state. Use-case code therefore wraps every mutation in
// WithTx and hands the same tx to both repositories.
//
// The concrete type of `tx` is infra-defined (pgx.Tx for Postgres).
// Repositories accept a nil tx for the non-transactional read path.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
