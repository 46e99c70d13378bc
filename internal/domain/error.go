package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound             = errors.New("entity not found")
	ErrUnknownPlan          = errors.New("unknown plan")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrInvalidTransition    = errors.New("transition not allowed from current status")
	ErrNotEligible          = errors.New("subscription not eligible for this operation")
	ErrMissingPaymentMethod = errors.New("no payment method on file")
	ErrDuplicateEvent       = errors.New("event already processed")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrConflict             = errors.New("subscription was modified concurrently")

	// Gateway errors. A declined charge is a definite failure; a timeout is an
	// unknown outcome and must not be treated as a decline.
	ErrGatewayDeclined = errors.New("gateway declined the charge")
	ErrGatewayTimeout  = errors.New("gateway call timed out")

	// Infra errors
	ErrOperationFailed    = errors.New("storage operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid transaction handle")
	ErrSweepAlreadyRuns   = errors.New("another billing sweep holds the lock")
)
