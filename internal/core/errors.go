package core

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// The engine returns typed errors so callers can branch on the failure class
// without parsing messages: adapters map them to HTTP statuses, the batch
// processor puts their codes in per-row reports. Anything not covered below
// is an unexpected persistence failure and stays a plain wrapped error.

// NotFoundError: unknown warehouse/location/product/stock lot. Safe to retry
// with corrected input.
type NotFoundError struct {
	Kind string // "warehouse", "location", "product", "stock lot", ...
	Ref  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Ref)
}

// ValidationError: caller bug (non-positive quantity, malformed hierarchy,
// duplicate idempotency key). Never retried automatically.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// InsufficientStockError: requested quantity exceeds what the lot holds.
// Surfaced verbatim to the user with both amounts.
type InsufficientStockError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: requested %s, available %s",
		e.Requested.String(), e.Available.String())
}

// StatusRestrictionError: the operation is gated by a status effect on the
// lot, its location, product, or warehouse.
type StatusRestrictionError struct {
	EntityType EntityType
	StatusCode string
	Effect     StatusEffect
	Operation  MovementType
}

func (e *StatusRestrictionError) Error() string {
	return fmt.Sprintf("%s blocked: %s status %q has effect %s",
		e.Operation, e.EntityType, e.StatusCode, e.Effect)
}

// ConcurrencyConflictError: lock contention or serialization failure. The
// whole operation is safe to retry from scratch.
type ConcurrencyConflictError struct {
	Op string
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrent conflict during %s, retry the operation", e.Op)
}

// ErrorCode returns the stable machine code for an engine error, used in
// batch reports and HTTP responses.
func ErrorCode(err error) string {
	var (
		nf *NotFoundError
		ve *ValidationError
		is *InsufficientStockError
		sr *StatusRestrictionError
		cc *ConcurrencyConflictError
	)
	switch {
	case errors.As(err, &nf):
		return "NOT_FOUND"
	case errors.As(err, &ve):
		return "VALIDATION"
	case errors.As(err, &is):
		return "INSUFFICIENT_STOCK"
	case errors.As(err, &sr):
		return "STATUS_RESTRICTED"
	case errors.As(err, &cc):
		return "CONCURRENCY_CONFLICT"
	default:
		return "INTERNAL"
	}
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// translateConflict converts PostgreSQL serialization/deadlock SQLSTATEs into
// a retryable ConcurrencyConflictError and leaves everything else untouched.
func translateConflict(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03": // serialization, deadlock, lock not available
			return &ConcurrencyConflictError{Op: op}
		}
	}
	return err
}
