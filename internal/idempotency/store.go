package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingRequestID is returned when a mutation arrives without a request id.
	ErrMissingRequestID = errors.New("idempotency: request id header required")
	// ErrInFlight is returned by Reserve while another execution holds the reservation.
	ErrInFlight = errors.New("idempotency: request already in flight")
	// ErrNotReserved is returned by Complete when no reservation exists for the id.
	ErrNotReserved = errors.New("idempotency: request id not reserved")
	// ErrStoreUnavailable wraps every storage failure. It is never treated as a fresh reservation.
	ErrStoreUnavailable = errors.New("idempotency: store unavailable")
)

// Store is an atomic reservation table keyed by request id.
//
// Reserve creates a reserved record and returns Fresh when none exists, returns the stored result
// when the record is completed, and returns ErrInFlight when the record is still reserved.
// Complete transitions a reserved record to completed. Release deletes the record so the id can be
// retried. Cleanup removes records reserved before the cutoff and reports how many were removed.
type Store interface {
	Reserve(ctx context.Context, requestID string) (Outcome, error)
	Complete(ctx context.Context, requestID string, result []byte) error
	Release(ctx context.Context, requestID string) error
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

// reserveAttempts bounds the retries when a conflicting record disappears between the insert
// and the read that follows it.
const reserveAttempts = 3
