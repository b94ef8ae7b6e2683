// Package idempotency guarantees that a mutation identified by a client-chosen request id
// takes effect at most once.
package idempotency

import "time"

// HeaderRequestID carries the client-chosen request id.
const HeaderRequestID = "X-Request-ID"

// State of an idempotency record.
type State string

const (
	StateReserved  State = "reserved"
	StateCompleted State = "completed"
)

// Record is the persisted reservation for one request id. Failed executions leave no record.
type Record struct {
	RequestID   string    `json:"requestId"`
	State       State     `json:"state"`
	Result      []byte    `json:"result,omitempty"`
	ReservedAt  time.Time `json:"reservedAt"`
	CompletedAt time.Time `json:"completedAt,omitempty"`
}

// Outcome of a reservation attempt. When Fresh is false, Result holds the stored result of the
// completed execution.
type Outcome struct {
	Fresh  bool
	Result []byte
}

// Fresh is the outcome of a successful new reservation.
func Fresh() Outcome { return Outcome{Fresh: true} }

// Replay is the outcome for an already completed request id.
func Replay(result []byte) Outcome { return Outcome{Result: result} }
