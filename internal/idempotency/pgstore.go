package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tacbyte/tacstats/internal/platform/db"
)

// PGPool is the subset of *pgxpool.Pool used by PGStore.
type PGPool interface {
	db.TxBeginner
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGStore keeps records in the idempotency_records table. The primary key on request_id
// serialises concurrent reservations.
type PGStore struct {
	pool PGPool
	now  func() time.Time
}

// NewPGStore constructs the store.
func NewPGStore(pool PGPool) *PGStore {
	return &PGStore{pool: pool, now: time.Now}
}

// Reserve inserts a reserved record or reports the state of the existing one.
func (s *PGStore) Reserve(ctx context.Context, requestID string) (Outcome, error) {
	if requestID == "" {
		return Outcome{}, ErrMissingRequestID
	}
	for attempt := 0; attempt < reserveAttempts; attempt++ {
		var (
			outcome Outcome
			gone    bool
		)
		err := db.WithTx(ctx, s.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, `INSERT INTO idempotency_records (request_id, state, reserved_at)
VALUES ($1, $2, $3) ON CONFLICT (request_id) DO NOTHING`, requestID, string(StateReserved), s.now())
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 1 {
				outcome = Fresh()
				return nil
			}
			var (
				state  string
				result []byte
			)
			err = tx.QueryRow(ctx, `SELECT state, result FROM idempotency_records WHERE request_id=$1`, requestID).Scan(&state, &result)
			if errors.Is(err, pgx.ErrNoRows) {
				gone = true
				return nil
			}
			if err != nil {
				return err
			}
			if State(state) != StateCompleted {
				return ErrInFlight
			}
			outcome = Replay(result)
			return nil
		})
		if errors.Is(err, ErrInFlight) {
			return Outcome{}, ErrInFlight
		}
		if err != nil {
			return Outcome{}, unavailable("reserve", err)
		}
		if !gone {
			return outcome, nil
		}
	}
	return Outcome{}, ErrInFlight
}

// Complete stores the result of a reserved request id.
func (s *PGStore) Complete(ctx context.Context, requestID string, result []byte) error {
	tag, err := s.pool.Exec(ctx, `UPDATE idempotency_records SET state=$2, result=$3, completed_at=$4
WHERE request_id=$1 AND state=$5`, requestID, string(StateCompleted), result, s.now(), string(StateReserved))
	if err != nil {
		return unavailable("complete", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotReserved
	}
	return nil
}

// Release deletes the record so the request id can be retried.
func (s *PGStore) Release(ctx context.Context, requestID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM idempotency_records WHERE request_id=$1`, requestID); err != nil {
		return unavailable("release", err)
	}
	return nil
}

// Cleanup removes records reserved before now-olderThan.
func (s *PGStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_records WHERE reserved_at < $1`, cutoff)
	if err != nil {
		return 0, unavailable("cleanup", err)
	}
	return tag.RowsAffected(), nil
}

// Schema creates the idempotency table when it does not exist.
const Schema = `CREATE TABLE IF NOT EXISTS idempotency_records (
	request_id   TEXT PRIMARY KEY,
	state        TEXT NOT NULL,
	result       BYTEA,
	reserved_at  TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
)`

var _ Store = (*PGStore)(nil)
