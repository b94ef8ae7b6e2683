package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "idempotency:"

// RedisStore keeps records as JSON values. SETNX serialises concurrent reservations. A positive
// ttl expires records on the server and turns Cleanup into a no-op.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore constructs the store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

func redisKey(requestID string) string { return redisKeyPrefix + requestID }

// Reserve sets a reserved record when the key is absent or reports the existing one.
func (s *RedisStore) Reserve(ctx context.Context, requestID string) (Outcome, error) {
	if requestID == "" {
		return Outcome{}, ErrMissingRequestID
	}
	payload, err := json.Marshal(Record{RequestID: requestID, State: StateReserved, ReservedAt: s.now().UTC()})
	if err != nil {
		return Outcome{}, err
	}
	key := redisKey(requestID)
	for attempt := 0; attempt < reserveAttempts; attempt++ {
		ok, err := s.client.SetNX(ctx, key, payload, s.ttl).Result()
		if err != nil {
			return Outcome{}, unavailable("reserve", err)
		}
		if ok {
			return Fresh(), nil
		}
		rec, err := s.get(ctx, key)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return Outcome{}, unavailable("reserve", err)
		}
		if rec.State != StateCompleted {
			return Outcome{}, ErrInFlight
		}
		return Replay(rec.Result), nil
	}
	return Outcome{}, ErrInFlight
}

// Complete overwrites an existing reserved record with the completed one.
func (s *RedisStore) Complete(ctx context.Context, requestID string, result []byte) error {
	key := redisKey(requestID)
	rec, err := s.get(ctx, key)
	if errors.Is(err, redis.Nil) {
		return ErrNotReserved
	}
	if err != nil {
		return unavailable("complete", err)
	}
	rec.State = StateCompleted
	rec.Result = result
	rec.CompletedAt = s.now().UTC()
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ok, err := s.client.SetXX(ctx, key, payload, s.ttl).Result()
	if err != nil {
		return unavailable("complete", err)
	}
	if !ok {
		return ErrNotReserved
	}
	return nil
}

// Release deletes the record.
func (s *RedisStore) Release(ctx context.Context, requestID string) error {
	if err := s.client.Del(ctx, redisKey(requestID)).Err(); err != nil {
		return unavailable("release", err)
	}
	return nil
}

// Cleanup scans the record keyspace and removes records reserved before now-olderThan.
func (s *RedisStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s.ttl > 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-olderThan)
	var removed int64
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		rec, err := s.get(ctx, key)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return removed, unavailable("cleanup", err)
		}
		if !rec.ReservedAt.Before(cutoff) {
			continue
		}
		n, err := s.client.Del(ctx, key).Result()
		if err != nil {
			return removed, unavailable("cleanup", err)
		}
		removed += n
	}
	if err := iter.Err(); err != nil {
		return removed, unavailable("cleanup", err)
	}
	return removed, nil
}

func (s *RedisStore) get(ctx context.Context, key string) (Record, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

var _ Store = (*RedisStore)(nil)
