package credentials

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/tacbyte/tacstats/internal/auth"
)

// InvalidationChannel is the pub/sub channel on which config writers announce secret changes.
const InvalidationChannel = "config.bump"

// SecretCache serves the current instance secrets from memory, reloading after ttl or on
// invalidation. Concurrent reloads collapse into one repository read.
type SecretCache struct {
	repo     Repository
	instance string
	ttl      time.Duration
	now      func() time.Time
	group    singleflight.Group

	mu         sync.RWMutex
	cached     auth.Secrets
	loadedAt   time.Time
	valid      bool
	generation uint64
}

// NewSecretCache constructs a SecretCache. A non-positive ttl disables caching.
func NewSecretCache(repo Repository, instance string, ttl time.Duration) *SecretCache {
	return &SecretCache{repo: repo, instance: instance, ttl: ttl, now: time.Now}
}

// CurrentSecrets returns cached secrets, loading them when stale. The shared load runs detached
// from the caller's cancellation so one abandoned request does not fail its waiters.
func (c *SecretCache) CurrentSecrets(ctx context.Context) (auth.Secrets, error) {
	c.mu.RLock()
	if c.valid && c.now().Sub(c.loadedAt) < c.ttl {
		s := c.cached
		c.mu.RUnlock()
		return s, nil
	}
	c.mu.RUnlock()

	loadCtx := context.WithoutCancel(ctx)
	res, err, _ := c.group.Do(c.instance, func() (interface{}, error) {
		return c.load(loadCtx)
	})
	if err != nil {
		return auth.Secrets{}, err
	}
	return res.(auth.Secrets), nil
}

func (c *SecretCache) load(ctx context.Context) (auth.Secrets, error) {
	c.mu.RLock()
	generation := c.generation
	c.mu.RUnlock()

	cfg, err := c.repo.InstanceConfig(ctx, c.instance)
	if err != nil {
		return auth.Secrets{}, err
	}
	s := auth.Secrets{SigningSecret: []byte(cfg.Secret), MasterKeyHash: cfg.MasterKeyHash}
	c.mu.Lock()
	// An invalidation that landed during the read wins; the result is not cached.
	if c.generation == generation {
		c.cached = s
		c.loadedAt = c.now()
		c.valid = true
	}
	c.mu.Unlock()
	return s, nil
}

// Invalidate drops the cached secrets and detaches any load already in flight, so later callers
// read the repository again.
func (c *SecretCache) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.generation++
	c.mu.Unlock()
	c.group.Forget(c.instance)
}

// ListenForInvalidation drops the cache whenever a message naming this instance, or an empty
// message, arrives on channel. It returns once the subscription is confirmed.
func (c *SecretCache) ListenForInvalidation(ctx context.Context, client *redis.Client, channel string, logger *slog.Logger) error {
	if client == nil {
		return nil
	}
	if channel == "" {
		channel = InvalidationChannel
	}
	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg.Payload == "" || msg.Payload == c.instance {
					c.Invalidate()
					if logger != nil {
						logger.Info("secret cache invalidated", slog.String("instance", c.instance))
					}
				}
			}
		}
	}()
	return nil
}

// PublishInvalidation announces a secret change for instance.
func PublishInvalidation(ctx context.Context, client *redis.Client, instance string) error {
	return client.Publish(ctx, InvalidationChannel, instance).Err()
}

var _ auth.SecretProvider = (*SecretCache)(nil)
