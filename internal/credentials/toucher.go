package credentials

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tacbyte/tacstats/internal/auth"
)

// FailureRecorder counts bookkeeping failures.
type FailureRecorder interface {
	RecordBookkeepingFailure(kind string)
}

// Toucher bumps lastUse/lastContact in the background. Failures are logged and counted only.
type Toucher struct {
	repo     Repository
	logger   *slog.Logger
	failures FailureRecorder
	timeout  time.Duration
}

// NewToucher constructs a Toucher. failures may be nil.
func NewToucher(repo Repository, logger *slog.Logger, failures FailureRecorder) *Toucher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Toucher{repo: repo, logger: logger, failures: failures, timeout: 5 * time.Second}
}

// TouchAuthKey schedules a lastUse update.
func (t *Toucher) TouchAuthKey(id uuid.UUID, at time.Time) {
	t.spawn("auth_key", id, func(ctx context.Context) error {
		return t.repo.TouchAuthKey(ctx, id, at)
	})
}

// TouchGameserver schedules a lastContact update.
func (t *Toucher) TouchGameserver(id uuid.UUID, at time.Time) {
	t.spawn("gameserver", id, func(ctx context.Context) error {
		return t.repo.TouchGameserver(ctx, id, at)
	})
}

func (t *Toucher) spawn(kind string, id uuid.UUID, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			t.logger.Warn("credential bookkeeping", slog.String("kind", kind), slog.String("id", id.String()), slog.Any("error", err))
			if t.failures != nil {
				t.failures.RecordBookkeepingFailure(kind)
			}
		}
	}()
}

var _ auth.Toucher = (*Toucher)(nil)
