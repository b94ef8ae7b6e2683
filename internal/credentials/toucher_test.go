package credentials

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type failureCounter struct {
	mu    sync.Mutex
	kinds []string
}

func (f *failureCounter) RecordBookkeepingFailure(kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
}

func (f *failureCounter) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.kinds...)
}

func TestToucherUpdatesInBackground(t *testing.T) {
	repo := newMemoryRepo()
	keyID := uuid.New()
	repo.authKeys["k1"] = AuthKey{ID: keyID, Key: "k1"}
	toucher := NewToucher(repo, nil, nil)

	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	toucher.TouchAuthKey(keyID, at)

	select {
	case got := <-repo.touched:
		require.Equal(t, keyID, got)
	case <-time.After(2 * time.Second):
		t.Fatal("touch not performed")
	}
	rec, err := repo.FindAuthKey(context.Background(), "k1")
	require.NoError(t, err)
	require.NotNil(t, rec.LastUse)
	require.True(t, rec.LastUse.Equal(at))
}

func TestToucherSwallowsFailures(t *testing.T) {
	repo := newMemoryRepo()
	repo.touchErr = errors.New("pg down")
	failures := &failureCounter{}
	toucher := NewToucher(repo, nil, failures)

	toucher.TouchGameserver(uuid.New(), time.Now())
	toucher.TouchAuthKey(uuid.New(), time.Now())

	require.Eventually(t, func() bool {
		return len(failures.snapshot()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	require.ElementsMatch(t, []string{"gameserver", "auth_key"}, failures.snapshot())
}
