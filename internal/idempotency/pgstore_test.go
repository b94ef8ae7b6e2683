package idempotency

import (
	"context"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/tacbyte/tacstats/internal/platform/db"
)

type PGStoreSuite struct {
	suite.Suite
	store *PGStore
	close func()
}

func TestPGStoreSuite(t *testing.T) {
	dsn := os.Getenv("TACSTATS_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TACSTATS_TEST_PG_DSN not set")
	}
	suite.Run(t, &PGStoreSuite{})
}

func (s *PGStoreSuite) SetupSuite() {
	ctx := context.Background()
	pool, err := db.New(ctx, os.Getenv("TACSTATS_TEST_PG_DSN"), 8)
	s.Require().NoError(err)
	_, err = pool.Exec(ctx, Schema)
	s.Require().NoError(err)
	s.store = NewPGStore(pool)
	s.close = pool.Close
}

func (s *PGStoreSuite) TearDownSuite() {
	if s.close != nil {
		s.close()
	}
}

func (s *PGStoreSuite) TestLifecycle() {
	ctx := context.Background()
	id := uuid.NewString()

	out, err := s.store.Reserve(ctx, id)
	s.Require().NoError(err)
	s.True(out.Fresh)

	_, err = s.store.Reserve(ctx, id)
	s.ErrorIs(err, ErrInFlight)

	s.Require().NoError(s.store.Complete(ctx, id, []byte("done")))
	out, err = s.store.Reserve(ctx, id)
	s.Require().NoError(err)
	s.False(out.Fresh)
	s.Equal([]byte("done"), out.Result)

	s.ErrorIs(s.store.Complete(ctx, uuid.NewString(), nil), ErrNotReserved)
}

func (s *PGStoreSuite) TestReleaseAllowsRetry() {
	ctx := context.Background()
	id := uuid.NewString()
	_, err := s.store.Reserve(ctx, id)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Release(ctx, id))
	out, err := s.store.Reserve(ctx, id)
	s.Require().NoError(err)
	s.True(out.Fresh)
}

func (s *PGStoreSuite) TestConcurrentReserveIsExclusive() {
	ctx := context.Background()
	id := uuid.NewString()
	var fresh atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := s.store.Reserve(ctx, id)
			if err == nil && out.Fresh {
				fresh.Add(1)
			}
		}()
	}
	wg.Wait()
	s.EqualValues(1, fresh.Load())
}

func (s *PGStoreSuite) TestConcurrentMutationExecutesOnce() {
	var counter atomic.Int64
	h := NewMiddleware(s.store, nil, nil).Wrap(counterHandler(&counter))
	id := uuid.NewString()

	const callers = 16
	codes := make([]int, callers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			codes[i] = call(h, id, "").Code
		}(i)
	}
	close(start)
	wg.Wait()

	s.EqualValues(1, counter.Load())
	for _, code := range codes {
		s.Contains([]int{http.StatusCreated, http.StatusConflict}, code)
	}

	replay := call(h, id, "")
	s.Equal(http.StatusCreated, replay.Code)
	s.Equal("true", replay.Header().Get(HeaderReplayed))
	s.EqualValues(1, counter.Load())
}

func (s *PGStoreSuite) TestCleanup() {
	ctx := context.Background()
	id := uuid.NewString()
	s.store.now = func() time.Time { return time.Now().Add(-72 * time.Hour) }
	_, err := s.store.Reserve(ctx, id)
	s.Require().NoError(err)
	s.store.now = time.Now

	removed, err := s.store.Cleanup(ctx, 24*time.Hour)
	s.Require().NoError(err)
	s.GreaterOrEqual(removed, int64(1))

	out, err := s.store.Reserve(ctx, id)
	s.Require().NoError(err)
	s.True(out.Fresh)
}
