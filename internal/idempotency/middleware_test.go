package idempotency

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingRecorder) RecordIdempotency(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[outcome]++
}

func (c *countingRecorder) get(outcome string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[outcome]
}

func call(h http.Handler, requestID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/bans", strings.NewReader(body))
	if requestID != "" {
		req.Header.Set(HeaderRequestID, requestID)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func counterHandler(counter *atomic.Int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := counter.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprintf(w, `{"ban":%d,"at":%q}`, n, time.Now().Format(time.RFC3339Nano))
	})
}

func TestDuplicateRequestExecutesOnceAndReplays(t *testing.T) {
	store, _ := newRedisStore(t, 0)
	recorder := &countingRecorder{}
	var counter atomic.Int64
	h := NewMiddleware(store, nil, recorder).Wrap(counterHandler(&counter))

	first := call(h, "req-dup", `{"steamId64":"1"}`)
	require.Equal(t, http.StatusCreated, first.Code)

	second := call(h, "req-dup", `{"steamId64":"2"}`)
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, first.Body.Bytes(), second.Body.Bytes())
	require.Equal(t, first.Header().Get("Content-Type"), second.Header().Get("Content-Type"))
	require.Equal(t, "true", second.Header().Get(HeaderReplayed))
	require.Empty(t, first.Header().Get(HeaderReplayed))

	require.EqualValues(t, 1, counter.Load())
	require.Equal(t, 1, recorder.get(OutcomeExecuted))
	require.Equal(t, 1, recorder.get(OutcomeReplayed))
}

func TestFailedExecutionCanBeRetried(t *testing.T) {
	store, _ := newRedisStore(t, 0)
	var attempts atomic.Int64
	h := NewMiddleware(store, nil, nil).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))

	require.Equal(t, http.StatusInternalServerError, call(h, "req-retry", "").Code)

	second := call(h, "req-retry", "")
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, "created", second.Body.String())

	third := call(h, "req-retry", "")
	require.Equal(t, http.StatusCreated, third.Code)
	require.Equal(t, "true", third.Header().Get(HeaderReplayed))
	require.EqualValues(t, 2, attempts.Load())
}

func TestPanicReleasesReservation(t *testing.T) {
	store, _ := newRedisStore(t, 0)
	h := NewMiddleware(store, nil, nil).Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler exploded")
	}))

	require.Panics(t, func() { call(h, "req-panic", "") })

	out, err := store.Reserve(context.Background(), "req-panic")
	require.NoError(t, err)
	require.True(t, out.Fresh)
}

func TestConcurrentDuplicatesExecuteOnce(t *testing.T) {
	store, _ := newRedisStore(t, 0)
	var counter atomic.Int64
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		counterHandler(&counter).ServeHTTP(w, r)
	})
	h := NewMiddleware(store, nil, nil).Wrap(slow)

	const callers = 16
	start := make(chan struct{})
	codes := make([]int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			codes[i] = call(h, "req-race", "").Code
		}(i)
	}
	close(start)
	wg.Wait()

	require.EqualValues(t, 1, counter.Load())
	created := 0
	for _, code := range codes {
		require.Contains(t, []int{http.StatusCreated, http.StatusConflict}, code)
		if code == http.StatusCreated {
			created++
		}
	}
	require.GreaterOrEqual(t, created, 1)

	replay := call(h, "req-race", "")
	require.Equal(t, http.StatusCreated, replay.Code)
	require.Equal(t, "true", replay.Header().Get(HeaderReplayed))
	require.EqualValues(t, 1, counter.Load())
}

func TestUnreadableRecordIsTerminal(t *testing.T) {
	store, _ := newRedisStore(t, 0)
	ctx := context.Background()
	_, err := store.Reserve(ctx, "req-garbled")
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, "req-garbled", []byte("not-json")))

	recorder := &countingRecorder{}
	var counter atomic.Int64
	h := NewMiddleware(store, nil, recorder).Wrap(counterHandler(&counter))

	for i := 0; i < 2; i++ {
		rr := call(h, "req-garbled", "")
		require.Equal(t, http.StatusInternalServerError, rr.Code)
		require.Empty(t, rr.Header().Get(HeaderReplayed))
	}
	require.Zero(t, counter.Load())
	require.Equal(t, 2, recorder.get(OutcomeUnreadable))

	outcome, err := store.Reserve(ctx, "req-garbled")
	require.NoError(t, err)
	require.False(t, outcome.Fresh)
}

func TestInFlightDuplicateIsRejected(t *testing.T) {
	store, _ := newRedisStore(t, 0)
	_, err := store.Reserve(context.Background(), "req-held")
	require.NoError(t, err)

	var counter atomic.Int64
	rr := call(NewMiddleware(store, nil, nil).Wrap(counterHandler(&counter)), "req-held", "")
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "1", rr.Header().Get("Retry-After"))
	require.Zero(t, counter.Load())
}

func TestMissingRequestIDIsRejectedBeforeReservation(t *testing.T) {
	store := &failingStore{}
	recorder := &countingRecorder{}
	var counter atomic.Int64
	h := NewMiddleware(store, nil, recorder).Wrap(counterHandler(&counter))

	for _, id := range []string{"", "   "} {
		rr := call(h, id, "")
		require.Equal(t, http.StatusPreconditionFailed, rr.Code)
	}
	require.Zero(t, counter.Load())
	require.Zero(t, store.reserves.Load())
	require.Equal(t, 2, recorder.get(OutcomeMissingID))
}

func TestStoreFailureIsFatal(t *testing.T) {
	store := &failingStore{err: errors.New("connection refused")}
	var counter atomic.Int64
	rr := call(NewMiddleware(store, nil, nil).Wrap(counterHandler(&counter)), "req-down", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Zero(t, counter.Load())
}

type failingStore struct {
	err      error
	reserves atomic.Int64
}

func (f *failingStore) Reserve(context.Context, string) (Outcome, error) {
	f.reserves.Add(1)
	return Outcome{}, unavailable("reserve", f.err)
}

func (f *failingStore) Complete(context.Context, string, []byte) error { return f.err }

func (f *failingStore) Release(context.Context, string) error { return f.err }

func (f *failingStore) Cleanup(context.Context, time.Duration) (int64, error) { return 0, f.err }
