package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tacbyte/tacstats/internal/platform/httpx"
)

// HeaderReplayed marks a response served from a completed record.
const HeaderReplayed = "Idempotent-Replayed"

// Outcome labels reported to a Recorder.
const (
	OutcomeExecuted    = "executed"
	OutcomeReplayed    = "replayed"
	OutcomeReleased    = "released"
	OutcomeInFlight    = "in_flight"
	OutcomeMissingID   = "missing_id"
	OutcomeUnavailable = "unavailable"
	OutcomeUnsaved     = "unsaved"
	OutcomeUnreadable  = "unreadable"
)

// Recorder counts wrapper outcomes.
type Recorder interface {
	RecordIdempotency(outcome string)
}

// Middleware runs a handler at most once per request id and replays the stored response to
// duplicates. Concurrent duplicates of an in-flight id are rejected with 409.
type Middleware struct {
	store    Store
	logger   *slog.Logger
	recorder Recorder
}

// NewMiddleware constructs the wrapper. logger and recorder may be nil.
func NewMiddleware(store Store, logger *slog.Logger, recorder Recorder) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{store: store, logger: logger, recorder: recorder}
}

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body"`
}

// Wrap guards next.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if requestID == "" {
			m.record(OutcomeMissingID)
			httpx.Problem(w, http.StatusPreconditionFailed, "Precondition Failed", ErrMissingRequestID.Error())
			return
		}

		outcome, err := m.store.Reserve(r.Context(), requestID)
		switch {
		case errors.Is(err, ErrInFlight):
			m.record(OutcomeInFlight)
			w.Header().Set("Retry-After", "1")
			httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
			return
		case err != nil:
			m.record(OutcomeUnavailable)
			m.logger.Error("idempotency reserve", slog.String("request_id", requestID), slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "")
			return
		}

		if !outcome.Fresh {
			m.replay(w, requestID, outcome.Result)
			return
		}

		capture := &captureWriter{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if p := recover(); p != nil {
				m.release(r.Context(), requestID)
				panic(p)
			}
		}()
		next.ServeHTTP(capture, r)

		if capture.status >= http.StatusBadRequest {
			m.release(r.Context(), requestID)
			return
		}
		m.complete(r.Context(), requestID, storedResponse{
			Status:      capture.status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        capture.body.Bytes(),
		})
	})
}

// replay writes a completed record back to the client. A record that cannot be decoded is
// terminal: the effect already happened, so it is neither released nor re-executed and the id
// keeps answering 500 until retention cleanup removes it.
func (m *Middleware) replay(w http.ResponseWriter, requestID string, result []byte) {
	var stored storedResponse
	if err := json.Unmarshal(result, &stored); err != nil {
		m.record(OutcomeUnreadable)
		m.logger.Error("idempotency replay decode", slog.String("request_id", requestID), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	m.record(OutcomeReplayed)
	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(HeaderReplayed, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

func (m *Middleware) complete(ctx context.Context, requestID string, stored storedResponse) {
	payload, err := json.Marshal(stored)
	if err == nil {
		err = m.store.Complete(context.WithoutCancel(ctx), requestID, payload)
	}
	if err != nil {
		// The effect already happened; the reservation stays and duplicates see 409.
		m.record(OutcomeUnsaved)
		m.logger.Error("idempotency complete", slog.String("request_id", requestID), slog.Any("error", err))
		return
	}
	m.record(OutcomeExecuted)
}

func (m *Middleware) release(ctx context.Context, requestID string) {
	m.record(OutcomeReleased)
	if err := m.store.Release(context.WithoutCancel(ctx), requestID); err != nil {
		m.logger.Error("idempotency release", slog.String("request_id", requestID), slog.Any("error", err))
	}
}

func (m *Middleware) record(outcome string) {
	if m.recorder != nil {
		m.recorder.RecordIdempotency(outcome)
	}
}

type captureWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (c *captureWriter) WriteHeader(status int) {
	if c.wroteHeader {
		return
	}
	c.wroteHeader = true
	c.status = status
	c.ResponseWriter.WriteHeader(status)
}

func (c *captureWriter) Write(p []byte) (int, error) {
	if !c.wroteHeader {
		c.WriteHeader(http.StatusOK)
	}
	c.body.Write(p)
	return c.ResponseWriter.Write(p)
}
