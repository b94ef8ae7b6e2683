package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tacbyte/tacstats/internal/auth"
	"github.com/tacbyte/tacstats/internal/gatekeeper"
	"github.com/tacbyte/tacstats/internal/idempotency"
	"github.com/tacbyte/tacstats/internal/observability"
	"github.com/tacbyte/tacstats/internal/shared"
	"github.com/tacbyte/tacstats/jobs"
)

type routerSecrets struct{}

func (routerSecrets) CurrentSecrets(context.Context) (auth.Secrets, error) {
	return auth.Secrets{SigningSecret: []byte("router-secret")}, nil
}

type routerPasswords struct{ hash string }

func (p routerPasswords) FreshAdminPasswordHash(context.Context) (string, error) {
	return p.hash, nil
}

type noPlayers struct{}

func (noPlayers) LookupPlayer(context.Context, string) (auth.PlayerGrants, error) {
	return auth.PlayerGrants{}, shared.ErrNotFound
}

func newTestRouter(t *testing.T, readiness map[string]ReadinessCheck) (http.Handler, *gatekeeper.Registry) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("admin-hash"), bcrypt.MinCost)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	metrics := observability.NewMetrics()
	gk := gatekeeper.New(gatekeeper.Config{
		Resolver:    auth.NewResolver(auth.ResolverConfig{Secrets: routerSecrets{}}),
		Idempotency: idempotency.NewMiddleware(idempotency.NewRedisStore(client, 0), nil, metrics),
		Recorder:    metrics,
	})
	issuer := auth.NewIssuer(auth.IssuerConfig{
		Secrets:   routerSecrets{},
		Passwords: routerPasswords{hash: string(hash)},
		Players:   noPlayers{},
	})
	cfg := &Config{RateLimitPerMinute: 1000}
	return NewRouter(RouterParams{
		Config:      cfg,
		Gatekeeper:  gk,
		AuthHandler: auth.NewHandler(nil, issuer),
		JobHandler:  jobs.NewHandler(nil, nil, 0, nil),
		Metrics:     metrics,
		Readiness:   readiness,
	})
}

func serve(h http.Handler, method, path, authorization, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func adminToken(t *testing.T, h http.Handler) string {
	t.Helper()
	rr := serve(h, http.MethodPost, "/auth/admin-token", "", `{"passwordHash":"admin-hash"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var issued auth.IssuedToken
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &issued))
	return issued.Token
}

func TestHealthAndMetrics(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rr := serve(h, http.MethodGet, "/healthz", "", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))

	rr = serve(h, http.MethodGet, "/metrics", "", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "tacstats_http_requests_total")
}

func TestReadiness(t *testing.T) {
	h, _ := newTestRouter(t, map[string]ReadinessCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("down") },
	})
	rr := serve(h, http.MethodGet, "/readyz", "", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var report map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	require.Equal(t, map[string]string{"postgres": "ok", "redis": "unavailable"}, report)
}

func TestAdminTokenFlow(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	token := adminToken(t, h)

	rr := serve(h, http.MethodGet, "/auth/whoami", "Bearer "+token, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var who map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &who))
	require.Equal(t, "admin", who["role"])

	rr = serve(h, http.MethodGet, "/auth/whoami", "Bearer tampered."+token, "", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = serve(h, http.MethodGet, "/auth/whoami", "", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestPlayerTokenRequiresAuthKey(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	rr := serve(h, http.MethodPost, "/auth/player-token", "AuthKey unknown", `{"steamId64":"76561198000000001"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestOperationsListingIsAdminOnly(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	require.Equal(t, http.StatusUnauthorized, serve(h, http.MethodGet, "/operations", "", "", nil).Code)

	rr := serve(h, http.MethodGet, "/operations", "Bearer "+adminToken(t, h), "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var ops []gatekeeper.RegisteredOperation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ops))
	names := make([]string, 0, len(ops))
	for _, op := range ops {
		names = append(names, op.Name)
	}
	require.ElementsMatch(t, []string{
		"issueAdminToken", "issuePlayerToken", "whoAmI", "jobsHealth", "triggerIdempotencyCleanup", "listOperations",
	}, names)
}

func TestCleanupTriggerIsIdempotentMutation(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	token := adminToken(t, h)

	rr := serve(h, http.MethodPost, "/jobs/idempotency-cleanup", "Bearer "+token, "", nil)
	require.Equal(t, http.StatusPreconditionFailed, rr.Code)

	rr = serve(h, http.MethodPost, "/jobs/idempotency-cleanup", "Bearer "+token, "", map[string]string{idempotency.HeaderRequestID: "cleanup-1"})
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
