package app

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tacbyte/tacstats/internal/auth"
	"github.com/tacbyte/tacstats/internal/gatekeeper"
	"github.com/tacbyte/tacstats/internal/observability"
	"github.com/tacbyte/tacstats/internal/platform/httpx"
	"github.com/tacbyte/tacstats/jobs"
)

// Policies of the service's own endpoints.
var (
	OperationsPolicy = auth.NewPolicy(auth.OnlyRole(auth.RoleAdmin))
	JobsPolicy       = auth.NewPolicy(auth.OnlyRole(auth.RoleAdmin))
)

// ReadinessCheck reports whether a dependency is reachable.
type ReadinessCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger      *slog.Logger
	Config      *Config
	Gatekeeper  *gatekeeper.Gatekeeper
	AuthHandler *auth.Handler
	JobHandler  *jobs.Handler
	Metrics     *observability.Metrics
	Readiness   map[string]ReadinessCheck
	// Operations registers business operations owned by other services.
	Operations []func(*gatekeeper.Registry)
}

// NewRouter constructs the chi.Router and the registry of guarded operations.
func NewRouter(params RouterParams) (http.Handler, *gatekeeper.Registry) {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(params.Readiness))
	r.Handle("/metrics", params.Metrics.Handler())

	reg := gatekeeper.NewRegistry(r, params.Gatekeeper)
	if params.AuthHandler != nil {
		reg.Handle(http.MethodPost, "/auth/admin-token", gatekeeper.Operation{Name: "issueAdminToken", Policy: auth.AdminTokenPolicy}, params.AuthHandler.IssueAdmin)
		reg.Handle(http.MethodPost, "/auth/player-token", gatekeeper.Operation{Name: "issuePlayerToken", Policy: auth.PlayerTokenPolicy}, params.AuthHandler.IssuePlayer)
		reg.Handle(http.MethodGet, "/auth/whoami", gatekeeper.Operation{Name: "whoAmI", Policy: auth.WhoAmIPolicy}, params.AuthHandler.WhoAmI)
	}
	if params.JobHandler != nil {
		reg.Handle(http.MethodGet, "/jobs/health", gatekeeper.Operation{Name: "jobsHealth", Policy: JobsPolicy}, params.JobHandler.Health)
		reg.Mutation(http.MethodPost, "/jobs/idempotency-cleanup", gatekeeper.Operation{Name: "triggerIdempotencyCleanup", Policy: JobsPolicy}, params.JobHandler.TriggerCleanup)
	}
	for _, register := range params.Operations {
		register(reg)
	}
	reg.Handle(http.MethodGet, "/operations", gatekeeper.Operation{Name: "listOperations", Policy: OperationsPolicy}, reg.ListOperations)

	return r, reg
}

func readiness(checks map[string]ReadinessCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		report := make(map[string]string, len(names))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				status = http.StatusServiceUnavailable
				report[name] = "unavailable"
				continue
			}
			report[name] = "ok"
		}
		httpx.JSON(w, status, report)
	}
}
