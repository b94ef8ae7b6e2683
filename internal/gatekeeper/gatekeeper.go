// Package gatekeeper authorizes every inbound operation and routes mutations through the
// idempotency wrapper.
package gatekeeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tacbyte/tacstats/internal/auth"
	"github.com/tacbyte/tacstats/internal/idempotency"
	"github.com/tacbyte/tacstats/internal/platform/httpx"
)

// PrincipalResolver turns an Authorization header value into a Principal.
type PrincipalResolver interface {
	Resolve(ctx context.Context, header string) (auth.Principal, error)
}

// DecisionRecorder counts authorization outcomes.
type DecisionRecorder interface {
	RecordDecision(outcome, reason string)
}

// Operation is one externally reachable operation and its declared policy. Mutation marks the
// operation as idempotency-sensitive.
type Operation struct {
	Name     string
	Policy   *auth.OperationPolicy
	Mutation bool
}

// Config wires a Gatekeeper. Idempotency is required once a mutation is guarded.
type Config struct {
	Resolver    PrincipalResolver
	Idempotency *idempotency.Middleware
	Recorder    DecisionRecorder
	Logger      *slog.Logger
}

// Gatekeeper resolves, authorizes and, for mutations, deduplicates requests.
type Gatekeeper struct {
	resolver    PrincipalResolver
	idempotency *idempotency.Middleware
	recorder    DecisionRecorder
	logger      *slog.Logger
}

// New constructs a Gatekeeper.
func New(cfg Config) *Gatekeeper {
	g := &Gatekeeper{
		resolver:    cfg.Resolver,
		idempotency: cfg.Idempotency,
		recorder:    cfg.Recorder,
		logger:      cfg.Logger,
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// Authorize resolves header and evaluates policy for a top-level operation. The returned
// principal is the one the operation runs as, also on denial.
func (g *Gatekeeper) Authorize(ctx context.Context, header string, policy *auth.OperationPolicy) (auth.Principal, error) {
	principal := auth.Anonymous()
	if policy == nil || !policy.NoAuth {
		p, err := g.resolver.Resolve(ctx, header)
		if err != nil {
			g.record(err)
			return principal, err
		}
		principal = p
	}
	d := auth.Evaluate(principal, policy, false)
	g.record(d.Err)
	if !d.Allowed {
		return principal, d.Err
	}
	return d.Principal, nil
}

// AuthorizeField evaluates policy for a nested field resolution against the principal already
// stored in ctx.
func (g *Gatekeeper) AuthorizeField(ctx context.Context, policy *auth.OperationPolicy) error {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		p = auth.Anonymous()
	}
	d := auth.Evaluate(p, policy, true)
	g.record(d.Err)
	return d.Err
}

// Guard returns middleware enforcing op. It panics when op is a mutation and no idempotency
// wrapper is configured.
func (g *Gatekeeper) Guard(op Operation) func(http.Handler) http.Handler {
	if op.Mutation && g.idempotency == nil {
		panic(fmt.Sprintf("gatekeeper: mutation %q registered without an idempotency store", op.Name))
	}
	return func(next http.Handler) http.Handler {
		if op.Mutation {
			next = g.idempotency.Wrap(next)
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := g.Authorize(r.Context(), r.Header.Get("Authorization"), op.Policy)
			if err != nil {
				g.deny(w, op, principal, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

func (g *Gatekeeper) deny(w http.ResponseWriter, op Operation, p auth.Principal, err error) {
	status := Status(err, p)
	attrs := []any{
		slog.String("operation", op.Name),
		slog.String("role", string(p.Role())),
		slog.String("policy", op.Policy.String()),
		slog.Any("error", err),
	}
	switch KindOf(err) {
	case KindInfrastructure, KindUnknown:
		g.logger.Error("gatekeeper failure", attrs...)
		httpx.Problem(w, status, http.StatusText(status), "")
		return
	}
	if errors.Is(err, auth.ErrMisconfigured) {
		g.logger.Error("operation policy misconfigured", attrs...)
	} else {
		g.logger.Debug("gatekeeper denied", attrs...)
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="tacstats"`)
	}
	httpx.Problem(w, status, http.StatusText(status), err.Error())
}

func (g *Gatekeeper) record(err error) {
	if g.recorder == nil {
		return
	}
	outcome := "allow"
	if err != nil {
		outcome = "deny"
		if KindOf(err) == KindInfrastructure {
			outcome = "error"
		}
	}
	g.recorder.RecordDecision(outcome, Reason(err))
}
