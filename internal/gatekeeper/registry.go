package gatekeeper

import (
	"net/http"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/tacbyte/tacstats/internal/platform/httpx"
)

// RegisteredOperation describes a guarded route.
type RegisteredOperation struct {
	Name     string `json:"name"`
	Method   string `json:"method"`
	Pattern  string `json:"pattern"`
	Policy   string `json:"policy"`
	Mutation bool   `json:"mutation"`
}

// Registry mounts guarded operations on a chi router and keeps a listing of them.
type Registry struct {
	router chi.Router
	gk     *Gatekeeper

	mu  sync.RWMutex
	ops []RegisteredOperation
}

// NewRegistry binds a registry to router.
func NewRegistry(router chi.Router, gk *Gatekeeper) *Registry {
	return &Registry{router: router, gk: gk}
}

// Handle mounts an operation that bypasses the idempotency wrapper, such as a read.
func (r *Registry) Handle(method, pattern string, op Operation, h http.HandlerFunc) {
	op.Mutation = false
	r.mount(method, pattern, op, h)
}

// Mutation mounts an idempotency-sensitive write operation.
func (r *Registry) Mutation(method, pattern string, op Operation, h http.HandlerFunc) {
	op.Mutation = true
	r.mount(method, pattern, op, h)
}

func (r *Registry) mount(method, pattern string, op Operation, h http.HandlerFunc) {
	r.router.With(r.gk.Guard(op)).Method(method, pattern, h)
	r.mu.Lock()
	r.ops = append(r.ops, RegisteredOperation{
		Name:     op.Name,
		Method:   method,
		Pattern:  pattern,
		Policy:   op.Policy.String(),
		Mutation: op.Mutation,
	})
	r.mu.Unlock()
}

// Operations lists registered operations sorted by pattern then method.
func (r *Registry) Operations() []RegisteredOperation {
	r.mu.RLock()
	out := append([]RegisteredOperation(nil), r.ops...)
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pattern != out[j].Pattern {
			return out[i].Pattern < out[j].Pattern
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// ListOperations handles GET /operations.
func (r *Registry) ListOperations(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, r.Operations())
}
