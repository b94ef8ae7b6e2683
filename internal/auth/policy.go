package auth

import (
	"fmt"
	"strings"
)

// OperationPolicy declares the authorization requirements of one operation or nested field.
// Policies are built once at registration and must not be modified afterwards.
type OperationPolicy struct {
	// MinRole, when set, requires the caller's level to be at least this role's level.
	MinRole Role
	// OnlyRole, when set, requires the caller's role to equal it exactly.
	OnlyRole Role
	// NoAuth skips credential resolution and treats the caller as authKey.
	NoAuth bool
	// RequiredAuthPlayerRoles lists the player capabilities of which at least one is required.
	RequiredAuthPlayerRoles []AuthPlayerRole
	// AllowFieldResolversForAllRoles lets anonymous callers resolve nested fields.
	AllowFieldResolversForAllRoles bool
	// AllowTacByteAccess admits the tacbyte role at the final gate.
	AllowTacByteAccess bool
}

// PolicyOption configures an OperationPolicy.
type PolicyOption func(*OperationPolicy)

// NewPolicy builds a policy from the given facets.
func NewPolicy(opts ...PolicyOption) *OperationPolicy {
	p := &OperationPolicy{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MinRole requires at least the given role.
func MinRole(r Role) PolicyOption {
	return func(p *OperationPolicy) { p.MinRole = r }
}

// OnlyRole requires exactly the given role.
func OnlyRole(r Role) PolicyOption {
	return func(p *OperationPolicy) { p.OnlyRole = r }
}

// NoAuth marks the operation as public.
func NoAuth() PolicyOption {
	return func(p *OperationPolicy) { p.NoAuth = true }
}

// RequiredAuthPlayerRoles declares which player capabilities admit authPlayer callers.
func RequiredAuthPlayerRoles(roles ...AuthPlayerRole) PolicyOption {
	return func(p *OperationPolicy) {
		p.RequiredAuthPlayerRoles = append(p.RequiredAuthPlayerRoles, roles...)
	}
}

// AllowFieldResolversForAllRoles lets any role, anonymous included, resolve nested fields.
func AllowFieldResolversForAllRoles() PolicyOption {
	return func(p *OperationPolicy) { p.AllowFieldResolversForAllRoles = true }
}

// AllowTacByteAccess admits the tacbyte role.
func AllowTacByteAccess() PolicyOption {
	return func(p *OperationPolicy) { p.AllowTacByteAccess = true }
}

// String renders the declared facets for logs and introspection.
func (p *OperationPolicy) String() string {
	if p == nil {
		return "default"
	}
	var parts []string
	if p.NoAuth {
		parts = append(parts, "noAuth")
	}
	if p.MinRole != "" {
		parts = append(parts, "minRole="+string(p.MinRole))
	}
	if p.OnlyRole != "" {
		parts = append(parts, "onlyRole="+string(p.OnlyRole))
	}
	if len(p.RequiredAuthPlayerRoles) > 0 {
		parts = append(parts, fmt.Sprintf("authPlayerRoles=%v", p.RequiredAuthPlayerRoles))
	}
	if p.AllowFieldResolversForAllRoles {
		parts = append(parts, "fieldsForAll")
	}
	if p.AllowTacByteAccess {
		parts = append(parts, "tacbyte")
	}
	if len(parts) == 0 {
		return "default"
	}
	return strings.Join(parts, ",")
}

// Decision is the outcome of evaluating a policy. Principal is the identity the operation
// runs as, which differs from the resolved one for NoAuth policies.
type Decision struct {
	Allowed   bool
	Principal Principal
	Err       error
}

func deny(p Principal, err error) Decision {
	return Decision{Principal: p, Err: err}
}

// Evaluate checks principal against policy. nested marks the resolution of a nested field
// rather than a top-level operation. The steps run in a fixed order and the final gate is
// evaluated even when no per-policy facet is declared: callers above tacbyte are admitted by
// default.
func Evaluate(principal Principal, policy *OperationPolicy, nested bool) Decision {
	if policy == nil {
		policy = &OperationPolicy{}
	}
	if policy.NoAuth {
		principal = Principal{role: RoleAuthKey}
	}
	role := principal.Role()

	if role == RoleAuthPlayer {
		if len(policy.RequiredAuthPlayerRoles) == 0 {
			return deny(principal, ErrMisconfigured)
		}
		if !principal.HasAuthPlayerRole(PlayerRootAdmin) && !hasAnyPlayerRole(principal, policy.RequiredAuthPlayerRoles) {
			return deny(principal, ErrPlayerRoleForbidden)
		}
	}

	if nested && !policy.AllowFieldResolversForAllRoles && role == RoleNone {
		return deny(principal, ErrFieldResolutionForbidden)
	}

	if policy.OnlyRole != "" && role != policy.OnlyRole {
		return deny(principal, ErrRoleMismatch)
	}

	// MinRole denies before the final gate, so AllowTacByteAccess does not relax it.
	minRolePassed := false
	if policy.MinRole != "" {
		if !role.AtLeast(policy.MinRole) {
			return deny(principal, ErrInsufficientRole)
		}
		minRolePassed = true
	}

	if role.Level() > RoleTacByte.Level() || minRolePassed || (policy.AllowTacByteAccess && role == RoleTacByte) {
		return Decision{Allowed: true, Principal: principal}
	}
	return deny(principal, ErrUnauthorized)
}

func hasAnyPlayerRole(p Principal, required []AuthPlayerRole) bool {
	for _, r := range required {
		if p.HasAuthPlayerRole(r) {
			return true
		}
	}
	return false
}
