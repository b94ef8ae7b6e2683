package auth

import (
	"encoding/json"
	"slices"

	"github.com/google/uuid"
)

// Role is the coarse trust tier assigned to a caller for a single request.
type Role string

// Roles ordered by trust level.
const (
	RoleNone       Role = "none"
	RoleTacByte    Role = "tacbyte"
	RoleAuthPlayer Role = "authPlayer"
	RoleAuthKey    Role = "authKey"
	RoleAdmin      Role = "admin"
)

// Level returns the trust level used for "at least" comparisons. Unknown roles rank with none.
func (r Role) Level() int {
	switch r {
	case RoleTacByte:
		return 1
	case RoleAuthPlayer:
		return 2
	case RoleAuthKey:
		return 3
	case RoleAdmin:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether r is at or above min.
func (r Role) AtLeast(min Role) bool {
	return r.Level() >= min.Level()
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	switch r {
	case RoleNone, RoleTacByte, RoleAuthPlayer, RoleAuthKey, RoleAdmin:
		return true
	}
	return false
}

// AuthPlayerRole is a fine-grained capability carried inside an authPlayer token.
type AuthPlayerRole string

// Capabilities of an authPlayer token. PlayerGameControl is accepted in policies and tokens
// but the issuer never grants it.
const (
	PlayerRootAdmin   AuthPlayerRole = "rootAdmin"
	PlayerBan         AuthPlayerRole = "ban"
	PlayerGameControl AuthPlayerRole = "gameControl"
)

// Principal is the resolved identity of one request. The zero value is not valid; use the
// constructors. Fields are unexported so a Principal cannot change once built.
type Principal struct {
	role            Role
	authPlayerRoles []AuthPlayerRole
	authKeyID       uuid.UUID
	gameserverID    uuid.UUID
}

// Anonymous returns the principal of an unauthenticated caller.
func Anonymous() Principal { return Principal{role: RoleNone} }

// AdminPrincipal returns an administrator principal.
func AdminPrincipal() Principal { return Principal{role: RoleAdmin} }

// TacBytePrincipal returns the principal of the trusted partner backend.
func TacBytePrincipal() Principal { return Principal{role: RoleTacByte} }

// AuthPlayerPrincipal returns an in-game player principal holding the given capabilities.
func AuthPlayerPrincipal(roles []AuthPlayerRole) Principal {
	return Principal{role: RoleAuthPlayer, authPlayerRoles: slices.Clone(roles)}
}

// AuthKeyPrincipal returns the principal of a registered automation client.
func AuthKeyPrincipal(id uuid.UUID) Principal {
	return Principal{role: RoleAuthKey, authKeyID: id}
}

// GameserverPrincipal returns the principal of a game server. Game servers share the authKey tier.
func GameserverPrincipal(id uuid.UUID) Principal {
	return Principal{role: RoleAuthKey, gameserverID: id}
}

// Role returns the trust tier.
func (p Principal) Role() Role {
	if p.role == "" {
		return RoleNone
	}
	return p.role
}

// AuthPlayerRoles returns a copy of the player capabilities.
func (p Principal) AuthPlayerRoles() []AuthPlayerRole {
	return slices.Clone(p.authPlayerRoles)
}

// HasAuthPlayerRole reports whether the principal carries the capability.
func (p Principal) HasAuthPlayerRole(r AuthPlayerRole) bool {
	return slices.Contains(p.authPlayerRoles, r)
}

// AuthKeyID returns the auth key record id when the caller authenticated with one.
func (p Principal) AuthKeyID() (uuid.UUID, bool) {
	return p.authKeyID, p.authKeyID != uuid.Nil
}

// GameserverID returns the gameserver record id when the caller is a game server.
func (p Principal) GameserverID() (uuid.UUID, bool) {
	return p.gameserverID, p.gameserverID != uuid.Nil
}

type principalJSON struct {
	Role            Role             `json:"role"`
	AuthPlayerRoles []AuthPlayerRole `json:"authPlayerRoles,omitempty"`
	AuthKeyID       *uuid.UUID       `json:"authKeyId,omitempty"`
	GameserverID    *uuid.UUID       `json:"gameserverId,omitempty"`
}

// MarshalJSON renders the principal for diagnostics endpoints.
func (p Principal) MarshalJSON() ([]byte, error) {
	out := principalJSON{Role: p.Role(), AuthPlayerRoles: p.authPlayerRoles}
	if id, ok := p.AuthKeyID(); ok {
		out.AuthKeyID = &id
	}
	if id, ok := p.GameserverID(); ok {
		out.GameserverID = &id
	}
	return json.Marshal(out)
}
