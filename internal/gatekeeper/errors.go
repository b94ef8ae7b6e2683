package gatekeeper

import (
	"errors"
	"net/http"

	"github.com/tacbyte/tacstats/internal/auth"
	"github.com/tacbyte/tacstats/internal/idempotency"
)

// Kind classifies gatekeeper failures.
type Kind int

const (
	KindUnknown Kind = iota
	KindClient
	KindAuthorization
	KindInfrastructure
)

func (k Kind) String() string {
	switch k {
	case KindClient:
		return "client"
	case KindAuthorization:
		return "authorization"
	case KindInfrastructure:
		return "infrastructure"
	default:
		return "unknown"
	}
}

var classified = []struct {
	err    error
	kind   Kind
	reason string
}{
	{auth.ErrInvalidAuthFormat, KindClient, "invalid_auth_format"},
	{auth.ErrInvalidToken, KindClient, "invalid_token"},
	{idempotency.ErrMissingRequestID, KindClient, "missing_request_id"},
	{auth.ErrUnauthorized, KindAuthorization, "unauthorized"},
	{auth.ErrInsufficientRole, KindAuthorization, "insufficient_role"},
	{auth.ErrRoleMismatch, KindAuthorization, "role_mismatch"},
	{auth.ErrPlayerRoleForbidden, KindAuthorization, "player_role_forbidden"},
	{auth.ErrFieldResolutionForbidden, KindAuthorization, "field_resolution_forbidden"},
	{auth.ErrMisconfigured, KindAuthorization, "misconfigured"},
	{auth.ErrSecretLookupFailed, KindInfrastructure, "secret_lookup_failed"},
	{idempotency.ErrStoreUnavailable, KindInfrastructure, "idempotency_unavailable"},
}

// KindOf returns the class of err.
func KindOf(err error) Kind {
	for _, c := range classified {
		if errors.Is(err, c.err) {
			return c.kind
		}
	}
	return KindUnknown
}

// Reason returns a stable metric label for err.
func Reason(err error) string {
	if err == nil {
		return "allowed"
	}
	for _, c := range classified {
		if errors.Is(err, c.err) {
			return c.reason
		}
	}
	return "internal"
}

// Status maps a gatekeeper failure to an HTTP status. Missing or insufficient credentials of an
// anonymous caller answer 401; every other authorization failure answers 403.
func Status(err error, p auth.Principal) int {
	switch {
	case errors.Is(err, auth.ErrInvalidAuthFormat), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrInsufficientRole):
		if p.Role() == auth.RoleNone {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case errors.Is(err, idempotency.ErrMissingRequestID):
		return http.StatusPreconditionFailed
	case errors.Is(err, idempotency.ErrInFlight):
		return http.StatusConflict
	case KindOf(err) == KindAuthorization:
		return http.StatusForbidden
	case KindOf(err) == KindInfrastructure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
