package auth

import "errors"

// Client errors: the request is malformed and terminates before any handler runs.
var (
	ErrInvalidAuthFormat = errors.New("auth: invalid authorization header format")
	ErrInvalidToken      = errors.New("auth: invalid or expired token")
)

// Authorization errors returned by Evaluate.
var (
	ErrUnauthorized             = errors.New("auth: unauthorized")
	ErrInsufficientRole         = errors.New("auth: insufficient role")
	ErrRoleMismatch             = errors.New("auth: role not permitted for this operation")
	ErrPlayerRoleForbidden      = errors.New("auth: player token lacks required capability")
	ErrFieldResolutionForbidden = errors.New("auth: field resolution requires an authenticated role")
	ErrMisconfigured            = errors.New("auth: operation reachable by player tokens declares no player capability")
)

// Infrastructure errors.
var (
	ErrSecretLookupFailed = errors.New("auth: secret lookup failed")
)

// Token issuance errors.
var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrNotRegistered      = errors.New("auth: player not registered")
)
