package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tacbyte/tacstats/internal/shared"
)

// Authorization schemes.
const (
	SchemeBearer     = "Bearer"
	SchemeAuthKey    = "AuthKey"
	SchemeGameserver = "Gameserver"
	SchemeMaster     = "Master"
)

// Secrets holds the per-instance values used to check credentials.
type Secrets struct {
	SigningSecret []byte
	// MasterKeyHash is the bcrypt hash of the partner master key; empty when none is configured.
	MasterKeyHash string
}

// SecretProvider returns the current secrets. Caching and invalidation belong to the implementation.
type SecretProvider interface {
	CurrentSecrets(ctx context.Context) (Secrets, error)
}

// AuthKeyLookup finds auth key records. A miss returns shared.ErrNotFound.
type AuthKeyLookup interface {
	LookupAuthKey(ctx context.Context, key string) (uuid.UUID, error)
}

// GameserverLookup finds gameserver records by key. A miss returns shared.ErrNotFound.
type GameserverLookup interface {
	LookupGameserver(ctx context.Context, key string) (uuid.UUID, error)
}

// Toucher records credential use. Implementations must return immediately and never report errors.
type Toucher interface {
	TouchAuthKey(id uuid.UUID, at time.Time)
	TouchGameserver(id uuid.UUID, at time.Time)
}

// ResolverConfig wires the collaborators of a Resolver.
type ResolverConfig struct {
	Secrets     SecretProvider
	AuthKeys    AuthKeyLookup
	Gameservers GameserverLookup
	Toucher     Toucher
	Logger      *slog.Logger
	Now         func() time.Time
}

// Resolver turns an Authorization header into a Principal.
type Resolver struct {
	secrets     SecretProvider
	authKeys    AuthKeyLookup
	gameservers GameserverLookup
	toucher     Toucher
	logger      *slog.Logger
	now         func() time.Time
}

// NewResolver constructs a Resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	r := &Resolver{
		secrets:     cfg.Secrets,
		authKeys:    cfg.AuthKeys,
		gameservers: cfg.Gameservers,
		toucher:     cfg.Toucher,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Resolve parses header and returns the caller's principal. An empty header is anonymous.
// Malformed headers and bad bearer tokens fail; unknown keys of the other schemes resolve to
// anonymous without error.
func (r *Resolver) Resolve(ctx context.Context, header string) (Principal, error) {
	if header == "" {
		return Anonymous(), nil
	}
	scheme, value, ok := splitAuthorization(header)
	if !ok {
		return Principal{}, ErrInvalidAuthFormat
	}

	switch scheme {
	case SchemeBearer:
		return r.resolveBearer(ctx, value)
	case SchemeAuthKey:
		return r.resolveAuthKey(ctx, value), nil
	case SchemeGameserver:
		return r.resolveGameserver(ctx, value), nil
	case SchemeMaster:
		return r.resolveMaster(ctx, value)
	default:
		return Anonymous(), nil
	}
}

func splitAuthorization(header string) (string, string, bool) {
	idx := strings.IndexFunc(header, unicode.IsSpace)
	if idx <= 0 {
		return "", "", false
	}
	scheme := header[:idx]
	value := strings.TrimSpace(header[idx:])
	if value == "" {
		return "", "", false
	}
	return scheme, value, true
}

func (r *Resolver) resolveBearer(ctx context.Context, token string) (Principal, error) {
	secrets, err := r.currentSecrets(ctx)
	if err != nil {
		return Principal{}, err
	}
	claims, err := VerifyToken(token, secrets.SigningSecret, r.now())
	if err != nil {
		if errors.Is(err, errEmptySecret) {
			return Principal{}, fmt.Errorf("%w: %v", ErrSecretLookupFailed, err)
		}
		return Principal{}, err
	}
	switch claims.Role {
	case RoleAdmin:
		return AdminPrincipal(), nil
	case RoleAuthPlayer:
		p := AuthPlayerPrincipal(claims.AuthPlayerRoles)
		if p.HasAuthPlayerRole(PlayerRootAdmin) {
			return AdminPrincipal(), nil
		}
		return p, nil
	default:
		return Anonymous(), nil
	}
}

func (r *Resolver) resolveAuthKey(ctx context.Context, key string) Principal {
	if r.authKeys == nil {
		return Anonymous()
	}
	id, err := r.authKeys.LookupAuthKey(ctx, key)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			r.logger.Warn("auth key lookup", slog.Any("error", err))
		}
		return Anonymous()
	}
	if r.toucher != nil {
		r.toucher.TouchAuthKey(id, r.now())
	}
	return AuthKeyPrincipal(id)
}

func (r *Resolver) resolveGameserver(ctx context.Context, key string) Principal {
	if r.gameservers == nil {
		return Anonymous()
	}
	id, err := r.gameservers.LookupGameserver(ctx, key)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			r.logger.Warn("gameserver lookup", slog.Any("error", err))
		}
		return Anonymous()
	}
	if r.toucher != nil {
		r.toucher.TouchGameserver(id, r.now())
	}
	return GameserverPrincipal(id)
}

func (r *Resolver) resolveMaster(ctx context.Context, value string) (Principal, error) {
	secrets, err := r.currentSecrets(ctx)
	if err != nil {
		return Principal{}, err
	}
	if secrets.MasterKeyHash == "" {
		return Anonymous(), nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(secrets.MasterKeyHash), []byte(value)); err != nil {
		return Anonymous(), nil
	}
	return TacBytePrincipal(), nil
}

func (r *Resolver) currentSecrets(ctx context.Context) (Secrets, error) {
	if r.secrets == nil {
		return Secrets{}, fmt.Errorf("%w: no secret provider", ErrSecretLookupFailed)
	}
	secrets, err := r.secrets.CurrentSecrets(ctx)
	if err != nil {
		return Secrets{}, fmt.Errorf("%w: %v", ErrSecretLookupFailed, err)
	}
	return secrets, nil
}
