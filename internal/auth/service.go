package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tacbyte/tacstats/internal/shared"
)

// PlayerGrants are the capability flags stored on a registered player.
type PlayerGrants struct {
	SteamID64 string
	RootAdmin bool
	Ban       bool
}

// PlayerLookup finds registered players. A miss returns shared.ErrNotFound.
type PlayerLookup interface {
	LookupPlayer(ctx context.Context, steamID64 string) (PlayerGrants, error)
}

// AdminPasswordReader reads the stored admin password hash, bypassing any cache.
type AdminPasswordReader interface {
	FreshAdminPasswordHash(ctx context.Context) (string, error)
}

// AuditPort records issued credentials.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IssuedToken is a signed token and its expiry.
type IssuedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IssuerConfig wires the collaborators of an Issuer. Audit and Logger are optional.
type IssuerConfig struct {
	Secrets   SecretProvider
	Passwords AdminPasswordReader
	Players   PlayerLookup
	Audit     AuditPort
	Logger    *slog.Logger
	Now       func() time.Time
}

// Issuer mints identity tokens after checking a primary secret.
type Issuer struct {
	secrets   SecretProvider
	passwords AdminPasswordReader
	players   PlayerLookup
	audit     AuditPort
	logger    *slog.Logger
	now       func() time.Time
}

// NewIssuer constructs an Issuer.
func NewIssuer(cfg IssuerConfig) *Issuer {
	s := &Issuer{
		secrets:   cfg.Secrets,
		passwords: cfg.Passwords,
		players:   cfg.Players,
		audit:     cfg.Audit,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// IssueAdminToken checks candidateHash against the stored admin password hash and signs an
// admin token valid for AdminTokenTTL.
func (s *Issuer) IssueAdminToken(ctx context.Context, candidateHash string) (IssuedToken, error) {
	stored, err := s.passwords.FreshAdminPasswordHash(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return IssuedToken{}, ErrInvalidCredentials
		}
		return IssuedToken{}, fmt.Errorf("%w: %v", ErrSecretLookupFailed, err)
	}
	if stored == "" {
		return IssuedToken{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(candidateHash)); err != nil {
		return IssuedToken{}, ErrInvalidCredentials
	}
	issued, err := s.sign(ctx, Claims{Role: RoleAdmin}, AdminTokenTTL)
	if err != nil {
		return IssuedToken{}, err
	}
	s.record(ctx, "admin", "admin")
	return issued, nil
}

// IssueAuthPlayerToken signs an authPlayer token carrying the registered player's capabilities.
func (s *Issuer) IssueAuthPlayerToken(ctx context.Context, steamID64 string) (IssuedToken, error) {
	player, err := s.players.LookupPlayer(ctx, steamID64)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return IssuedToken{}, ErrNotRegistered
		}
		return IssuedToken{}, err
	}
	issued, err := s.sign(ctx, Claims{Role: RoleAuthPlayer, AuthPlayerRoles: GrantedPlayerRoles(player)}, AuthPlayerTokenTTL)
	if err != nil {
		return IssuedToken{}, err
	}
	s.record(ctx, "player", steamID64)
	return issued, nil
}

// GrantedPlayerRoles derives token capabilities from stored flags. gameControl is never derived.
func GrantedPlayerRoles(p PlayerGrants) []AuthPlayerRole {
	roles := []AuthPlayerRole{}
	if p.Ban {
		roles = append(roles, PlayerBan)
	}
	if p.RootAdmin {
		roles = append(roles, PlayerRootAdmin)
	}
	return roles
}

func (s *Issuer) sign(ctx context.Context, claims Claims, ttl time.Duration) (IssuedToken, error) {
	secrets, err := s.secrets.CurrentSecrets(ctx)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("%w: %v", ErrSecretLookupFailed, err)
	}
	token, exp, err := SignToken(secrets.SigningSecret, claims, s.now(), ttl)
	if err != nil {
		if errors.Is(err, errEmptySecret) {
			return IssuedToken{}, fmt.Errorf("%w: %v", ErrSecretLookupFailed, err)
		}
		return IssuedToken{}, err
	}
	return IssuedToken{Token: token, ExpiresAt: exp}, nil
}

func (s *Issuer) record(ctx context.Context, entity, entityID string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    entity,
		Action:   "token.issue",
		Entity:   entity,
		EntityID: entityID,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit token issue", slog.String("entity", entity), slog.Any("error", err))
	}
}
