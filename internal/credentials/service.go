package credentials

import (
	"context"

	"github.com/google/uuid"

	"github.com/tacbyte/tacstats/internal/auth"
)

// Service adapts the repository to the lookups the gatekeeper consumes.
type Service struct {
	repo     Repository
	instance string
}

// NewService constructs a Service for the given deployment instance.
func NewService(repo Repository, instance string) *Service {
	return &Service{repo: repo, instance: instance}
}

// LookupAuthKey returns the id of the auth key with the given value.
func (s *Service) LookupAuthKey(ctx context.Context, key string) (uuid.UUID, error) {
	rec, err := s.repo.FindAuthKey(ctx, key)
	if err != nil {
		return uuid.Nil, err
	}
	return rec.ID, nil
}

// LookupGameserver returns the id of the gameserver holding key.
func (s *Service) LookupGameserver(ctx context.Context, key string) (uuid.UUID, error) {
	rec, err := s.repo.FindGameserverByKey(ctx, key)
	if err != nil {
		return uuid.Nil, err
	}
	return rec.ID, nil
}

// LookupPlayer returns the capability flags of a registered player.
func (s *Service) LookupPlayer(ctx context.Context, steamID64 string) (auth.PlayerGrants, error) {
	rec, err := s.repo.FindPlayer(ctx, steamID64)
	if err != nil {
		return auth.PlayerGrants{}, err
	}
	return auth.PlayerGrants{SteamID64: rec.SteamID64, RootAdmin: rec.RootAdmin, Ban: rec.Ban}, nil
}

// FreshAdminPasswordHash reads the admin password hash straight from storage.
func (s *Service) FreshAdminPasswordHash(ctx context.Context) (string, error) {
	cfg, err := s.repo.InstanceConfig(ctx, s.instance)
	if err != nil {
		return "", err
	}
	return cfg.AdminPasswordHash, nil
}

var (
	_ auth.AuthKeyLookup       = (*Service)(nil)
	_ auth.GameserverLookup    = (*Service)(nil)
	_ auth.PlayerLookup        = (*Service)(nil)
	_ auth.AdminPasswordReader = (*Service)(nil)
)
