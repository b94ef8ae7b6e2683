package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tacbyte/tacstats/internal/shared"
)

type stubPasswords struct {
	hash string
	err  error
}

func (s stubPasswords) FreshAdminPasswordHash(context.Context) (string, error) {
	return s.hash, s.err
}

type stubPlayers map[string]PlayerGrants

func (s stubPlayers) LookupPlayer(_ context.Context, steamID64 string) (PlayerGrants, error) {
	p, ok := s[steamID64]
	if !ok {
		return PlayerGrants{}, shared.ErrNotFound
	}
	return p, nil
}

type memoryAudit struct {
	logs []shared.AuditLog
}

func (m *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

const (
	rootSteamID   = "76561198000000001"
	bannerSteamID = "76561198000000002"
	plainSteamID  = "76561198000000003"
)

func newTestIssuer(t *testing.T, audit AuditPort) (*Issuer, time.Time) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("client-side-hash"), bcrypt.MinCost)
	require.NoError(t, err)
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	issuer := NewIssuer(IssuerConfig{
		Secrets:   staticSecrets{secrets: Secrets{SigningSecret: testSecret}},
		Passwords: stubPasswords{hash: string(hash)},
		Players: stubPlayers{
			rootSteamID:   {SteamID64: rootSteamID, RootAdmin: true, Ban: true},
			bannerSteamID: {SteamID64: bannerSteamID, Ban: true},
			plainSteamID:  {SteamID64: plainSteamID},
		},
		Audit: audit,
		Now:   func() time.Time { return now },
	})
	return issuer, now
}

func TestIssueAdminToken(t *testing.T) {
	audit := &memoryAudit{}
	issuer, now := newTestIssuer(t, audit)

	issued, err := issuer.IssueAdminToken(context.Background(), "client-side-hash")
	require.NoError(t, err)
	require.Equal(t, now.Add(AdminTokenTTL), issued.ExpiresAt)

	claims, err := VerifyToken(issued.Token, testSecret, now)
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, claims.Role)
	require.Empty(t, claims.AuthPlayerRoles)

	require.Len(t, audit.logs, 1)
	require.Equal(t, "token.issue", audit.logs[0].Action)
}

func TestIssueAdminTokenWrongPassword(t *testing.T) {
	issuer, _ := newTestIssuer(t, nil)
	_, err := issuer.IssueAdminToken(context.Background(), "guess")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestIssueAdminTokenSecretReadFailure(t *testing.T) {
	issuer := NewIssuer(IssuerConfig{
		Secrets:   staticSecrets{secrets: Secrets{SigningSecret: testSecret}},
		Passwords: stubPasswords{err: errors.New("pg down")},
	})
	_, err := issuer.IssueAdminToken(context.Background(), "client-side-hash")
	require.ErrorIs(t, err, ErrSecretLookupFailed)

	issuer = NewIssuer(IssuerConfig{
		Secrets:   staticSecrets{secrets: Secrets{SigningSecret: testSecret}},
		Passwords: stubPasswords{},
	})
	_, err = issuer.IssueAdminToken(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestIssueAuthPlayerTokenDerivesCapabilities(t *testing.T) {
	issuer, now := newTestIssuer(t, nil)

	cases := map[string][]AuthPlayerRole{
		rootSteamID:   {PlayerBan, PlayerRootAdmin},
		bannerSteamID: {PlayerBan},
		plainSteamID:  nil,
	}
	for steamID, want := range cases {
		issued, err := issuer.IssueAuthPlayerToken(context.Background(), steamID)
		require.NoError(t, err)
		require.Equal(t, now.Add(AuthPlayerTokenTTL), issued.ExpiresAt)

		claims, err := VerifyToken(issued.Token, testSecret, now)
		require.NoError(t, err)
		require.Equal(t, RoleAuthPlayer, claims.Role)
		if want == nil {
			require.Empty(t, claims.AuthPlayerRoles)
		} else {
			require.Equal(t, want, claims.AuthPlayerRoles)
		}
		require.NotContains(t, claims.AuthPlayerRoles, PlayerGameControl)
	}
}

func TestIssueAuthPlayerTokenNotRegistered(t *testing.T) {
	issuer, _ := newTestIssuer(t, nil)
	_, err := issuer.IssueAuthPlayerToken(context.Background(), "76561198999999999")
	require.ErrorIs(t, err, ErrNotRegistered)
}
