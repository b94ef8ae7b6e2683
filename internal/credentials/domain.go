package credentials

import (
	"time"

	"github.com/google/uuid"
)

// InstanceConfig holds the secrets configured for one deployment instance.
type InstanceConfig struct {
	Instance          string
	Secret            string
	MasterKeyHash     string
	AdminPasswordHash string
	UpdatedAt         time.Time
}

// AuthKey is a registered automation client credential.
type AuthKey struct {
	ID          uuid.UUID
	Key         string
	Description string
	LastUse     *time.Time
}

// Gameserver is a registered game server and its credential.
type Gameserver struct {
	ID          uuid.UUID
	Name        string
	AuthKey     string
	LastContact *time.Time
}

// RegisteredPlayer is a player allowed to obtain in-game tokens.
type RegisteredPlayer struct {
	SteamID64 string
	Name      string
	RootAdmin bool
	Ban       bool
}
