package credentials

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tacbyte/tacstats/internal/shared"
)

// Repository defines read access to credential records plus the timestamp bumps.
type Repository interface {
	InstanceConfig(ctx context.Context, instance string) (InstanceConfig, error)
	FindAuthKey(ctx context.Context, key string) (AuthKey, error)
	TouchAuthKey(ctx context.Context, id uuid.UUID, at time.Time) error
	FindGameserverByKey(ctx context.Context, key string) (Gameserver, error)
	TouchGameserver(ctx context.Context, id uuid.UUID, at time.Time) error
	FindPlayer(ctx context.Context, steamID64 string) (RegisteredPlayer, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// InstanceConfig loads the secrets row of an instance.
func (r *PGRepository) InstanceConfig(ctx context.Context, instance string) (InstanceConfig, error) {
	const query = `SELECT instance, secret, COALESCE(master_key_hash, ''), COALESCE(admin_password_hash, ''), updated_at
FROM instance_configs WHERE instance = $1`
	var cfg InstanceConfig
	err := r.pool.QueryRow(ctx, query, instance).Scan(&cfg.Instance, &cfg.Secret, &cfg.MasterKeyHash, &cfg.AdminPasswordHash, &cfg.UpdatedAt)
	if err != nil {
		return InstanceConfig{}, notFound(err)
	}
	return cfg, nil
}

// FindAuthKey fetches an auth key by its literal value.
func (r *PGRepository) FindAuthKey(ctx context.Context, key string) (AuthKey, error) {
	const query = `SELECT id, key, description, last_use FROM auth_keys WHERE key = $1`
	var rec AuthKey
	if err := r.pool.QueryRow(ctx, query, key).Scan(&rec.ID, &rec.Key, &rec.Description, &rec.LastUse); err != nil {
		return AuthKey{}, notFound(err)
	}
	return rec, nil
}

// TouchAuthKey records the last use of an auth key.
func (r *PGRepository) TouchAuthKey(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE auth_keys SET last_use = $2 WHERE id = $1`, id, at.UTC())
	return err
}

// FindGameserverByKey fetches a gameserver by its credential.
func (r *PGRepository) FindGameserverByKey(ctx context.Context, key string) (Gameserver, error) {
	const query = `SELECT id, name, auth_key, last_contact FROM gameservers WHERE auth_key = $1`
	var rec Gameserver
	if err := r.pool.QueryRow(ctx, query, key).Scan(&rec.ID, &rec.Name, &rec.AuthKey, &rec.LastContact); err != nil {
		return Gameserver{}, notFound(err)
	}
	return rec, nil
}

// TouchGameserver records the last contact of a gameserver.
func (r *PGRepository) TouchGameserver(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE gameservers SET last_contact = $2 WHERE id = $1`, id, at.UTC())
	return err
}

// FindPlayer fetches a registered player by steam id.
func (r *PGRepository) FindPlayer(ctx context.Context, steamID64 string) (RegisteredPlayer, error) {
	const query = `SELECT steam_id64, name, root_admin, ban FROM registered_players WHERE steam_id64 = $1`
	var rec RegisteredPlayer
	if err := r.pool.QueryRow(ctx, query, steamID64).Scan(&rec.SteamID64, &rec.Name, &rec.RootAdmin, &rec.Ban); err != nil {
		return RegisteredPlayer{}, notFound(err)
	}
	return rec, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	return err
}

var _ Repository = (*PGRepository)(nil)
