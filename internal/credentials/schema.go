package credentials

// Schema creates the credential tables when they do not exist.
const Schema = `CREATE TABLE IF NOT EXISTS instance_configs (
	instance            TEXT PRIMARY KEY,
	secret              TEXT NOT NULL,
	master_key_hash     TEXT,
	admin_password_hash TEXT,
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS auth_keys (
	id          UUID PRIMARY KEY,
	key         TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	last_use    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS gameservers (
	id           UUID PRIMARY KEY,
	name         TEXT NOT NULL,
	auth_key     TEXT NOT NULL UNIQUE,
	last_contact TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS registered_players (
	steam_id64 TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	root_admin BOOLEAN NOT NULL DEFAULT FALSE,
	ban        BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS audit_logs (
	id          BIGSERIAL PRIMARY KEY,
	actor       TEXT NOT NULL,
	action      TEXT NOT NULL,
	entity      TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	meta        JSONB,
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
