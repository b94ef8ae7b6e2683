package credentials

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tacbyte/tacstats/internal/shared"
)

type memoryRepo struct {
	mu          sync.Mutex
	configs     map[string]InstanceConfig
	authKeys    map[string]AuthKey
	gameservers map[string]Gameserver
	players     map[string]RegisteredPlayer
	configReads int
	touchErr    error
	touched     chan uuid.UUID
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		configs:     make(map[string]InstanceConfig),
		authKeys:    make(map[string]AuthKey),
		gameservers: make(map[string]Gameserver),
		players:     make(map[string]RegisteredPlayer),
		touched:     make(chan uuid.UUID, 8),
	}
}

func (r *memoryRepo) setConfig(cfg InstanceConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.Instance] = cfg
}

func (r *memoryRepo) reads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.configReads
}

func (r *memoryRepo) InstanceConfig(_ context.Context, instance string) (InstanceConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configReads++
	cfg, ok := r.configs[instance]
	if !ok {
		return InstanceConfig{}, shared.ErrNotFound
	}
	return cfg, nil
}

func (r *memoryRepo) FindAuthKey(_ context.Context, key string) (AuthKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.authKeys[key]
	if !ok {
		return AuthKey{}, shared.ErrNotFound
	}
	return rec, nil
}

func (r *memoryRepo) TouchAuthKey(_ context.Context, id uuid.UUID, at time.Time) error {
	if r.touchErr != nil {
		return r.touchErr
	}
	r.mu.Lock()
	for k, rec := range r.authKeys {
		if rec.ID == id {
			ts := at
			rec.LastUse = &ts
			r.authKeys[k] = rec
		}
	}
	r.mu.Unlock()
	r.touched <- id
	return nil
}

func (r *memoryRepo) FindGameserverByKey(_ context.Context, key string) (Gameserver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.gameservers[key]
	if !ok {
		return Gameserver{}, shared.ErrNotFound
	}
	return rec, nil
}

func (r *memoryRepo) TouchGameserver(_ context.Context, id uuid.UUID, at time.Time) error {
	if r.touchErr != nil {
		return r.touchErr
	}
	r.mu.Lock()
	for k, rec := range r.gameservers {
		if rec.ID == id {
			ts := at
			rec.LastContact = &ts
			r.gameservers[k] = rec
		}
	}
	r.mu.Unlock()
	r.touched <- id
	return nil
}

func (r *memoryRepo) FindPlayer(_ context.Context, steamID64 string) (RegisteredPlayer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.players[steamID64]
	if !ok {
		return RegisteredPlayer{}, shared.ErrNotFound
	}
	return rec, nil
}
