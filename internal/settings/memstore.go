package settings

import (
	"context"
	"sync"
)

// MemStore is an in-memory [Store] for deployments without a database and
// for tests. Settings do not survive a restart.
type MemStore struct {
	mu      sync.RWMutex
	byGuild map[string]GuildSettings
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{byGuild: make(map[string]GuildSettings)}
}

// Get returns a copy of the guild's settings, or [Defaults] when unset.
func (m *MemStore) Get(_ context.Context, guildID string) (*GuildSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if gs, ok := m.byGuild[guildID]; ok {
		out := gs
		return &out, nil
	}
	return Defaults(guildID), nil
}

// Set validates and stores a copy of the guild's settings.
func (m *MemStore) Set(_ context.Context, gs *GuildSettings) error {
	if err := gs.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byGuild[gs.GuildID] = *gs
	return nil
}
