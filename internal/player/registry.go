package player

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quaverbot/quaver/internal/observe"
)

const (
	// janitorInterval is how often abandoned players are looked for.
	janitorInterval = 5 * time.Minute
	// idleEvictAfter is how long a player may sit idle and untouched before
	// the janitor reaps it.
	idleEvictAfter = 10 * time.Minute
)

// Registry owns at most one player per guild, creating them lazily and
// reaping the ones nobody uses. Safe for concurrent use.
type Registry struct {
	deps Deps
	log  *slog.Logger

	mu      sync.Mutex
	players map[string]*Player

	done      chan struct{}
	closeOnce sync.Once
}

// NewRegistry creates a registry and starts its janitor loop. Missing
// Metrics and Logger deps fall back to the package defaults.
func NewRegistry(deps Deps) *Registry {
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	r := &Registry{
		deps:    deps,
		log:     deps.Logger,
		players: make(map[string]*Player),
		done:    make(chan struct{}),
	}
	go r.janitor()
	return r
}

// Get returns the guild's player, creating one if needed.
func (r *Registry) Get(guildID string) *Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.players[guildID]; ok {
		return p
	}
	p := New(guildID, r.deps)
	r.players[guildID] = p
	r.deps.Metrics.ActivePlayers.Add(context.Background(), 1)
	r.log.Info("player created", "guild_id", guildID)
	return p
}

// GetIfExists returns the guild's player without creating one.
func (r *Registry) GetIfExists(guildID string) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[guildID]
	return p, ok
}

// Remove closes and forgets the guild's player. Removing an absent guild is
// not an error.
func (r *Registry) Remove(guildID string) {
	r.mu.Lock()
	p, ok := r.players[guildID]
	if ok {
		delete(r.players, guildID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	_ = p.Close()
	r.deps.Metrics.ActivePlayers.Add(context.Background(), -1)
	r.log.Info("player removed", "guild_id", guildID)
}

// Len reports how many players exist right now.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// Shutdown stops the janitor and closes every player concurrently.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.closeOnce.Do(func() {
		close(r.done)
	})

	r.mu.Lock()
	players := make([]*Player, 0, len(r.players))
	for id, p := range r.players {
		players = append(players, p)
		delete(r.players, id)
	}
	r.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, p := range players {
		g.Go(p.Close)
	}
	err := g.Wait()
	r.deps.Metrics.ActivePlayers.Add(context.Background(), -int64(len(players)))
	return err
}

// janitor periodically reaps players that are idle and untouched.
func (r *Registry) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.reapIdle(time.Now())
		}
	}
}

// reapIdle removes every player that has been idle longer than the eviction
// threshold as of now.
func (r *Registry) reapIdle(now time.Time) {
	r.mu.Lock()
	candidates := make(map[string]*Player, len(r.players))
	for id, p := range r.players {
		candidates[id] = p
	}
	r.mu.Unlock()

	for id, p := range candidates {
		status, last := p.Inspect()
		if status == Idle && now.Sub(last) > idleEvictAfter {
			r.log.Info("reaping idle player", "guild_id", id, "idle_for", now.Sub(last))
			r.Remove(id)
		}
	}
}
