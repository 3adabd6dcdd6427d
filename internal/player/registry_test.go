package player

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/quaverbot/quaver/internal/cache"
	"github.com/quaverbot/quaver/internal/observe"
	"github.com/quaverbot/quaver/internal/pipeline"
	"github.com/quaverbot/quaver/internal/settings"
	"github.com/quaverbot/quaver/internal/track"
	"github.com/quaverbot/quaver/internal/voice/mock"
)

type nopStreams struct{}

func (nopStreams) StreamURL(_ context.Context, t track.Track) (string, error) {
	return t.URL, nil
}

func nopOpen(_ context.Context, _ pipeline.Options) (Stream, error) {
	return nil, errors.New("no streams in registry tests")
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	c, err := cache.Open(t.TempDir(), 1<<20, observe.DefaultMetrics())
	if err != nil {
		t.Fatal(err)
	}
	r := NewRegistry(Deps{
		Connector: mock.NewConnector(),
		Open:      nopOpen,
		Cache:     c,
		Settings:  settings.NewMemStore(),
		Streams:   nopStreams{},
		Metrics:   observe.DefaultMetrics(),
		Logger:    slog.New(slog.DiscardHandler),
	})
	t.Cleanup(func() { _ = r.Shutdown(context.Background()) })
	return r
}

func TestRegistryGetIsLazyAndStable(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	if _, ok := r.GetIfExists("g1"); ok {
		t.Fatal("player exists before Get")
	}
	p1 := r.Get("g1")
	p2 := r.Get("g1")
	if p1 != p2 {
		t.Fatal("Get returned different players for one guild")
	}
	if r.Get("g2") == p1 {
		t.Fatal("guilds share a player")
	}
	if r.Len() != 2 {
		t.Fatalf("len = %d, want 2", r.Len())
	}
}

func TestRegistryRemove(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	p := r.Get("g1")
	r.Remove("g1")
	if _, ok := r.GetIfExists("g1"); ok {
		t.Fatal("player still present after Remove")
	}
	if err := p.Play(); !errors.Is(err, ErrClosed) {
		t.Fatalf("removed player err = %v, want ErrClosed", err)
	}
	r.Remove("g1") // absent guild is fine
}

func TestRegistryReapsIdlePlayers(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	r.Get("g1")
	busy := r.Get("g2")
	// g2 stays current; g1 ages past the eviction threshold.
	future := time.Now().Add(idleEvictAfter + time.Minute)
	_ = busy.exec(func() error {
		busy.lastActive = future
		return nil
	})

	r.reapIdle(future.Add(time.Second))

	if _, ok := r.GetIfExists("g1"); ok {
		t.Fatal("idle player survived the reaper")
	}
	if _, ok := r.GetIfExists("g2"); !ok {
		t.Fatal("active player was reaped")
	}
}

func TestRegistryShutdownClosesAll(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	p1 := r.Get("g1")
	p2 := r.Get("g2")
	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	for _, p := range []*Player{p1, p2} {
		if err := p.Play(); !errors.Is(err, ErrClosed) {
			t.Fatalf("err = %v, want ErrClosed", err)
		}
	}
	if r.Len() != 0 {
		t.Fatalf("len = %d, want 0", r.Len())
	}
}
