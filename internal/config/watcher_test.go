package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quaverbot/quaver/internal/config"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	// Coarse mtime filesystems need a visible timestamp change.
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		t.Fatal(err)
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quaver.yaml")
	writeConfig(t, path, "discord:\n  token: tok\nserver:\n  log_level: info\n")

	changed := make(chan *config.Config, 1)
	w, err := config.NewWatcher(path, func(_, updated *config.Config) {
		changed <- updated
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Fatalf("initial log level = %q", got)
	}

	time.Sleep(30 * time.Millisecond)
	writeConfig(t, path, "discord:\n  token: tok\nserver:\n  log_level: debug\n")

	select {
	case updated := <-changed:
		if updated.Server.LogLevel != config.LogDebug {
			t.Fatalf("reloaded log level = %q", updated.Server.LogLevel)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("change callback never fired")
	}

	if got := w.Current().Server.LogLevel; got != config.LogDebug {
		t.Fatalf("Current() after reload = %q", got)
	}
}

func TestWatcherKeepsOldConfigOnInvalidChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quaver.yaml")
	writeConfig(t, path, "discord:\n  token: tok\n")

	w, err := config.NewWatcher(path, func(_, _ *config.Config) {
		t.Error("callback fired for invalid config")
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	time.Sleep(30 * time.Millisecond)
	writeConfig(t, path, "discord:\n  token: tok\nserver:\n  log_level: shouting\n")
	time.Sleep(100 * time.Millisecond)

	if got := w.Current().Discord.Token; got != "tok" {
		t.Fatalf("token after bad reload = %q", got)
	}
	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Fatalf("log level after bad reload = %q", got)
	}
}

func TestWatcherInitialLoadFailure(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	os.Unsetenv("DISCORD_TOKEN")

	path := filepath.Join(t.TempDir(), "quaver.yaml")
	writeConfig(t, path, "discord: {}\n")

	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("watcher accepted a config without a token")
	}
}
