package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quaverbot/quaver/internal/config"
)

const validYAML = `
discord:
  token: tok
  status: idle
  activity_type: listening
  activity: music
cache:
  dir: /var/cache/quaver
  limit: 1GiB
database:
  dsn: postgres://localhost/quaver
server:
  listen_addr: ":9090"
  log_level: debug
`

func TestLoadFromReader(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Discord.Token != "tok" {
		t.Errorf("token = %q", cfg.Discord.Token)
	}
	if cfg.Discord.Status != config.StatusIdle {
		t.Errorf("status = %q", cfg.Discord.Status)
	}
	if cfg.Cache.Dir != "/var/cache/quaver" {
		t.Errorf("cache dir = %q", cfg.Cache.Dir)
	}
	if got := cfg.CacheBudget(); got != 1<<30 {
		t.Errorf("cache budget = %d, want %d", got, 1<<30)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen addr = %q", cfg.Server.ListenAddr)
	}
}

func TestLoadFromReaderDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader("discord:\n  token: tok\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Cache.Dir == "" || filepath.Base(cfg.Cache.Dir) != "cache" {
		t.Errorf("default cache dir = %q", cfg.Cache.Dir)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("default log level = %q", cfg.Server.LogLevel)
	}
}

func TestLoadAcceptsUppercaseEnums(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "tok")
	t.Setenv("BOT_STATUS", "IDLE")
	t.Setenv("BOT_ACTIVITY_TYPE", "LISTENING")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discord.Status != config.StatusIdle {
		t.Errorf("status = %q, want %q", cfg.Discord.Status, config.StatusIdle)
	}
	if cfg.Discord.ActivityType != config.ActivityListening {
		t.Errorf("activity type = %q, want %q", cfg.Discord.ActivityType, config.ActivityListening)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log level = %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
}

func TestDataDirDerivesCacheDir(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "tok")
	t.Setenv("DATA_DIR", "/srv/quaver")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if want := filepath.Join("/srv/quaver", "cache"); cfg.Cache.Dir != want {
		t.Errorf("cache dir = %q, want %q", cfg.Cache.Dir, want)
	}

	// An explicit cache dir wins over the derived one.
	t.Setenv("CACHE_DIR", "/fast/cache")
	cfg, err = config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cache.Dir != "/fast/cache" {
		t.Errorf("cache dir = %q, want /fast/cache", cfg.Cache.Dir)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("discord:\n  token: tok\n  shard_count: 4\n"))
	if err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	cfg.Discord.Status = "away"
	cfg.Cache.Limit = "lots"
	cfg.Server.LogLevel = "verbose"

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("invalid config accepted")
	}
	for _, want := range []string{"token", "status", "cache.limit", "log_level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadAppliesEnvOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quaver.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("DISCORD_TOKEN", "env-token")
	t.Setenv("CACHE_LIMIT", "100MB")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discord.Token != "env-token" {
		t.Errorf("token = %q, env should win", cfg.Discord.Token)
	}
	if got := cfg.CacheBudget(); got != 100*1000*1000 {
		t.Errorf("cache budget = %d", got)
	}
	if cfg.Server.LogLevel != config.LogWarn {
		t.Errorf("log level = %q", cfg.Server.LogLevel)
	}
	// File values without env overrides survive.
	if cfg.Discord.Activity != "music" {
		t.Errorf("activity = %q", cfg.Discord.Activity)
	}
}

func TestLoadMissingFileUsesEnv(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "env-only")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discord.Token != "env-only" {
		t.Errorf("token = %q", cfg.Discord.Token)
	}
}

func TestLoadMissingTokenFails(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	os.Unsetenv("DISCORD_TOKEN")

	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("config without token accepted")
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()

	old := config.Defaults()
	old.Discord.Token = "tok"
	updated := *old

	if d := config.Diff(old, &updated); d.LogLevelChanged || d.PresenceChanged {
		t.Fatalf("identical configs diffed: %+v", d)
	}

	updated.Server.LogLevel = config.LogDebug
	updated.Discord.Activity = "tunes"
	d := config.Diff(old, &updated)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level diff = %+v", d)
	}
	if !d.PresenceChanged || d.NewPresence.Activity != "tunes" {
		t.Errorf("presence diff = %+v", d)
	}
}

func TestParseSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int64
	}{
		{"1048576", 1 << 20},
		{"2GB", 2 * 1000 * 1000 * 1000},
		{"2GiB", 2 << 30},
		{"512 MiB", 512 << 20},
		{"1.5kb", 1500},
		{"10b", 10},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := config.ParseSize(tc.in)
			if err != nil {
				t.Fatalf("ParseSize(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("ParseSize(%q) = %d, want %d", tc.in, got, tc.want)
			}
		})
	}

	for _, in := range []string{"", "lots", "GB", "-5MB", "0"} {
		if _, err := config.ParseSize(in); err == nil {
			t.Errorf("ParseSize(%q) accepted", in)
		}
	}
}

func TestValidateIsErrorsJoin(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	err := config.Validate(cfg)
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) {
		t.Fatalf("Validate error %T does not unwrap to a list", err)
	}
}
