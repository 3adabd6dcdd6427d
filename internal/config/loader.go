package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load builds the effective configuration: defaults, then the YAML file at
// path (skipped when path is empty or missing), then environment variables.
// The result is validated before being returned.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		f, err := os.Open(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Optional file; env alone may be enough.
		case err != nil:
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		default:
			defer f.Close()
			if err := decodeYAML(f, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %q: %w", path, err)
			}
		}
	}

	applyEnv(cfg)
	normalize(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults first, and
// validates the result. Useful in tests where configs are string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Defaults()
	if err := decodeYAML(r, cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	normalize(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns the configuration used before any file or env overrides.
// Cache.Dir is left empty here; [normalize] derives it from the data
// directory when nothing overrides it.
func Defaults() *Config {
	return &Config{
		Cache: CacheConfig{
			Limit: "2GiB",
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
	}
}

// normalize canonicalises enum values and fills derived defaults. Enum
// values are accepted case-insensitively, so BOT_ACTIVITY_TYPE=LISTENING and
// activity_type: listening mean the same thing.
func normalize(cfg *Config) {
	cfg.Discord.Status = Status(strings.ToLower(string(cfg.Discord.Status)))
	cfg.Discord.ActivityType = ActivityType(strings.ToLower(string(cfg.Discord.ActivityType)))
	cfg.Server.LogLevel = LogLevel(strings.ToLower(string(cfg.Server.LogLevel)))
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = filepath.Join(cfg.dataDir(), "cache")
	}
}

func (c *Config) dataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	if base, err := os.UserCacheDir(); err == nil {
		return filepath.Join(base, "quaver")
	}
	return "data"
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overlays environment variables onto cfg. Env always wins over the
// file so deployments can override a baked-in config.
func applyEnv(cfg *Config) {
	setString(&cfg.Discord.Token, "DISCORD_TOKEN")
	setString(&cfg.Discord.GuildID, "DISCORD_GUILD_ID")
	if v, ok := os.LookupEnv("BOT_STATUS"); ok {
		cfg.Discord.Status = Status(v)
	}
	if v, ok := os.LookupEnv("BOT_ACTIVITY_TYPE"); ok {
		cfg.Discord.ActivityType = ActivityType(v)
	}
	setString(&cfg.Discord.Activity, "BOT_ACTIVITY")
	setString(&cfg.DataDir, "DATA_DIR")
	setString(&cfg.Cache.Dir, "CACHE_DIR")
	setString(&cfg.Cache.Limit, "CACHE_LIMIT")
	setString(&cfg.Database.DSN, "DATABASE_URL")
	setString(&cfg.Server.ListenAddr, "LISTEN_ADDR")
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.Server.LogLevel = LogLevel(v)
	}
	setString(&cfg.Resolver.YtDlpPath, "YTDLP_PATH")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required (or set DISCORD_TOKEN)"))
	}
	if cfg.Discord.Status != "" && !cfg.Discord.Status.IsValid() {
		errs = append(errs, fmt.Errorf("discord.status %q is invalid; valid values: online, idle, dnd, invisible", cfg.Discord.Status))
	}
	if cfg.Discord.ActivityType != "" && !cfg.Discord.ActivityType.IsValid() {
		errs = append(errs, fmt.Errorf("discord.activity_type %q is invalid; valid values: playing, listening, watching, streaming, competing", cfg.Discord.ActivityType))
	}

	if cfg.Cache.Dir == "" {
		errs = append(errs, errors.New("cache.dir is required"))
	}
	if _, err := ParseSize(cfg.Cache.Limit); err != nil {
		errs = append(errs, fmt.Errorf("cache.limit: %w", err))
	}

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	return errors.Join(errs...)
}

// CacheBudget returns the cache limit in bytes. Call only after [Validate].
func (c *Config) CacheBudget() int64 {
	n, err := ParseSize(c.Cache.Limit)
	if err != nil {
		return 0
	}
	return n
}
