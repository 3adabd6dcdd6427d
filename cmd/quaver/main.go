// Command quaver is the entry point for the Quaver Discord music bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quaverbot/quaver/internal/cache"
	"github.com/quaverbot/quaver/internal/config"
	discordbot "github.com/quaverbot/quaver/internal/discord"
	"github.com/quaverbot/quaver/internal/discord/commands"
	"github.com/quaverbot/quaver/internal/health"
	"github.com/quaverbot/quaver/internal/observe"
	"github.com/quaverbot/quaver/internal/player"
	"github.com/quaverbot/quaver/internal/resolver"
	"github.com/quaverbot/quaver/internal/settings"
	"github.com/quaverbot/quaver/internal/track"
	"github.com/quaverbot/quaver/internal/voice"
)

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "quaver.yaml", "path to the YAML configuration file (optional)")
	envPath := flag.String("env", ".env", "path to a dotenv file (optional)")
	flag.Parse()

	// ── Configuration: .env, then YAML, then environment ──────────────────────
	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "quaver: load %q: %v\n", *envPath, err)
		return 1
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quaver: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := &slog.LevelVar{}
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("quaver starting",
		"config", *configPath,
		"cache_dir", cfg.Cache.Dir,
		"cache_limit", cfg.Cache.Limit,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Settings store ────────────────────────────────────────────────────────
	var store settings.Store
	if cfg.Database.DSN != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.DSN)
		if err != nil {
			slog.Error("failed to connect to database", "err", err)
			return 1
		}
		defer pool.Close()

		pg := settings.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("failed to migrate database", "err", err)
			return 1
		}
		store = pg
		slog.Info("guild settings stored in postgres")
	} else {
		store = settings.NewMemStore()
		slog.Warn("no database configured; guild settings reset on restart")
	}

	// ── Audio cache ───────────────────────────────────────────────────────────
	audioCache, err := cache.Open(cfg.Cache.Dir, cfg.CacheBudget(), metrics)
	if err != nil {
		slog.Error("failed to open audio cache", "err", err)
		return 1
	}
	cacheStats := audioCache.Stats()
	slog.Info("audio cache opened", "files", cacheStats.Files, "bytes", cacheStats.Bytes)

	// ── Resolver ──────────────────────────────────────────────────────────────
	ytdlp := resolver.NewYtDlp()
	if cfg.Resolver.YtDlpPath != "" {
		ytdlp.Binary = cfg.Resolver.YtDlpPath
	}
	suggester := resolver.NewSuggester()

	// ── Discord bot ───────────────────────────────────────────────────────────
	bot, err := discordbot.New(ctx, discordbot.Config{
		Token:        cfg.Discord.Token,
		GuildID:      cfg.Discord.GuildID,
		Status:       string(cfg.Discord.Status),
		ActivityType: string(cfg.Discord.ActivityType),
		ActivityName: cfg.Discord.Activity,
	})
	if err != nil {
		slog.Error("failed to create Discord bot", "err", err)
		return 1
	}

	// ── Players ───────────────────────────────────────────────────────────────
	registry := player.NewRegistry(player.Deps{
		Connector: voice.NewDiscordConnector(bot.Session()),
		Open:      player.PipelineOpener(),
		Cache:     audioCache,
		Settings:  store,
		Streams:   ytdlp,
		Metrics:   metrics,
		Logger:    logger,
		Announce: func(channelID string, t track.Queued) {
			if _, err := bot.Session().ChannelMessageSend(channelID, fmt.Sprintf("Now playing **%s**.", t.Title)); err != nil {
				slog.Warn("announce failed", "channel_id", channelID, "err", err)
			}
		},
	})
	bot.OnVoiceDrop(func(guildID string) {
		if p, ok := registry.GetIfExists(guildID); ok {
			p.HandleVoiceDrop()
		}
	})
	bot.OnListenersGone(func(guildID string) {
		if p, ok := registry.GetIfExists(guildID); ok {
			p.HandleListenersGone()
		}
	})

	commands.RegisterAll(bot.Router(), commands.Deps{
		Players:  registry,
		Resolver: ytdlp,
		Suggest:  suggester,
		Settings: store,
		Cache:    audioCache,
		Metrics:  metrics,
	})

	go func() {
		if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("discord bot error", "err", err)
		}
	}()

	// ── Health and metrics sidecar ────────────────────────────────────────────
	var httpSrv *http.Server
	if cfg.Server.ListenAddr != "" {
		mux := http.NewServeMux()
		health.New(
			health.GatewayChecker(bot.Gateway),
			health.CacheDirChecker(cfg.Cache.Dir),
			health.SettingsChecker(store),
		).Register(mux)
		mux.Handle("GET /metrics", promhttp.Handler())

		httpSrv = &http.Server{
			Addr:    cfg.Server.ListenAddr,
			Handler: observe.Middleware(metrics)(mux),
		}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server error", "err", err)
			}
		}()
		slog.Info("http server listening", "addr", cfg.Server.ListenAddr)
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if _, statErr := os.Stat(*configPath); statErr == nil {
		watcher, err := config.NewWatcher(*configPath, func(old, updated *config.Config) {
			d := config.Diff(old, updated)
			if d.LogLevelChanged {
				level.Set(slogLevel(d.NewLogLevel))
				slog.Info("log level changed", "level", d.NewLogLevel)
			}
			if d.PresenceChanged {
				err := bot.UpdatePresence(
					string(d.NewPresence.Status),
					string(d.NewPresence.ActivityType),
					d.NewPresence.Activity,
				)
				if err != nil {
					slog.Warn("presence update failed", "err", err)
				}
			}
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer watcher.Stop()
		}
	}

	slog.Info("quaver ready — press Ctrl+C to shut down")
	<-ctx.Done()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	exit := 0
	if err := bot.Close(); err != nil {
		slog.Warn("discord bot close error", "err", err)
	}
	if err := registry.Shutdown(shutdownCtx); err != nil {
		slog.Error("player shutdown error", "err", err)
		exit = 1
	}
	if httpSrv != nil {
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return exit
}

// slogLevel maps the config log level to slog's.
func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
