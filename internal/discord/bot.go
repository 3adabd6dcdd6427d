// Package discord provides the Discord gateway layer for Quaver. It owns
// the discordgo.Session lifecycle, routes slash-command interactions to
// registered handlers, and watches voice state for transport drops.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the Discord bot token.
	Token string

	// GuildID, when set, scopes slash-command registration to one guild
	// (instant propagation, useful in development). Empty registers the
	// commands globally.
	GuildID string

	// Status is the bot presence: online, idle, dnd, or invisible.
	Status string

	// ActivityType is what the presence verb shows: playing, listening,
	// watching, or streaming.
	ActivityType string

	// ActivityName is the presence text, e.g. "music".
	ActivityName string
}

// Bot owns the Discord gateway connection and routes interactions to
// registered command handlers.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	router    *CommandRouter
	cfg       Config
	commands  []*discordgo.ApplicationCommand
	closeOnce sync.Once

	voiceDrop     func(guildID string)
	listenersGone func(guildID string)
}

// New creates a Bot, connects to the gateway, and registers the interaction
// handler.
func New(_ context.Context, cfg Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}

	b := &Bot{
		session: session,
		router:  NewCommandRouter(),
		cfg:     cfg,
	}

	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.router.Handle(s, i)
	})
	session.AddHandler(b.handleVoiceStateUpdate)

	if err := b.applyPresence(); err != nil {
		slog.Warn("discord: set presence", "err", err)
	}

	return b, nil
}

// Session returns the underlying discordgo session. Used by subsystems that
// need direct API access (voice joins, announcements, health checks).
func (b *Bot) Session() *discordgo.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

// Router returns the command router for registering handlers.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// OnVoiceDrop registers the callback invoked when the bot loses a guild's
// voice channel without asking for it (kick, channel delete, region move).
func (b *Bot) OnVoiceDrop(fn func(guildID string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.voiceDrop = fn
}

// OnListenersGone registers the callback invoked when the last non-bot user
// leaves the voice channel the bot is in.
func (b *Bot) OnListenersGone(fn func(guildID string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listenersGone = fn
}

// Gateway reports whether the websocket is up; used by readiness checks.
func (b *Bot) Gateway() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session != nil && b.session.DataReady
}

// Run registers slash commands with the Discord API and blocks until ctx is
// cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.RLock()
	appID := b.session.State.User.ID
	b.mu.RUnlock()

	cmds := b.router.ApplicationCommands()
	if len(cmds) > 0 {
		registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.cfg.GuildID, cmds)
		if err != nil {
			return fmt.Errorf("discord: register commands: %w", err)
		}
		b.mu.Lock()
		b.commands = registered
		b.mu.Unlock()
		slog.Info("discord commands registered", "count", len(registered), "guild_id", b.cfg.GuildID)
	}

	<-ctx.Done()
	return ctx.Err()
}

// Close disconnects from Discord and unregisters commands.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.session != nil && len(b.commands) > 0 {
			appID := b.session.State.User.ID
			for _, cmd := range b.commands {
				if err := b.session.ApplicationCommandDelete(appID, b.cfg.GuildID, cmd.ID); err != nil {
					slog.Warn("discord: failed to delete command", "name", cmd.Name, "err", err)
				}
			}
		}

		if b.session != nil {
			if err := b.session.Close(); err != nil {
				closeErr = fmt.Errorf("discord: close session: %w", err)
			}
		}

		slog.Info("discord bot closed")
	})
	return closeErr
}

// handleVoiceStateUpdate watches voice state for two things: the bot itself
// being yanked out of a channel, and the last listener leaving the channel
// the bot occupies.
func (b *Bot) handleVoiceStateUpdate(s *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if s.State.User == nil {
		return
	}
	if vsu.UserID != s.State.User.ID {
		b.checkListenersGone(s, vsu.GuildID)
		return
	}
	// A move or a planned disconnect is not a drop; only losing the channel
	// while we believed we had one is.
	if vsu.ChannelID != "" || vsu.BeforeUpdate == nil || vsu.BeforeUpdate.ChannelID == "" {
		return
	}

	b.mu.RLock()
	fn := b.voiceDrop
	b.mu.RUnlock()
	if fn != nil {
		fn(vsu.GuildID)
	}
}

// checkListenersGone fires the listenersGone callback when the bot's voice
// channel in the guild has no remaining human occupants. Other bots do not
// count as listeners.
func (b *Bot) checkListenersGone(s *discordgo.Session, guildID string) {
	b.mu.RLock()
	fn := b.listenersGone
	b.mu.RUnlock()
	if fn == nil {
		return
	}

	guild, err := s.State.Guild(guildID)
	if err != nil {
		return
	}
	botID := s.State.User.ID
	var botChannel string
	for _, vs := range guild.VoiceStates {
		if vs.UserID == botID {
			botChannel = vs.ChannelID
			break
		}
	}
	if botChannel == "" {
		return
	}
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != botChannel || vs.UserID == botID {
			continue
		}
		if vs.Member != nil && vs.Member.User != nil && vs.Member.User.Bot {
			continue
		}
		return
	}
	fn(guildID)
}

// UpdatePresence replaces the bot's status and activity at runtime, e.g.
// after a config reload.
func (b *Bot) UpdatePresence(status, activityType, activity string) error {
	b.mu.Lock()
	b.cfg.Status = status
	b.cfg.ActivityType = activityType
	b.cfg.ActivityName = activity
	b.mu.Unlock()
	return b.applyPresence()
}

// applyPresence pushes the configured status and activity to the gateway.
func (b *Bot) applyPresence() error {
	b.mu.RLock()
	cfg := b.cfg
	b.mu.RUnlock()

	if cfg.Status == "" && cfg.ActivityName == "" {
		return nil
	}

	var activities []*discordgo.Activity
	if cfg.ActivityName != "" {
		activities = append(activities, &discordgo.Activity{
			Name: cfg.ActivityName,
			Type: activityType(cfg.ActivityType),
		})
	}
	status := cfg.Status
	if status == "" {
		status = string(discordgo.StatusOnline)
	}
	return b.session.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status:     status,
		Activities: activities,
	})
}

func activityType(name string) discordgo.ActivityType {
	switch name {
	case "listening":
		return discordgo.ActivityTypeListening
	case "watching":
		return discordgo.ActivityTypeWatching
	case "streaming":
		return discordgo.ActivityTypeStreaming
	case "competing":
		return discordgo.ActivityTypeCompeting
	default:
		return discordgo.ActivityTypeGame
	}
}
