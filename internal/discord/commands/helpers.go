// Package commands implements the Quaver slash commands. Each command group
// holds the shared dependencies, registers its handlers with the router, and
// translates player and resolver errors into user-facing replies.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/quaverbot/quaver/internal/cache"
	"github.com/quaverbot/quaver/internal/discord"
	"github.com/quaverbot/quaver/internal/observe"
	"github.com/quaverbot/quaver/internal/player"
	"github.com/quaverbot/quaver/internal/queue"
	"github.com/quaverbot/quaver/internal/resolver"
	"github.com/quaverbot/quaver/internal/settings"
)

// Deps bundles what the command handlers need.
type Deps struct {
	Players  *player.Registry
	Resolver resolver.Resolver
	Suggest  *resolver.Suggester
	Settings settings.Store
	Cache    *cache.Cache
	Metrics  *observe.Metrics
}

// RegisterAll wires every command group into the router.
func RegisterAll(router *discord.CommandRouter, deps Deps) {
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	NewPlayCommands(deps).Register(router)
	NewPlaybackCommands(deps).Register(router)
	NewQueueCommands(deps).Register(router)
	NewCacheCommands(deps).Register(router)
	NewConfigCommands(deps).Register(router)
}

var (
	errNotInVoice       = errors.New("commands: caller not in a voice channel")
	errDifferentChannel = errors.New("commands: caller in a different voice channel")
)

// handlerFunc is an instrumented handler. A non-nil error means the handler
// has not responded yet; the wrapper sends the user-facing message.
type handlerFunc func(s *discordgo.Session, i *discordgo.InteractionCreate) error

// instrument wraps a handler with command metrics and uniform error replies.
func instrument(m *observe.Metrics, name string, h handlerFunc) discord.HandlerFunc {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		start := time.Now()
		status := "ok"
		if err := h(s, i); err != nil {
			status = "error"
			slog.Debug("command failed", "command", name, "err", err)
			discord.RespondEphemeral(s, i, friendlyError(err))
		}
		m.RecordCommand(context.Background(), name, status, time.Since(start).Seconds())
	}
}

// friendlyError maps internal errors to replies a Discord user can act on.
func friendlyError(err error) string {
	switch {
	case errors.Is(err, errNotInVoice):
		return "You need to be in a voice channel for that."
	case errors.Is(err, errDifferentChannel):
		return "You need to be in my voice channel for that."
	case errors.Is(err, player.ErrNotConnected):
		return "I'm not connected to a voice channel."
	case errors.Is(err, player.ErrNothingPlaying):
		return "Nothing is playing."
	case errors.Is(err, player.ErrAlreadyPlaying):
		return "Already playing. Did you mean `/pause`?"
	case errors.Is(err, player.ErrQueueEmpty):
		return "The queue is empty."
	case errors.Is(err, player.ErrNoPrevious):
		return "There's nothing before the current track."
	case errors.Is(err, player.ErrCannotSeekLive):
		return "Can't seek within a livestream."
	case errors.Is(err, player.ErrSeekOutOfRange):
		return "That position is past the end of the track."
	case errors.Is(err, player.ErrJoinFailed):
		return "I couldn't join the voice channel."
	case errors.Is(err, player.ErrOpenFailed):
		return "I couldn't start playback for that track; it was skipped."
	case errors.Is(err, queue.ErrOutOfRange):
		return "That queue position doesn't exist."
	case errors.Is(err, resolver.ErrNotFound):
		return "No results for that query."
	case errors.Is(err, resolver.ErrInvalidURL):
		return "That URL can't be played."
	case errors.Is(err, resolver.ErrPlaylistTooLarge):
		return "That playlist exceeds this server's playlist limit."
	case errors.Is(err, resolver.ErrUpstream):
		return "The media source didn't answer. Try again in a moment."
	default:
		return "Something went wrong."
	}
}

// interactionUserID extracts the user ID from an interaction, handling both
// guild (Member) and DM (User) contexts.
func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// callerVoiceChannel returns the voice channel the interaction's caller is
// currently in.
func callerVoiceChannel(s *discordgo.Session, i *discordgo.InteractionCreate) (string, error) {
	vs, err := s.State.VoiceState(i.GuildID, interactionUserID(i))
	if err != nil || vs == nil || vs.ChannelID == "" {
		return "", errNotInVoice
	}
	return vs.ChannelID, nil
}

// requireSameChannel checks that the caller shares the player's voice
// channel before allowing a control command.
func requireSameChannel(s *discordgo.Session, i *discordgo.InteractionCreate, p *player.Player) error {
	ch, err := callerVoiceChannel(s, i)
	if err != nil {
		return err
	}
	if !p.Connected() {
		return player.ErrNotConnected
	}
	if p.ChannelID() != ch {
		return errDifferentChannel
	}
	return nil
}

// connectedPlayer returns the guild's player if one exists and is connected.
func connectedPlayer(deps Deps, guildID string) (*player.Player, error) {
	p, ok := deps.Players.GetIfExists(guildID)
	if !ok || !p.Connected() {
		return nil, player.ErrNotConnected
	}
	return p, nil
}

// commandOptions flattens an interaction's options (descending into the
// subcommand if there is one) into a name-keyed map.
func commandOptions(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	opts := i.ApplicationCommandData().Options
	if len(opts) > 0 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		opts = opts[0].Options
	}
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

// formatDuration renders a duration as M:SS or H:MM:SS.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// humanBytes renders a byte count with a binary unit suffix.
func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
