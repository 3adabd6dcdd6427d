package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/quaverbot/quaver/internal/discord"
	"github.com/quaverbot/quaver/internal/player"
	"github.com/quaverbot/quaver/internal/resolver"
	"github.com/quaverbot/quaver/internal/track"
)

// resolveTimeout bounds one metadata resolution, which may shell out to an
// external extractor.
const resolveTimeout = 30 * time.Second

// PlayCommands handles /play and its query autocomplete.
type PlayCommands struct {
	deps Deps
}

// NewPlayCommands creates a PlayCommands handler.
func NewPlayCommands(deps Deps) *PlayCommands {
	return &PlayCommands{deps: deps}
}

// Register registers /play with the router.
func (pc *PlayCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("play", pc.Definition(), instrument(pc.deps.Metrics, "play", pc.handlePlay))
	router.RegisterAutocomplete("play", pc.handleAutocomplete)
}

// Definition returns the /play ApplicationCommand for Discord registration.
func (pc *PlayCommands) Definition() *discordgo.ApplicationCommand {
	guildOnly := false
	return &discordgo.ApplicationCommand{
		Name:         "play",
		Description:  "Play a track, playlist, or search result in your voice channel",
		DMPermission: &guildOnly,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:         "query",
				Description:  "Search terms or a URL",
				Type:         discordgo.ApplicationCommandOptionString,
				Required:     true,
				Autocomplete: true,
			},
			{
				Name:        "next",
				Description: "Insert right after the current track instead of at the end",
				Type:        discordgo.ApplicationCommandOptionBoolean,
			},
			{
				Name:        "skip",
				Description: "Skip the current track once the new one is queued",
				Type:        discordgo.ApplicationCommandOptionBoolean,
			},
			{
				Name:        "shuffle",
				Description: "Shuffle the upcoming queue after adding",
				Type:        discordgo.ApplicationCommandOptionBoolean,
			},
			{
				Name:        "split-chapters",
				Description: "Queue each chapter of the video as its own track",
				Type:        discordgo.ApplicationCommandOptionBoolean,
			},
		},
	}
}

// handlePlay handles /play.
func (pc *PlayCommands) handlePlay(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	opts := commandOptions(i)
	query := opts["query"].StringValue()

	channelID, err := callerVoiceChannel(s, i)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	cfg, err := pc.deps.Settings.Get(ctx, i.GuildID)
	if err != nil {
		return fmt.Errorf("commands: load settings: %w", err)
	}
	ephemeral := cfg.QueueAddResponseEphemeral

	p := pc.deps.Players.Get(i.GuildID)
	// Don't steal the player from another channel mid-song.
	if p.Connected() && p.ChannelID() != channelID && p.Status() != player.Idle {
		return errDifferentChannel
	}

	// Resolution and the voice join can both take a while.
	discord.DeferReply(s, i, ephemeral)

	tracks, err := pc.deps.Resolver.Resolve(ctx, query, resolver.Options{
		PlaylistLimit: cfg.PlaylistLimit,
		SplitChapters: boolOption(opts, "split-chapters"),
	})
	if err != nil {
		pc.deps.Metrics.RecordResolveError(ctx, "resolve")
		discord.FollowUp(s, i, friendlyError(err), true)
		return nil
	}
	pc.deps.Suggest.Record(i.GuildID, query)

	if err := p.Connect(ctx, channelID); err != nil {
		discord.FollowUp(s, i, friendlyError(err), true)
		return nil
	}

	now := time.Now()
	queued := make([]track.Queued, len(tracks))
	for n, t := range tracks {
		queued[n] = track.Queued{
			Track:       t,
			RequestedBy: interactionUserID(i),
			ChannelID:   i.ChannelID,
			AddedAt:     now,
		}
	}

	started, err := p.Enqueue(queued, boolOption(opts, "next"))
	if err != nil {
		discord.FollowUp(s, i, friendlyError(err), true)
		return nil
	}

	if boolOption(opts, "skip") && !started {
		if _, err := p.Skip(1); err != nil {
			slog.Debug("skip after enqueue", "guild_id", i.GuildID, "err", err)
		}
	}
	if boolOption(opts, "shuffle") {
		if err := p.Shuffle(); err != nil {
			slog.Debug("shuffle after enqueue", "guild_id", i.GuildID, "err", err)
		}
	}

	discord.FollowUp(s, i, addedMessage(tracks, started, p.QueueSize()), ephemeral)
	return nil
}

// addedMessage builds the /play confirmation line.
func addedMessage(tracks []track.Track, started bool, queueSize int) string {
	if len(tracks) == 1 {
		t := tracks[0]
		if started {
			return fmt.Sprintf("Now playing **%s**.", t.Title)
		}
		return fmt.Sprintf("Queued **%s** (position %d).", t.Title, queueSize)
	}
	if pl := tracks[0].Playlist; pl != nil && pl.Title != "" {
		return fmt.Sprintf("Queued **%d** tracks from **%s**.", len(tracks), pl.Title)
	}
	return fmt.Sprintf("Queued **%d** tracks.", len(tracks))
}

// handleAutocomplete suggests recent queries for the query option.
func (pc *PlayCommands) handleAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	var partial string
	for _, o := range i.ApplicationCommandData().Options {
		if o.Name == "query" && o.Focused {
			partial = o.StringValue()
		}
	}

	suggestions := pc.deps.Suggest.Suggest(i.GuildID, partial, 10)
	choices := make([]*discordgo.ApplicationCommandOptionChoice, len(suggestions))
	for n, q := range suggestions {
		choices[n] = &discordgo.ApplicationCommandOptionChoice{Name: q, Value: q}
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
	if err != nil {
		slog.Warn("discord: autocomplete response", "err", err)
	}
}

// boolOption reads an optional boolean option, defaulting to false.
func boolOption(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) bool {
	if o, ok := opts[name]; ok {
		return o.BoolValue()
	}
	return false
}
