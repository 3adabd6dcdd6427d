package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/quaverbot/quaver/internal/discord"
	"github.com/quaverbot/quaver/internal/settings"
)

// ConfigCommands handles the /config group, which edits per-guild settings.
// The whole group requires the Manage Server permission.
type ConfigCommands struct {
	deps Deps
}

// NewConfigCommands creates a ConfigCommands handler.
func NewConfigCommands(deps Deps) *ConfigCommands {
	return &ConfigCommands{deps: deps}
}

// Register registers the /config command group with the router.
func (c *ConfigCommands) Register(router *discord.CommandRouter) {
	def := c.Definition()
	router.RegisterCommand("config", def, func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		discord.RespondEphemeral(s, i, "Please use a subcommand, e.g. `/config show`.")
	})
	router.RegisterHandler("config/show", instrument(c.deps.Metrics, "config/show", c.handleShow))
	router.RegisterHandler("config/volume", instrument(c.deps.Metrics, "config/volume", c.handleVolume))
	router.RegisterHandler("config/auto-disconnect", instrument(c.deps.Metrics, "config/auto-disconnect", c.handleAutoDisconnect))
	router.RegisterHandler("config/leave-when-alone", instrument(c.deps.Metrics, "config/leave-when-alone", c.handleLeaveWhenAlone))
	router.RegisterHandler("config/page-size", instrument(c.deps.Metrics, "config/page-size", c.handlePageSize))
	router.RegisterHandler("config/playlist-limit", instrument(c.deps.Metrics, "config/playlist-limit", c.handlePlaylistLimit))
	router.RegisterHandler("config/announce", instrument(c.deps.Metrics, "config/announce", c.handleAnnounce))
	router.RegisterHandler("config/ephemeral", instrument(c.deps.Metrics, "config/ephemeral", c.handleEphemeral))
	router.RegisterHandler("config/turn-down", instrument(c.deps.Metrics, "config/turn-down", c.handleTurnDown))
}

// Definition returns the /config ApplicationCommand for Discord registration.
func (c *ConfigCommands) Definition() *discordgo.ApplicationCommand {
	guildOnly := false
	manageGuild := int64(discordgo.PermissionManageServer)
	zero := float64(0)
	one := float64(1)
	return &discordgo.ApplicationCommand{
		Name:                     "config",
		Description:              "Configure the bot for this server",
		DMPermission:             &guildOnly,
		DefaultMemberPermissions: &manageGuild,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "show",
				Description: "Show the current settings",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
			},
			{
				Name:        "volume",
				Description: "Set the default volume for new connections",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "level",
						Description: "Default volume, 0-100",
						Type:        discordgo.ApplicationCommandOptionInteger,
						Required:    true,
						MinValue:    &zero,
						MaxValue:    100,
					},
				},
			},
			{
				Name:        "auto-disconnect",
				Description: "Leave voice after the queue drains",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "enabled",
						Description: "Turn auto-disconnect on or off",
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Required:    true,
					},
					{
						Name:        "delay",
						Description: "How long to wait before leaving, e.g. 30 or 1:00",
						Type:        discordgo.ApplicationCommandOptionString,
					},
				},
			},
			{
				Name:        "leave-when-alone",
				Description: "Pause and leave when the last listener goes",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "enabled",
						Description: "Turn leave-when-alone on or off",
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Required:    true,
					},
				},
			},
			{
				Name:        "page-size",
				Description: "Set how many tracks each /queue page shows",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "size",
						Description: "Tracks per page, 1-30",
						Type:        discordgo.ApplicationCommandOptionInteger,
						Required:    true,
						MinValue:    &one,
						MaxValue:    30,
					},
				},
			},
			{
				Name:        "playlist-limit",
				Description: "Cap how many tracks one playlist may add",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "limit",
						Description: "Maximum tracks per playlist",
						Type:        discordgo.ApplicationCommandOptionInteger,
						Required:    true,
						MinValue:    &one,
					},
				},
			},
			{
				Name:        "announce",
				Description: "Announce each track as the queue advances",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "enabled",
						Description: "Turn announcements on or off",
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Required:    true,
					},
				},
			},
			{
				Name:        "ephemeral",
				Description: "Make /play confirmations visible only to the requester",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "enabled",
						Description: "Turn ephemeral confirmations on or off",
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Required:    true,
					},
				},
			},
			{
				Name:        "turn-down",
				Description: "Duck playback while people speak",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "enabled",
						Description: "Turn ducking on or off",
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Required:    true,
					},
					{
						Name:        "target",
						Description: "Volume to duck to, 0-100",
						Type:        discordgo.ApplicationCommandOptionInteger,
						MinValue:    &zero,
						MaxValue:    100,
					},
				},
			},
		},
	}
}

// update loads the guild's settings, applies fn, and persists the result.
func (c *ConfigCommands) update(guildID string, fn func(*settings.GuildSettings)) error {
	ctx := context.Background()
	gs, err := c.deps.Settings.Get(ctx, guildID)
	if err != nil {
		return fmt.Errorf("commands: load settings: %w", err)
	}
	fn(gs)
	if err := c.deps.Settings.Set(ctx, gs); err != nil {
		return fmt.Errorf("commands: save settings: %w", err)
	}
	return nil
}

func (c *ConfigCommands) handleShow(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	gs, err := c.deps.Settings.Get(context.Background(), i.GuildID)
	if err != nil {
		return fmt.Errorf("commands: load settings: %w", err)
	}
	embed := &discordgo.MessageEmbed{
		Title: "Server settings",
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Default volume", Value: fmt.Sprintf("%d%%", gs.DefaultVolume), Inline: true},
			{Name: "Auto-disconnect", Value: onOff(gs.AutoDisconnect) + " after " + formatDuration(gs.AutoDisconnectDelay), Inline: true},
			{Name: "Leave when alone", Value: onOff(gs.LeaveIfNoListeners), Inline: true},
			{Name: "Queue page size", Value: fmt.Sprintf("%d", gs.QueuePageSize), Inline: true},
			{Name: "Playlist limit", Value: fmt.Sprintf("%d", gs.PlaylistLimit), Inline: true},
			{Name: "Announce next song", Value: onOff(gs.AutoAnnounceNextSong), Inline: true},
			{Name: "Ephemeral /play replies", Value: onOff(gs.QueueAddResponseEphemeral), Inline: true},
			{Name: "Turn down when speaking", Value: fmt.Sprintf("%s (to %d%%)", onOff(gs.TurnDownWhenSpeaking), gs.TurnDownTarget), Inline: true},
		},
	}
	discord.RespondEmbedEphemeral(s, i, embed)
	return nil
}

func (c *ConfigCommands) handleVolume(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	level := int(commandOptions(i)["level"].IntValue())
	if err := c.update(i.GuildID, func(gs *settings.GuildSettings) {
		gs.DefaultVolume = level
	}); err != nil {
		return err
	}
	discord.RespondEphemeral(s, i, fmt.Sprintf("Default volume set to **%d%%**.", level))
	return nil
}

func (c *ConfigCommands) handleAutoDisconnect(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	opts := commandOptions(i)
	enabled := opts["enabled"].BoolValue()
	delay := time.Duration(-1)
	if o, ok := opts["delay"]; ok {
		d, err := parsePosition(o.StringValue())
		if err != nil {
			discord.RespondEphemeral(s, i, "I can't read that delay. Try `30`, `1:00`, or `90s`.")
			return nil
		}
		delay = d
	}
	if err := c.update(i.GuildID, func(gs *settings.GuildSettings) {
		gs.AutoDisconnect = enabled
		if delay >= 0 {
			gs.AutoDisconnectDelay = delay
		}
	}); err != nil {
		return err
	}
	discord.RespondEphemeral(s, i, fmt.Sprintf("Auto-disconnect is now **%s**.", onOff(enabled)))
	return nil
}

func (c *ConfigCommands) handleLeaveWhenAlone(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	enabled := commandOptions(i)["enabled"].BoolValue()
	if err := c.update(i.GuildID, func(gs *settings.GuildSettings) {
		gs.LeaveIfNoListeners = enabled
	}); err != nil {
		return err
	}
	discord.RespondEphemeral(s, i, fmt.Sprintf("Leaving when the channel empties is now **%s**.", onOff(enabled)))
	return nil
}

func (c *ConfigCommands) handlePageSize(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	size := int(commandOptions(i)["size"].IntValue())
	if err := c.update(i.GuildID, func(gs *settings.GuildSettings) {
		gs.QueuePageSize = size
	}); err != nil {
		return err
	}
	discord.RespondEphemeral(s, i, fmt.Sprintf("Queue pages now show **%d** tracks.", size))
	return nil
}

func (c *ConfigCommands) handlePlaylistLimit(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	limit := int(commandOptions(i)["limit"].IntValue())
	if err := c.update(i.GuildID, func(gs *settings.GuildSettings) {
		gs.PlaylistLimit = limit
	}); err != nil {
		return err
	}
	discord.RespondEphemeral(s, i, fmt.Sprintf("Playlists may now add up to **%d** tracks.", limit))
	return nil
}

func (c *ConfigCommands) handleAnnounce(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	enabled := commandOptions(i)["enabled"].BoolValue()
	if err := c.update(i.GuildID, func(gs *settings.GuildSettings) {
		gs.AutoAnnounceNextSong = enabled
	}); err != nil {
		return err
	}
	discord.RespondEphemeral(s, i, fmt.Sprintf("Track announcements are now **%s**.", onOff(enabled)))
	return nil
}

func (c *ConfigCommands) handleEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	enabled := commandOptions(i)["enabled"].BoolValue()
	if err := c.update(i.GuildID, func(gs *settings.GuildSettings) {
		gs.QueueAddResponseEphemeral = enabled
	}); err != nil {
		return err
	}
	discord.RespondEphemeral(s, i, fmt.Sprintf("Ephemeral `/play` replies are now **%s**.", onOff(enabled)))
	return nil
}

func (c *ConfigCommands) handleTurnDown(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	opts := commandOptions(i)
	enabled := opts["enabled"].BoolValue()
	target := -1
	if o, ok := opts["target"]; ok {
		target = int(o.IntValue())
	}
	if err := c.update(i.GuildID, func(gs *settings.GuildSettings) {
		gs.TurnDownWhenSpeaking = enabled
		if target >= 0 {
			gs.TurnDownTarget = target
		}
	}); err != nil {
		return err
	}
	discord.RespondEphemeral(s, i, fmt.Sprintf("Ducking while people speak is now **%s**.", onOff(enabled)))
	return nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
