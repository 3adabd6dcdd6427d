package commands

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/quaverbot/quaver/internal/discord"
	"github.com/quaverbot/quaver/internal/player"
)

// PlaybackCommands handles the transport controls: pause, resume, skip,
// back, replay, seek, fseek, stop, disconnect, volume, loop, loop-queue, and
// now-playing.
type PlaybackCommands struct {
	deps Deps
}

// NewPlaybackCommands creates a PlaybackCommands handler.
func NewPlaybackCommands(deps Deps) *PlaybackCommands {
	return &PlaybackCommands{deps: deps}
}

// Register registers the transport commands with the router.
func (c *PlaybackCommands) Register(router *discord.CommandRouter) {
	for _, cmd := range []struct {
		def     *discordgo.ApplicationCommand
		handler handlerFunc
	}{
		{c.pauseDefinition(), c.handlePause},
		{c.resumeDefinition(), c.handleResume},
		{c.skipDefinition(), c.handleSkip},
		{c.backDefinition(), c.handleBack},
		{c.replayDefinition(), c.handleReplay},
		{c.seekDefinition(), c.handleSeek},
		{c.fseekDefinition(), c.handleFseek},
		{c.stopDefinition(), c.handleStop},
		{c.disconnectDefinition(), c.handleDisconnect},
		{c.volumeDefinition(), c.handleVolume},
		{c.loopDefinition(), c.handleLoop},
		{c.loopQueueDefinition(), c.handleLoopQueue},
		{c.nowPlayingDefinition(), c.handleNowPlaying},
	} {
		router.RegisterCommand(cmd.def.Name, cmd.def, instrument(c.deps.Metrics, cmd.def.Name, cmd.handler))
	}
}

func guildCommand(name, description string, options ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommand {
	guildOnly := false
	return &discordgo.ApplicationCommand{
		Name:         name,
		Description:  description,
		DMPermission: &guildOnly,
		Options:      options,
	}
}

func (c *PlaybackCommands) pauseDefinition() *discordgo.ApplicationCommand {
	return guildCommand("pause", "Pause playback, keeping the position")
}

func (c *PlaybackCommands) resumeDefinition() *discordgo.ApplicationCommand {
	return guildCommand("resume", "Resume paused playback")
}

func (c *PlaybackCommands) skipDefinition() *discordgo.ApplicationCommand {
	one := float64(1)
	return guildCommand("skip", "Skip the current track",
		&discordgo.ApplicationCommandOption{
			Name:        "amount",
			Description: "How many tracks to skip (default 1)",
			Type:        discordgo.ApplicationCommandOptionInteger,
			MinValue:    &one,
		})
}

func (c *PlaybackCommands) backDefinition() *discordgo.ApplicationCommand {
	return guildCommand("back", "Go back to the previous track")
}

func (c *PlaybackCommands) replayDefinition() *discordgo.ApplicationCommand {
	return guildCommand("replay", "Restart the current track from the beginning")
}

func (c *PlaybackCommands) seekDefinition() *discordgo.ApplicationCommand {
	return guildCommand("seek", "Jump to a position in the current track",
		&discordgo.ApplicationCommandOption{
			Name:        "position",
			Description: "Position, e.g. 1:30, 90, or 1m30s",
			Type:        discordgo.ApplicationCommandOptionString,
			Required:    true,
		})
}

func (c *PlaybackCommands) fseekDefinition() *discordgo.ApplicationCommand {
	return guildCommand("fseek", "Skip forward within the current track",
		&discordgo.ApplicationCommandOption{
			Name:        "amount",
			Description: "How far forward, e.g. 30, 0:30, or 30s",
			Type:        discordgo.ApplicationCommandOptionString,
			Required:    true,
		})
}

func (c *PlaybackCommands) stopDefinition() *discordgo.ApplicationCommand {
	return guildCommand("stop", "Stop playback, clear the queue, and leave the voice channel")
}

func (c *PlaybackCommands) disconnectDefinition() *discordgo.ApplicationCommand {
	return guildCommand("disconnect", "Leave the voice channel, keeping the queue and position")
}

func (c *PlaybackCommands) volumeDefinition() *discordgo.ApplicationCommand {
	min := float64(0)
	return guildCommand("volume", "Show or set the playback volume",
		&discordgo.ApplicationCommandOption{
			Name:        "level",
			Description: "New volume, 0-100",
			Type:        discordgo.ApplicationCommandOptionInteger,
			MinValue:    &min,
			MaxValue:    100,
		})
}

func (c *PlaybackCommands) loopDefinition() *discordgo.ApplicationCommand {
	return guildCommand("loop", "Loop the current track",
		&discordgo.ApplicationCommandOption{
			Name:        "enabled",
			Description: "Turn looping on or off",
			Type:        discordgo.ApplicationCommandOptionBoolean,
			Required:    true,
		})
}

func (c *PlaybackCommands) loopQueueDefinition() *discordgo.ApplicationCommand {
	return guildCommand("loop-queue", "Loop the whole queue",
		&discordgo.ApplicationCommandOption{
			Name:        "enabled",
			Description: "Turn queue looping on or off",
			Type:        discordgo.ApplicationCommandOptionBoolean,
			Required:    true,
		})
}

func (c *PlaybackCommands) nowPlayingDefinition() *discordgo.ApplicationCommand {
	return guildCommand("now-playing", "Show the current track and position")
}

// control fetches the guild's connected player and checks the caller shares
// its voice channel. Every mutating transport command goes through it.
func (c *PlaybackCommands) control(s *discordgo.Session, i *discordgo.InteractionCreate) (*player.Player, error) {
	p, err := connectedPlayer(c.deps, i.GuildID)
	if err != nil {
		return nil, err
	}
	if err := requireSameChannel(s, i, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (c *PlaybackCommands) handlePause(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	p, err := c.control(s, i)
	if err != nil {
		return err
	}
	if err := p.Pause(); err != nil {
		return err
	}
	discord.Respond(s, i, "Paused.")
	return nil
}

func (c *PlaybackCommands) handleResume(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	p, err := c.control(s, i)
	if err != nil {
		return err
	}
	if err := p.Play(); err != nil {
		return err
	}
	discord.Respond(s, i, "Resumed.")
	return nil
}

func (c *PlaybackCommands) handleSkip(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	p, err := c.control(s, i)
	if err != nil {
		return err
	}
	amount := 1
	if o, ok := commandOptions(i)["amount"]; ok {
		amount = int(o.IntValue())
	}
	skipped, err := p.Skip(amount)
	if err != nil {
		return err
	}
	if len(skipped) == 1 {
		discord.Respond(s, i, fmt.Sprintf("Skipped **%s**.", skipped[0].Title))
	} else {
		discord.Respond(s, i, fmt.Sprintf("Skipped **%d** tracks.", len(skipped)))
	}
	return nil
}

func (c *PlaybackCommands) handleBack(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	p, err := c.control(s, i)
	if err != nil {
		return err
	}
	if err := p.Back(); err != nil {
		return err
	}
	if cur, ok := p.Current(); ok {
		discord.Respond(s, i, fmt.Sprintf("Went back to **%s**.", cur.Title))
	} else {
		discord.Respond(s, i, "Went back one track.")
	}
	return nil
}

func (c *PlaybackCommands) handleReplay(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	p, err := c.control(s, i)
	if err != nil {
		return err
	}
	if err := p.Seek(0); err != nil {
		return err
	}
	discord.Respond(s, i, "Replaying from the start.")
	return nil
}

func (c *PlaybackCommands) handleSeek(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	p, err := c.control(s, i)
	if err != nil {
		return err
	}
	pos, err := parsePosition(commandOptions(i)["position"].StringValue())
	if err != nil {
		discord.RespondEphemeral(s, i, "I can't read that position. Try `1:30`, `90`, or `1m30s`.")
		return nil
	}
	if err := p.Seek(pos); err != nil {
		return err
	}
	discord.Respond(s, i, fmt.Sprintf("Jumped to `%s`.", formatDuration(pos)))
	return nil
}

func (c *PlaybackCommands) handleFseek(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	p, err := c.control(s, i)
	if err != nil {
		return err
	}
	delta, err := parsePosition(commandOptions(i)["amount"].StringValue())
	if err != nil {
		discord.RespondEphemeral(s, i, "I can't read that amount. Try `30`, `0:30`, or `30s`.")
		return nil
	}
	if err := p.SeekForward(delta); err != nil {
		return err
	}
	discord.Respond(s, i, fmt.Sprintf("Skipped forward `%s`.", formatDuration(delta)))
	return nil
}

func (c *PlaybackCommands) handleStop(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	p, err := c.control(s, i)
	if err != nil {
		return err
	}
	if err := p.Stop(); err != nil {
		return err
	}
	discord.Respond(s, i, "Stopped, cleared the queue, and left the voice channel.")
	return nil
}

func (c *PlaybackCommands) handleDisconnect(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	p, err := c.control(s, i)
	if err != nil {
		return err
	}
	if err := p.Disconnect(); err != nil {
		return err
	}
	discord.Respond(s, i, "Disconnected. `/play` will pick up where we left off.")
	return nil
}

func (c *PlaybackCommands) handleVolume(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	level, ok := commandOptions(i)["level"]
	if !ok {
		// Reading the volume works from anywhere in the guild.
		p, err := connectedPlayer(c.deps, i.GuildID)
		if err != nil {
			return err
		}
		discord.RespondEphemeral(s, i, fmt.Sprintf("Volume is at **%d%%**.", p.Volume()))
		return nil
	}

	p, err := c.control(s, i)
	if err != nil {
		return err
	}
	applied, err := p.SetVolume(int(level.IntValue()))
	if err != nil {
		return err
	}
	discord.Respond(s, i, fmt.Sprintf("Volume set to **%d%%**.", applied))
	return nil
}

func (c *PlaybackCommands) handleLoop(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	p, err := c.control(s, i)
	if err != nil {
		return err
	}
	on := commandOptions(i)["enabled"].BoolValue()
	if err := p.SetLoopCurrent(on); err != nil {
		return err
	}
	if on {
		discord.Respond(s, i, "Looping the current track.")
	} else {
		discord.Respond(s, i, "No longer looping the current track.")
	}
	return nil
}

func (c *PlaybackCommands) handleLoopQueue(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	p, err := c.control(s, i)
	if err != nil {
		return err
	}
	on := commandOptions(i)["enabled"].BoolValue()
	if err := p.SetLoopQueue(on); err != nil {
		return err
	}
	if on {
		discord.Respond(s, i, "Looping the queue.")
	} else {
		discord.Respond(s, i, "No longer looping the queue.")
	}
	return nil
}

func (c *PlaybackCommands) handleNowPlaying(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	p, err := connectedPlayer(c.deps, i.GuildID)
	if err != nil {
		return err
	}
	np, ok := p.Now()
	if !ok {
		return player.ErrNothingPlaying
	}
	discord.RespondEmbed(s, i, nowPlayingEmbed(np))
	return nil
}
