package commands

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/quaverbot/quaver/internal/discord"
	"github.com/quaverbot/quaver/internal/player"
)

// QueueCommands handles queue inspection and editing: queue, clear, remove,
// move, and shuffle.
type QueueCommands struct {
	deps Deps
}

// NewQueueCommands creates a QueueCommands handler.
func NewQueueCommands(deps Deps) *QueueCommands {
	return &QueueCommands{deps: deps}
}

// Register registers the queue commands with the router.
func (c *QueueCommands) Register(router *discord.CommandRouter) {
	one := float64(1)

	router.RegisterCommand("queue", guildCommand("queue", "Show the queue",
		&discordgo.ApplicationCommandOption{
			Name:        "page",
			Description: "Page to show (default 1)",
			Type:        discordgo.ApplicationCommandOptionInteger,
			MinValue:    &one,
		}), instrument(c.deps.Metrics, "queue", c.handleQueue))

	router.RegisterCommand("clear", guildCommand("clear", "Clear the queue, keeping the current track"),
		instrument(c.deps.Metrics, "clear", c.handleClear))

	router.RegisterCommand("remove", guildCommand("remove", "Remove upcoming tracks from the queue",
		&discordgo.ApplicationCommandOption{
			Name:        "position",
			Description: "Queue position of the first track to remove",
			Type:        discordgo.ApplicationCommandOptionInteger,
			Required:    true,
			MinValue:    &one,
		},
		&discordgo.ApplicationCommandOption{
			Name:        "count",
			Description: "How many tracks to remove (default 1)",
			Type:        discordgo.ApplicationCommandOptionInteger,
			MinValue:    &one,
		}), instrument(c.deps.Metrics, "remove", c.handleRemove))

	router.RegisterCommand("move", guildCommand("move", "Move a track to another queue position",
		&discordgo.ApplicationCommandOption{
			Name:        "from",
			Description: "Queue position of the track to move",
			Type:        discordgo.ApplicationCommandOptionInteger,
			Required:    true,
			MinValue:    &one,
		},
		&discordgo.ApplicationCommandOption{
			Name:        "to",
			Description: "Queue position to move it to",
			Type:        discordgo.ApplicationCommandOptionInteger,
			Required:    true,
			MinValue:    &one,
		}), instrument(c.deps.Metrics, "move", c.handleMove))

	router.RegisterCommand("shuffle", guildCommand("shuffle", "Shuffle the upcoming tracks"),
		instrument(c.deps.Metrics, "shuffle", c.handleShuffle))
}

func (c *QueueCommands) handleQueue(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	p, ok := c.deps.Players.GetIfExists(i.GuildID)
	if !ok {
		discord.RespondEphemeral(s, i, "The queue is empty.")
		return nil
	}

	cfg, err := c.deps.Settings.Get(context.Background(), i.GuildID)
	if err != nil {
		return fmt.Errorf("commands: load settings: %w", err)
	}

	page := 1
	if o, ok := commandOptions(i)["page"]; ok {
		page = int(o.IntValue())
	}

	var np *player.NowPlaying
	if now, ok := p.Now(); ok {
		np = &now
	}
	upcoming := p.Upcoming()
	if np == nil && len(upcoming) == 0 {
		discord.RespondEphemeral(s, i, "The queue is empty.")
		return nil
	}

	discord.RespondEmbed(s, i, queueEmbed(np, upcoming, page, cfg.QueuePageSize))
	return nil
}

func (c *QueueCommands) handleClear(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	p, err := connectedPlayer(c.deps, i.GuildID)
	if err != nil {
		return err
	}
	if err := requireSameChannel(s, i, p); err != nil {
		return err
	}
	if err := p.Clear(); err != nil {
		return err
	}
	discord.Respond(s, i, "Cleared the queue.")
	return nil
}

func (c *QueueCommands) handleRemove(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	p, err := connectedPlayer(c.deps, i.GuildID)
	if err != nil {
		return err
	}
	if err := requireSameChannel(s, i, p); err != nil {
		return err
	}

	opts := commandOptions(i)
	pos := int(opts["position"].IntValue())
	count := 1
	if o, ok := opts["count"]; ok {
		count = int(o.IntValue())
	}

	removed, err := p.Remove(pos, count)
	if err != nil {
		return err
	}
	if len(removed) == 1 {
		discord.Respond(s, i, fmt.Sprintf("Removed **%s**.", removed[0].Title))
	} else {
		discord.Respond(s, i, fmt.Sprintf("Removed **%d** tracks.", len(removed)))
	}
	return nil
}

func (c *QueueCommands) handleMove(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	p, err := connectedPlayer(c.deps, i.GuildID)
	if err != nil {
		return err
	}
	if err := requireSameChannel(s, i, p); err != nil {
		return err
	}

	opts := commandOptions(i)
	from := int(opts["from"].IntValue())
	to := int(opts["to"].IntValue())

	moved, err := p.Move(from, to)
	if err != nil {
		return err
	}
	discord.Respond(s, i, fmt.Sprintf("Moved **%s** to position %d.", moved.Title, to))
	return nil
}

func (c *QueueCommands) handleShuffle(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	p, err := connectedPlayer(c.deps, i.GuildID)
	if err != nil {
		return err
	}
	if err := requireSameChannel(s, i, p); err != nil {
		return err
	}
	if err := p.Shuffle(); err != nil {
		return err
	}
	discord.Respond(s, i, "Shuffled the queue.")
	return nil
}
