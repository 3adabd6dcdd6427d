package commands

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/quaverbot/quaver/internal/discord"
)

// CacheCommands handles /cache, which reports audio cache usage.
type CacheCommands struct {
	deps Deps
}

// NewCacheCommands creates a CacheCommands handler.
func NewCacheCommands(deps Deps) *CacheCommands {
	return &CacheCommands{deps: deps}
}

// Register registers /cache with the router.
func (c *CacheCommands) Register(router *discord.CommandRouter) {
	def := guildCommand("cache", "Show audio cache usage")
	router.RegisterCommand("cache", def, instrument(c.deps.Metrics, "cache", c.handleCache))
}

func (c *CacheCommands) handleCache(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	st := c.deps.Cache.Stats()
	usage := 0.0
	if st.Budget > 0 {
		usage = float64(st.Bytes) / float64(st.Budget) * 100
	}
	discord.RespondEmbed(s, i, &discordgo.MessageEmbed{
		Title: "Audio cache",
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Cached tracks", Value: fmt.Sprintf("%d", st.Files), Inline: true},
			{Name: "Used", Value: humanBytes(st.Bytes), Inline: true},
			{Name: "Budget", Value: fmt.Sprintf("%s (%.1f%% used)", humanBytes(st.Budget), usage), Inline: true},
		},
	})
	return nil
}
