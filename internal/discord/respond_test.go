package discord_test

import (
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/quaverbot/quaver/internal/discord"
	"github.com/quaverbot/quaver/internal/discord/mock"
)

func newInteraction() *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{ID: "i1"}}
}

func TestRespondVariants(t *testing.T) {
	t.Parallel()

	t.Run("public text", func(t *testing.T) {
		t.Parallel()
		m := &mock.InteractionResponder{}
		discord.Respond(m, newInteraction(), "hello")

		resp := m.LastResponse()
		if resp == nil {
			t.Fatal("no response recorded")
		}
		if resp.Type != discordgo.InteractionResponseChannelMessageWithSource {
			t.Errorf("type = %v", resp.Type)
		}
		if resp.Data.Content != "hello" {
			t.Errorf("content = %q", resp.Data.Content)
		}
		if resp.Data.Flags&discordgo.MessageFlagsEphemeral != 0 {
			t.Error("public response carries ephemeral flag")
		}
	})

	t.Run("ephemeral text", func(t *testing.T) {
		t.Parallel()
		m := &mock.InteractionResponder{}
		discord.RespondEphemeral(m, newInteraction(), "secret")

		resp := m.LastResponse()
		if resp == nil {
			t.Fatal("no response recorded")
		}
		if resp.Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
			t.Error("ephemeral flag missing")
		}
	})

	t.Run("embed", func(t *testing.T) {
		t.Parallel()
		m := &mock.InteractionResponder{}
		discord.RespondEmbed(m, newInteraction(), &discordgo.MessageEmbed{Title: "Now Playing"})

		resp := m.LastResponse()
		if resp == nil {
			t.Fatal("no response recorded")
		}
		if len(resp.Data.Embeds) != 1 || resp.Data.Embeds[0].Title != "Now Playing" {
			t.Errorf("embeds = %+v", resp.Data.Embeds)
		}
	})

	t.Run("send failure is swallowed", func(t *testing.T) {
		t.Parallel()
		m := &mock.InteractionResponder{Err: errors.New("interaction expired")}
		discord.Respond(m, newInteraction(), "late") // must not panic
	})
}

func TestDeferAndFollowUp(t *testing.T) {
	t.Parallel()
	m := &mock.InteractionResponder{}
	i := newInteraction()

	discord.DeferReply(m, i, true)
	resp := m.LastResponse()
	if resp == nil || resp.Type != discordgo.InteractionResponseDeferredChannelMessageWithSource {
		t.Fatalf("defer response = %+v", resp)
	}
	if resp.Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Error("deferred reply missing ephemeral flag")
	}

	discord.FollowUp(m, i, "done", true)
	fu := m.LastFollowUp()
	if fu == nil || fu.Content != "done" {
		t.Fatalf("follow-up = %+v", fu)
	}
	if fu.Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Error("follow-up missing ephemeral flag")
	}

	discord.FollowUpEmbed(m, i, &discordgo.MessageEmbed{Title: "Queue"}, false)
	fu = m.LastFollowUp()
	if fu == nil || len(fu.Embeds) != 1 || fu.Embeds[0].Title != "Queue" {
		t.Fatalf("embed follow-up = %+v", fu)
	}
}
