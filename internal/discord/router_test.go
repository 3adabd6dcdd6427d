package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
)

func commandInteraction(name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: discordgo.InteractionApplicationCommand,
			Data: discordgo.ApplicationCommandInteractionData{
				Name:    name,
				Options: opts,
			},
		},
	}
}

func TestRouterDispatch(t *testing.T) {
	t.Parallel()
	r := NewCommandRouter()

	var called string
	r.RegisterCommand("play", &discordgo.ApplicationCommand{Name: "play"},
		func(s *discordgo.Session, i *discordgo.InteractionCreate) { called = "play" })
	r.RegisterHandler("config/volume",
		func(s *discordgo.Session, i *discordgo.InteractionCreate) { called = "config/volume" })

	r.Handle(nil, commandInteraction("play"))
	if called != "play" {
		t.Fatalf("called = %q, want play", called)
	}

	r.Handle(nil, commandInteraction("config", &discordgo.ApplicationCommandInteractionDataOption{
		Name: "volume",
		Type: discordgo.ApplicationCommandOptionSubCommand,
	}))
	if called != "config/volume" {
		t.Fatalf("called = %q, want config/volume", called)
	}
}

func TestRouterAutocompleteDispatch(t *testing.T) {
	t.Parallel()
	r := NewCommandRouter()

	called := false
	r.RegisterAutocomplete("play",
		func(s *discordgo.Session, i *discordgo.InteractionCreate) { called = true })

	i := commandInteraction("play")
	i.Interaction.Type = discordgo.InteractionApplicationCommandAutocomplete
	r.Handle(nil, i)
	if !called {
		t.Fatal("autocomplete handler not invoked")
	}
}

func TestInteractionKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data discordgo.ApplicationCommandInteractionData
		want string
	}{
		{
			name: "top-level command",
			data: discordgo.ApplicationCommandInteractionData{Name: "skip"},
			want: "skip",
		},
		{
			name: "subcommand",
			data: discordgo.ApplicationCommandInteractionData{
				Name: "config",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Name: "show", Type: discordgo.ApplicationCommandOptionSubCommand},
				},
			},
			want: "config/show",
		},
		{
			name: "plain option is not a subcommand",
			data: discordgo.ApplicationCommandInteractionData{
				Name: "volume",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Name: "level", Type: discordgo.ApplicationCommandOptionInteger},
				},
			},
			want: "volume",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := interactionKey(tc.data); got != tc.want {
				t.Errorf("interactionKey = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestApplicationCommandsDeduplicates(t *testing.T) {
	t.Parallel()
	r := NewCommandRouter()

	cmd := &discordgo.ApplicationCommand{Name: "config"}
	r.RegisterCommand("config", cmd, func(*discordgo.Session, *discordgo.InteractionCreate) {})
	r.RegisterCommand("config/show", cmd, func(*discordgo.Session, *discordgo.InteractionCreate) {})
	r.RegisterCommand("config/volume", cmd, func(*discordgo.Session, *discordgo.InteractionCreate) {})
	r.RegisterCommand("play", &discordgo.ApplicationCommand{Name: "play"},
		func(*discordgo.Session, *discordgo.InteractionCreate) {})

	cmds := r.ApplicationCommands()
	if len(cmds) != 2 {
		t.Fatalf("commands = %d, want 2", len(cmds))
	}
	names := map[string]bool{}
	for _, c := range cmds {
		names[c.Name] = true
	}
	if !names["config"] || !names["play"] {
		t.Errorf("names = %v", names)
	}
}
