package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/quaverbot/quaver/internal/player"
	"github.com/quaverbot/quaver/internal/track"
)

const embedColor = 0x5865f2

// nowPlayingEmbed renders the current track with a progress bar.
func nowPlayingEmbed(np player.NowPlaying) *discordgo.MessageEmbed {
	t := np.Track

	var desc string
	if t.Live {
		desc = "🔴 LIVE"
	} else {
		desc = fmt.Sprintf("%s\n`%s / %s`",
			progressBar(np.Position, t.Duration, 20),
			formatDuration(np.Position), formatDuration(t.Duration))
	}

	embed := &discordgo.MessageEmbed{
		Title:       t.Title,
		URL:         t.URL,
		Description: desc,
		Color:       embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Artist", Value: orDash(t.Artist), Inline: true},
			{Name: "Requested by", Value: mention(np.Track.RequestedBy), Inline: true},
			{Name: "Volume", Value: fmt.Sprintf("%d%%", np.Volume), Inline: true},
		},
	}
	if np.Status == player.Paused {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "Paused"}
	}
	switch {
	case np.LoopOne:
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Loop", Value: "current track", Inline: true})
	case np.LoopAll:
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Loop", Value: "queue", Inline: true})
	}
	if t.ThumbnailURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: t.ThumbnailURL}
	}
	return embed
}

// queueEmbed renders one page of the queue. Pages are 1-based and clamped to
// the available range.
func queueEmbed(np *player.NowPlaying, upcoming []track.Queued, page, pageSize int) *discordgo.MessageEmbed {
	pages := (len(upcoming) + pageSize - 1) / pageSize
	if pages < 1 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}

	var b strings.Builder
	if np != nil {
		fmt.Fprintf(&b, "**Now playing:** [%s](%s) `%s`\n\n", np.Track.Title, np.Track.URL, trackLength(np.Track.Track))
	}

	start := (page - 1) * pageSize
	end := min(start+pageSize, len(upcoming))
	if start >= len(upcoming) {
		b.WriteString("*Nothing queued.*")
	}
	for n, q := range upcoming[start:end] {
		fmt.Fprintf(&b, "`%d.` [%s](%s) `%s`\n", start+n+1, q.Title, q.URL, trackLength(q.Track))
	}

	var total time.Duration
	for _, q := range upcoming {
		if !q.Live {
			total += q.Duration
		}
	}

	return &discordgo.MessageEmbed{
		Title:       "Queue",
		Description: b.String(),
		Color:       embedColor,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Page %d/%d • %d queued • %s total", page, pages, len(upcoming), formatDuration(total)),
		},
	}
}

// progressBar renders a fixed-width bar with a knob at the played ratio.
func progressBar(pos, total time.Duration, width int) string {
	knob := 0
	if total > 0 {
		knob = int(float64(pos) / float64(total) * float64(width))
		if knob >= width {
			knob = width - 1
		}
		if knob < 0 {
			knob = 0
		}
	}
	var b strings.Builder
	for n := 0; n < width; n++ {
		if n == knob {
			b.WriteString("🔘")
		} else {
			b.WriteString("▬")
		}
	}
	return b.String()
}

func trackLength(t track.Track) string {
	if t.Live {
		return "LIVE"
	}
	return formatDuration(t.Duration)
}

func mention(userID string) string {
	if userID == "" {
		return "unknown"
	}
	return "<@" + userID + ">"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
