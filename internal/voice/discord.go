package voice

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Compile-time interface assertions.
var (
	_ Connector = (*DiscordConnector)(nil)
	_ Conn      = (*discordConn)(nil)
)

// DiscordConnector implements [Connector] on a discordgo gateway session.
// The session is owned by the bot layer; the connector only borrows it to
// establish voice connections.
type DiscordConnector struct {
	session *discordgo.Session
}

// NewDiscordConnector wraps an active gateway session.
func NewDiscordConnector(session *discordgo.Session) *DiscordConnector {
	return &DiscordConnector{session: session}
}

// Join connects to the voice channel. mute=false (we send audio), deaf=true
// (we never consume incoming audio). ctx bounds the handshake; discordgo's
// join is synchronous, so it runs in a goroutine we can abandon on timeout.
func (c *DiscordConnector) Join(ctx context.Context, guildID, channelID string) (Conn, error) {
	type result struct {
		vc  *discordgo.VoiceConnection
		err error
	}
	ch := make(chan result, 1)
	go func() {
		vc, err := c.session.ChannelVoiceJoin(guildID, channelID, false, true)
		ch <- result{vc, err}
	}()

	select {
	case <-ctx.Done():
		// The late joiner, if it succeeds, must not leak the connection.
		go func() {
			if r := <-ch; r.err == nil {
				_ = r.vc.Disconnect()
			}
		}()
		return nil, fmt.Errorf("voice: join channel %q: %w", channelID, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("voice: join channel %q: %w", channelID, r.err)
		}
		return &discordConn{vc: r.vc, channelID: channelID}, nil
	}
}

// discordConn adapts *discordgo.VoiceConnection to [Conn].
type discordConn struct {
	vc        *discordgo.VoiceConnection
	channelID string
	closeOnce sync.Once
}

func (c *discordConn) ChannelID() string {
	return c.channelID
}

func (c *discordConn) OpusSend() chan<- []byte {
	return c.vc.OpusSend
}

func (c *discordConn) Speaking(on bool) error {
	if err := c.vc.Speaking(on); err != nil {
		return fmt.Errorf("voice: speaking notification: %w", err)
	}
	return nil
}

func (c *discordConn) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.vc.Disconnect()
	})
	return err
}
