// Package voice abstracts the voice transport the player streams into. The
// player owns its connection exclusively: it joins, moves, sends Opus frames,
// and disconnects through this interface, never touching the gateway session
// directly.
package voice

import "context"

// Connector joins guild voice channels.
type Connector interface {
	// Join connects to a voice channel and returns the live connection.
	// ctx governs the setup phase only; once returned the connection lives
	// until Disconnect.
	Join(ctx context.Context, guildID, channelID string) (Conn, error)
}

// Conn is one live voice-channel connection.
type Conn interface {
	// ChannelID identifies the channel this connection is on.
	ChannelID() string

	// OpusSend is the frame sink. The transport paces reads at the Opus
	// frame rate; senders block until the next frame slot.
	OpusSend() chan<- []byte

	// Speaking toggles the speaking indicator. Must be set true before
	// sending frames and false when playback stops.
	Speaking(on bool) error

	// Disconnect leaves the channel. Safe to call more than once.
	Disconnect() error
}
