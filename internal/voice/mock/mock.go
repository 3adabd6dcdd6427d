// Package mock provides in-memory fakes for the voice transport, used by
// player tests.
package mock

import (
	"context"
	"sync"

	"github.com/quaverbot/quaver/internal/voice"
)

// Compile-time interface assertions.
var (
	_ voice.Connector = (*Connector)(nil)
	_ voice.Conn      = (*Conn)(nil)
)

// Connector records Join calls and hands out mock connections. JoinErr, when
// set, makes Join fail.
type Connector struct {
	mu      sync.Mutex
	conns   []*Conn
	JoinErr error
}

// NewConnector returns an empty mock connector.
func NewConnector() *Connector {
	return &Connector{}
}

// Join returns a fresh mock connection unless JoinErr is set.
func (c *Connector) Join(_ context.Context, guildID, channelID string) (voice.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.JoinErr != nil {
		return nil, c.JoinErr
	}
	conn := &Conn{
		guildID:   guildID,
		channelID: channelID,
		send:      make(chan []byte, 256),
	}
	c.conns = append(c.conns, conn)
	return conn, nil
}

// Conns returns all connections handed out so far.
func (c *Connector) Conns() []*Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Conn, len(c.conns))
	copy(out, c.conns)
	return out
}

// JoinCount reports how many connections were handed out.
func (c *Connector) JoinCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}

// Conn is a mock voice connection that swallows frames into a buffered
// channel and records state changes.
type Conn struct {
	guildID   string
	channelID string
	send      chan []byte

	mu           sync.Mutex
	speaking     bool
	disconnected bool
}

func (c *Conn) ChannelID() string {
	return c.channelID
}

func (c *Conn) GuildID() string {
	return c.guildID
}

func (c *Conn) OpusSend() chan<- []byte {
	return c.send
}

// Drain consumes and discards buffered frames so senders never block.
// Call it in a goroutine for tests that stream real data.
func (c *Conn) Drain() {
	for range c.send {
	}
}

func (c *Conn) Speaking(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speaking = on
	return nil
}

func (c *Conn) IsSpeaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

func (c *Conn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	return nil
}

func (c *Conn) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}
