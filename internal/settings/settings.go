// Package settings stores per-guild configuration: default volume, queue
// presentation, and auto-disconnect behaviour. Reads are defaults-on-miss so
// a guild never has to be provisioned before use.
package settings

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// GuildSettings is the per-guild configuration record.
type GuildSettings struct {
	GuildID string

	// DefaultVolume is the 0–100 volume a player starts at when it connects.
	DefaultVolume int

	// AutoDisconnect leaves the voice channel after the queue drains.
	AutoDisconnect bool

	// AutoDisconnectDelay is how long an idle player waits before leaving.
	AutoDisconnectDelay time.Duration

	// LeaveIfNoListeners leaves the voice channel when the last human does.
	LeaveIfNoListeners bool

	// QueuePageSize is the number of tracks per /queue embed page.
	QueuePageSize int

	// QueueAddResponseEphemeral makes /play confirmations visible only to
	// the requester.
	QueueAddResponseEphemeral bool

	// PlaylistLimit caps how many tracks one playlist expansion may add.
	PlaylistLimit int

	// TurnDownWhenSpeaking ducks playback while humans speak, to
	// TurnDownTarget percent.
	TurnDownWhenSpeaking bool
	TurnDownTarget       int

	// AutoAnnounceNextSong posts the new current track to the originating
	// text channel whenever the queue advances on its own.
	AutoAnnounceNextSong bool
}

// Defaults returns the settings a guild has before anyone changes anything.
func Defaults(guildID string) *GuildSettings {
	return &GuildSettings{
		GuildID:             guildID,
		DefaultVolume:       100,
		AutoDisconnect:      true,
		AutoDisconnectDelay: 30 * time.Second,
		LeaveIfNoListeners:  true,
		QueuePageSize:       10,
		PlaylistLimit:       50,
		TurnDownTarget:      20,
	}
}

// Validate reports every invalid field at once.
func (s *GuildSettings) Validate() error {
	var errs []error
	if s.GuildID == "" {
		errs = append(errs, errors.New("guild id is required"))
	}
	if s.DefaultVolume < 0 || s.DefaultVolume > 100 {
		errs = append(errs, fmt.Errorf("default volume %d out of range 0-100", s.DefaultVolume))
	}
	if s.AutoDisconnectDelay < 0 {
		errs = append(errs, fmt.Errorf("auto-disconnect delay %v is negative", s.AutoDisconnectDelay))
	}
	if s.QueuePageSize < 1 || s.QueuePageSize > 30 {
		errs = append(errs, fmt.Errorf("queue page size %d out of range 1-30", s.QueuePageSize))
	}
	if s.PlaylistLimit < 1 {
		errs = append(errs, fmt.Errorf("playlist limit %d must be positive", s.PlaylistLimit))
	}
	if s.TurnDownTarget < 0 || s.TurnDownTarget > 100 {
		errs = append(errs, fmt.Errorf("turn-down target %d out of range 0-100", s.TurnDownTarget))
	}
	if len(errs) > 0 {
		return fmt.Errorf("settings: invalid guild settings: %w", errors.Join(errs...))
	}
	return nil
}

// Store provides access to per-guild settings.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the settings for a guild. A guild with no stored record
	// gets [Defaults]; Get never returns a nil record alongside a nil error.
	Get(ctx context.Context, guildID string) (*GuildSettings, error)

	// Set validates and persists a guild's settings.
	Set(ctx context.Context, s *GuildSettings) error
}
