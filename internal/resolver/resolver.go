// Package resolver turns user queries (search terms, video URLs, playlist
// URLs, direct media links) into playable track descriptors. Resolution is
// read-only and has no effect on player state; the command layer resolves
// first and enqueues after.
package resolver

import (
	"context"
	"errors"

	"github.com/quaverbot/quaver/internal/track"
)

var (
	// ErrNotFound means the query produced no playable results.
	ErrNotFound = errors.New("resolver: no results")

	// ErrInvalidURL means the query looked like a URL but cannot be used.
	ErrInvalidURL = errors.New("resolver: invalid url")

	// ErrUpstream means the metadata source failed or timed out; the caller
	// may retry.
	ErrUpstream = errors.New("resolver: upstream failure")

	// ErrPlaylistTooLarge means a playlist expansion exceeded the guild's
	// configured limit.
	ErrPlaylistTooLarge = errors.New("resolver: playlist exceeds limit")
)

// Options shapes one resolution.
type Options struct {
	// PlaylistLimit caps how many tracks a playlist may expand to. Zero
	// means no playlist expansion is allowed beyond a single track.
	PlaylistLimit int

	// SplitChapters expands a single chaptered upload into one track per
	// chapter.
	SplitChapters bool
}

// Resolver resolves queries into track descriptors.
// Implementations must be safe for concurrent use.
type Resolver interface {
	// Resolve returns the tracks for a query, in playback order. A playlist
	// query returns multiple tracks with their Playlist field set.
	Resolve(ctx context.Context, query string, opts Options) ([]track.Track, error)
}
