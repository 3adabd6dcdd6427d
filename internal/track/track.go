// Package track defines the immutable track descriptor shared by the queue,
// the player, and the audio pipeline. Descriptors are produced by a resolver
// and never mutated after being enqueued.
package track

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Source identifies where a track's media comes from. It decides how the
// pipeline opens the stream and whether the track is cacheable.
type Source string

const (
	SourceYouTube Source = "youtube"
	SourceHLS     Source = "hls"
	SourceOther   Source = "other"
)

// Playlist groups tracks that arrived from the same playlist expansion.
// Tracks carrying a playlist group are always appended to the end of the
// queue regardless of the requested insert position.
type Playlist struct {
	ID    string
	Title string
}

// Track describes one playable item. Duration of 0 together with Live=true
// marks a livestream; livestreams cannot be sought or cached.
type Track struct {
	Title        string
	Artist       string
	Source       Source
	SourceID     string
	URL          string
	Duration     time.Duration
	Live         bool
	ThumbnailURL string
	Playlist     *Playlist

	// Offset is where playback of this descriptor begins, e.g. a chapter
	// start inside a longer upload. Logical position 0 maps to Offset.
	Offset time.Duration

	// LoudnessDB is an optional hint from the resolver (YouTube supplies
	// one); when non-zero the pipeline pre-bakes -LoudnessDB of gain.
	LoudnessDB float64
}

// Queued wraps a descriptor with per-request context: who asked for it and
// where, so replies and auto-announcements land in the right text channel.
type Queued struct {
	Track

	RequestedBy string
	ChannelID   string
	AddedAt     time.Time
}

// Fingerprint returns the deterministic cache key for a media URL: the hex
// digest of its SHA-256. All cache interaction is keyed by this value.
func Fingerprint(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}
