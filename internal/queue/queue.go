// Package queue implements the per-guild track queue: an ordered slice of
// queued tracks plus a cursor identifying the current one. The queue itself
// is not synchronized; the owning player serializes all access through its
// mailbox.
package queue

import (
	"errors"
	"math/rand/v2"

	"github.com/quaverbot/quaver/internal/track"
)

var (
	// ErrOutOfRange is returned when a 1-based position into the upcoming
	// slice does not address an existing entry.
	ErrOutOfRange = errors.New("queue: position out of range")

	// ErrAtStart is returned by Back when the cursor is already at the
	// first track.
	ErrAtStart = errors.New("queue: already at the first track")
)

// Position selects where Enqueue inserts a track.
type Position int

const (
	// End appends after everything already queued.
	End Position = iota
	// Next inserts directly after the cursor.
	Next
)

// Queue is an ordered sequence of tracks with a cursor. Invariants:
// cursor == 0 when empty; otherwise 0 <= cursor <= len. A cursor equal to
// len means playback ran off the end and there is no current track.
type Queue struct {
	items  []track.Queued
	cursor int
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Enqueue inserts t at the requested position. Tracks that belong to a
// playlist group always go to the end so a playlist keeps its order even
// when queued with "next".
func (q *Queue) Enqueue(t track.Queued, pos Position) {
	if pos == Next && t.Playlist == nil {
		at := q.cursor + 1
		if at > len(q.items) {
			at = len(q.items)
		}
		q.items = append(q.items[:at], append([]track.Queued{t}, q.items[at:]...)...)
		return
	}
	q.items = append(q.items, t)
}

// Current returns the track at the cursor, or nil when the queue is empty
// or the cursor has run off the end.
func (q *Queue) Current() *track.Queued {
	if q.cursor < 0 || q.cursor >= len(q.items) {
		return nil
	}
	return &q.items[q.cursor]
}

// Upcoming returns the tracks strictly after the cursor. The returned slice
// is a copy; mutating it does not affect the queue.
func (q *Queue) Upcoming() []track.Queued {
	if q.cursor+1 >= len(q.items) {
		return nil
	}
	out := make([]track.Queued, len(q.items)-q.cursor-1)
	copy(out, q.items[q.cursor+1:])
	return out
}

// SizeAfterCursor reports how many tracks follow the current one.
func (q *Queue) SizeAfterCursor() int {
	if q.cursor+1 >= len(q.items) {
		return 0
	}
	return len(q.items) - q.cursor - 1
}

// EmptyAfterCursor reports whether nothing follows the current track.
func (q *Queue) EmptyAfterCursor() bool {
	return q.SizeAfterCursor() == 0
}

// Len reports the total number of tracks, including already-played ones.
func (q *Queue) Len() int {
	return len(q.items)
}

// Advance moves the cursor forward by n (n >= 1) and returns the tracks
// that were skipped over, current included. Advancing past the end clamps
// the cursor to len, leaving no current track but keeping the history
// intact for Back.
func (q *Queue) Advance(n int) []track.Queued {
	if n < 1 || len(q.items) == 0 {
		return nil
	}
	from := q.cursor
	q.cursor += n
	if q.cursor > len(q.items) {
		q.cursor = len(q.items)
	}
	skipped := make([]track.Queued, q.cursor-from)
	copy(skipped, q.items[from:q.cursor])
	return skipped
}

// Back moves the cursor to the previous track. Re-playing always starts at
// offset 0; the queue stores no positions.
func (q *Queue) Back() error {
	if q.cursor <= 0 {
		return ErrAtStart
	}
	q.cursor--
	return nil
}

// Clear drops everything after the cursor. The current track, if any, stays.
func (q *Queue) Clear() {
	if q.cursor+1 < len(q.items) {
		q.items = q.items[:q.cursor+1]
	}
}

// Shuffle applies a uniform random permutation to the slice strictly after
// the cursor. The current track does not move.
func (q *Queue) Shuffle() {
	if q.cursor+1 >= len(q.items) {
		return
	}
	upcoming := q.items[q.cursor+1:]
	rand.Shuffle(len(upcoming), func(i, j int) {
		upcoming[i], upcoming[j] = upcoming[j], upcoming[i]
	})
}

// Move relocates one upcoming track. Both from and to are 1-based positions
// into the upcoming slice. It is a single relocation, not a swap.
func (q *Queue) Move(from, to int) (track.Queued, error) {
	n := q.SizeAfterCursor()
	if from < 1 || from > n || to < 1 || to > n {
		return track.Queued{}, ErrOutOfRange
	}
	src := q.cursor + from
	dst := q.cursor + to
	t := q.items[src]
	q.items = append(q.items[:src], q.items[src+1:]...)
	q.items = append(q.items[:dst], append([]track.Queued{t}, q.items[dst:]...)...)
	return t, nil
}

// Remove deletes count tracks starting at the 1-based position pos in the
// upcoming slice. A count that reaches past the end removes what exists.
func (q *Queue) Remove(pos, count int) ([]track.Queued, error) {
	n := q.SizeAfterCursor()
	if pos < 1 || pos > n || count < 1 {
		return nil, ErrOutOfRange
	}
	start := q.cursor + pos
	end := start + count
	if end > len(q.items) {
		end = len(q.items)
	}
	removed := make([]track.Queued, end-start)
	copy(removed, q.items[start:end])
	q.items = append(q.items[:start], q.items[end:]...)
	return removed, nil
}
