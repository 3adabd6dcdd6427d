package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quaverbot/quaver/internal/resilience"
	"github.com/quaverbot/quaver/internal/track"
)

func TestResolveDirectURLs(t *testing.T) {
	t.Parallel()
	y := NewYtDlp()

	t.Run("hls manifest is a livestream", func(t *testing.T) {
		t.Parallel()
		tracks, err := y.Resolve(context.Background(), "https://radio.test/live/stream.m3u8", Options{})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if len(tracks) != 1 {
			t.Fatalf("tracks = %d, want 1", len(tracks))
		}
		got := tracks[0]
		if got.Source != track.SourceHLS || !got.Live {
			t.Fatalf("source/live = %v/%v, want hls/true", got.Source, got.Live)
		}
		if got.Duration != 0 {
			t.Fatalf("duration = %v, want 0", got.Duration)
		}
	})

	t.Run("plain audio file", func(t *testing.T) {
		t.Parallel()
		tracks, err := y.Resolve(context.Background(), "https://files.test/song.mp3", Options{})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		got := tracks[0]
		if got.Source != track.SourceOther || got.Live {
			t.Fatalf("source/live = %v/%v, want other/false", got.Source, got.Live)
		}
		if got.Title != "song.mp3" {
			t.Fatalf("title = %q", got.Title)
		}
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		t.Parallel()
		if _, err := y.Resolve(context.Background(), "ftp://files.test/song.mp3", Options{}); !errors.Is(err, ErrInvalidURL) {
			t.Fatalf("err = %v, want ErrInvalidURL", err)
		}
	})

	t.Run("empty query", func(t *testing.T) {
		t.Parallel()
		if _, err := y.Resolve(context.Background(), "   ", Options{}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestParseMetadataSingleVideo(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"id": "abc123",
		"title": "A Song",
		"uploader": "Some Artist",
		"duration": 215.5,
		"webpage_url": "https://www.youtube.com/watch?v=abc123",
		"thumbnail": "https://img.test/abc123.jpg"
	}`)

	tracks, err := parseMetadata(raw, Options{})
	if err != nil {
		t.Fatalf("parseMetadata: %v", err)
	}
	if len(tracks) != 1 {
		t.Fatalf("tracks = %d, want 1", len(tracks))
	}
	got := tracks[0]
	if got.Title != "A Song" || got.Artist != "Some Artist" {
		t.Fatalf("title/artist = %q/%q", got.Title, got.Artist)
	}
	if got.Source != track.SourceYouTube || got.SourceID != "abc123" {
		t.Fatalf("source = %v/%q", got.Source, got.SourceID)
	}
	if got.Duration != 215*time.Second+500*time.Millisecond {
		t.Fatalf("duration = %v", got.Duration)
	}
	if got.Playlist != nil {
		t.Fatal("single video must not carry a playlist group")
	}
}

func TestParseMetadataLivestream(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"id": "live1", "title": "24/7 Radio", "is_live": true, "webpage_url": "https://www.youtube.com/watch?v=live1"}`)
	tracks, err := parseMetadata(raw, Options{})
	if err != nil {
		t.Fatalf("parseMetadata: %v", err)
	}
	if !tracks[0].Live || tracks[0].Duration != 0 {
		t.Fatalf("live/duration = %v/%v", tracks[0].Live, tracks[0].Duration)
	}
}

func TestParseMetadataPlaylist(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"_type": "playlist",
		"id": "PL42",
		"title": "Mix",
		"entries": [
			{"id": "v1", "title": "One", "duration": 60, "webpage_url": "https://yt.test/v1"},
			{"id": "v2", "title": "Two", "duration": 90, "webpage_url": "https://yt.test/v2"},
			{"id": "v3", "title": "Three", "duration": 120, "webpage_url": "https://yt.test/v3"}
		]
	}`)

	t.Run("within limit keeps order and grouping", func(t *testing.T) {
		t.Parallel()
		tracks, err := parseMetadata(raw, Options{PlaylistLimit: 10})
		if err != nil {
			t.Fatalf("parseMetadata: %v", err)
		}
		if len(tracks) != 3 {
			t.Fatalf("tracks = %d, want 3", len(tracks))
		}
		for i, want := range []string{"One", "Two", "Three"} {
			if tracks[i].Title != want {
				t.Fatalf("track %d = %q, want %q", i, tracks[i].Title, want)
			}
			if tracks[i].Playlist == nil || tracks[i].Playlist.ID != "PL42" {
				t.Fatalf("track %d missing playlist group", i)
			}
		}
	})

	t.Run("over limit fails", func(t *testing.T) {
		t.Parallel()
		if _, err := parseMetadata(raw, Options{PlaylistLimit: 2}); !errors.Is(err, ErrPlaylistTooLarge) {
			t.Fatalf("err = %v, want ErrPlaylistTooLarge", err)
		}
	})
}

func TestParseMetadataSearchResult(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"_type": "playlist",
		"id": "ytsearch1:some song",
		"entries": [
			{"id": "hit", "title": "The Hit", "duration": 180, "webpage_url": "https://yt.test/hit"}
		]
	}`)
	tracks, err := parseMetadata(raw, Options{PlaylistLimit: 10})
	if err != nil {
		t.Fatalf("parseMetadata: %v", err)
	}
	if len(tracks) != 1 || tracks[0].Title != "The Hit" {
		t.Fatalf("tracks = %+v", tracks)
	}
	if tracks[0].Playlist != nil {
		t.Fatal("search result must not carry a playlist group")
	}
}

func TestParseMetadataEmptySearch(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"_type": "playlist", "id": "ytsearch1:gibberish", "entries": []}`)
	if _, err := parseMetadata(raw, Options{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestParseMetadataSplitChapters(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"id": "album1",
		"title": "Full Album",
		"duration": 600,
		"webpage_url": "https://yt.test/album1",
		"chapters": [
			{"title": "Intro", "start_time": 0, "end_time": 90},
			{"title": "Middle", "start_time": 90, "end_time": 400},
			{"title": "Outro", "start_time": 400, "end_time": 600}
		]
	}`)

	t.Run("split off", func(t *testing.T) {
		t.Parallel()
		tracks, err := parseMetadata(raw, Options{})
		if err != nil {
			t.Fatal(err)
		}
		if len(tracks) != 1 || tracks[0].Title != "Full Album" {
			t.Fatalf("tracks = %+v", tracks)
		}
	})

	t.Run("split on", func(t *testing.T) {
		t.Parallel()
		tracks, err := parseMetadata(raw, Options{SplitChapters: true})
		if err != nil {
			t.Fatal(err)
		}
		if len(tracks) != 3 {
			t.Fatalf("tracks = %d, want 3", len(tracks))
		}
		mid := tracks[1]
		if mid.Title != "Middle" {
			t.Fatalf("title = %q", mid.Title)
		}
		if mid.Offset != 90*time.Second || mid.Duration != 310*time.Second {
			t.Fatalf("offset/duration = %v/%v", mid.Offset, mid.Duration)
		}
	})
}

func TestExtractorBreakerRejectsWhenOpen(t *testing.T) {
	t.Parallel()

	y := &YtDlp{
		Binary:  "definitely-not-a-real-binary",
		Timeout: time.Second,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         "yt-dlp-test",
			MaxFailures:  1,
			ResetTimeout: time.Hour,
		}),
	}

	// First call fails and trips the breaker.
	if _, err := y.Resolve(context.Background(), "some search", Options{}); !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	// Second call is rejected by the open breaker, still as ErrUpstream.
	if _, err := y.Resolve(context.Background(), "some search", Options{}); !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if got := y.breaker.State(); got != resilience.StateOpen {
		t.Fatalf("breaker state = %v, want open", got)
	}
}

func TestParseMetadataGarbage(t *testing.T) {
	t.Parallel()

	if _, err := parseMetadata([]byte("not json"), Options{}); !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
}
