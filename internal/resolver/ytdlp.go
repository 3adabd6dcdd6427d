package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"path"
	"strings"
	"time"

	"github.com/quaverbot/quaver/internal/resilience"
	"github.com/quaverbot/quaver/internal/track"
)

// defaultTimeout bounds one metadata extraction.
const defaultTimeout = 15 * time.Second

// directExtensions are media formats played straight from their URL without
// consulting yt-dlp.
var directExtensions = map[string]track.Source{
	".m3u8": track.SourceHLS,
	".mp3":  track.SourceOther,
	".ogg":  track.SourceOther,
	".opus": track.SourceOther,
	".flac": track.SourceOther,
	".wav":  track.SourceOther,
	".aac":  track.SourceOther,
}

// Compile-time interface check.
var _ Resolver = (*YtDlp)(nil)

// YtDlp resolves queries with the yt-dlp command-line extractor. Plain text
// queries become a single-result YouTube search; URLs are handed to the
// extractor as-is.
type YtDlp struct {
	// Binary is the extractor executable. Default "yt-dlp".
	Binary string

	// Timeout bounds one extraction. Default 15s.
	Timeout time.Duration

	// breaker guards the extractor process. A wedged or rate-limited yt-dlp
	// otherwise turns every /play into a full timeout wait.
	breaker *resilience.CircuitBreaker
}

// NewYtDlp returns a resolver with default binary and timeout.
func NewYtDlp() *YtDlp {
	return &YtDlp{
		Binary:  "yt-dlp",
		Timeout: defaultTimeout,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "yt-dlp"}),
	}
}

// run invokes the extractor with args under the breaker and returns stdout.
// Timeouts and non-zero exits count as failures; with the breaker open the
// call is rejected immediately as [ErrUpstream].
func (y *YtDlp) run(ctx context.Context, args ...string) ([]byte, error) {
	timeout := y.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	binary := y.Binary
	if binary == "" {
		binary = "yt-dlp"
	}

	var stdout bytes.Buffer
	call := func() error {
		cmd := exec.CommandContext(ctx, binary, args...)
		var stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: extraction timed out: %v", ErrUpstream, ctx.Err())
			}
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return fmt.Errorf("%w: %s", ErrUpstream, msg)
			}
			return fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		return nil
	}

	var err error
	if y.breaker != nil {
		err = y.breaker.Execute(call)
	} else {
		err = call()
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, fmt.Errorf("%w: extractor unavailable: %v", ErrUpstream, err)
	}
	if err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}

// StreamURL returns the direct media URL for a track at playback time.
// Direct sources already carry one; YouTube page URLs go through the
// extractor's best-audio format selection, since stream URLs expire and must
// not be resolved at enqueue time.
func (y *YtDlp) StreamURL(ctx context.Context, t track.Track) (string, error) {
	if t.Source != track.SourceYouTube {
		return t.URL, nil
	}

	out, err := y.run(ctx, "-g", "-f", "bestaudio/best", "--no-playlist", t.URL)
	if err != nil {
		return "", err
	}

	streamURL := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	if streamURL == "" {
		return "", fmt.Errorf("%w: no stream url for %q", ErrNotFound, t.URL)
	}
	return streamURL, nil
}

// Resolve implements [Resolver].
func (y *YtDlp) Resolve(ctx context.Context, query string, opts Options) ([]track.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrNotFound)
	}

	if u, isURL := parseQueryURL(query); isURL {
		if u == nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidURL, query)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
		}
		if src, ok := directExtensions[strings.ToLower(path.Ext(u.Path))]; ok {
			return []track.Track{directTrack(u, src)}, nil
		}
		return y.extract(ctx, query, opts)
	}

	// Free-text search: take the top result.
	return y.extract(ctx, "ytsearch1:"+query, opts)
}

// parseQueryURL reports whether the query is a URL. Bare search terms never
// contain a scheme separator.
func parseQueryURL(query string) (*url.URL, bool) {
	if !strings.Contains(query, "://") {
		return nil, false
	}
	u, err := url.Parse(query)
	if err != nil || u.Host == "" {
		return nil, true // URL-shaped but unusable; caller maps to ErrInvalidURL
	}
	return u, true
}

// directTrack descriptors play from their URL with no further metadata. An
// HLS manifest is treated as a livestream of unknown duration.
func directTrack(u *url.URL, src track.Source) track.Track {
	return track.Track{
		Title:    path.Base(u.Path),
		Source:   src,
		SourceID: u.String(),
		URL:      u.String(),
		Live:     src == track.SourceHLS,
	}
}

func (y *YtDlp) extract(ctx context.Context, target string, opts Options) ([]track.Track, error) {
	args := []string{"-J", "--no-warnings"}
	if opts.PlaylistLimit > 0 {
		// Fetch one past the limit so oversized playlists are detectable.
		args = append(args, "--playlist-items", fmt.Sprintf("1:%d", opts.PlaylistLimit+1))
	} else {
		args = append(args, "--no-playlist")
	}
	args = append(args, target)

	out, err := y.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	return parseMetadata(out, opts)
}

// ytMetadata is the subset of yt-dlp's -J output the resolver reads. A
// playlist nests its entries; a single video carries optional chapters.
type ytMetadata struct {
	Type       string       `json:"_type"`
	ID         string       `json:"id"`
	Title      string       `json:"title"`
	Uploader   string       `json:"uploader"`
	Channel    string       `json:"channel"`
	Duration   float64      `json:"duration"`
	IsLive     bool         `json:"is_live"`
	WebpageURL string       `json:"webpage_url"`
	Thumbnail  string       `json:"thumbnail"`
	Chapters   []ytChapter  `json:"chapters"`
	Entries    []ytMetadata `json:"entries"`
}

type ytChapter struct {
	Title     string  `json:"title"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// parseMetadata converts one -J document into playback-ordered tracks.
func parseMetadata(raw []byte, opts Options) ([]track.Track, error) {
	var meta ytMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("%w: decode metadata: %v", ErrUpstream, err)
	}

	if meta.Type == "playlist" {
		entries := meta.Entries
		// Search results come back as a one-entry playlist.
		if strings.HasPrefix(meta.ID, "ytsearch") || len(entries) == 1 {
			if len(entries) == 0 {
				return nil, ErrNotFound
			}
			return singleTracks(entries[0], opts)
		}
		if len(entries) == 0 {
			return nil, ErrNotFound
		}
		if opts.PlaylistLimit > 0 && len(entries) > opts.PlaylistLimit {
			return nil, fmt.Errorf("%w: %d tracks over limit %d",
				ErrPlaylistTooLarge, len(entries), opts.PlaylistLimit)
		}
		pl := &track.Playlist{ID: meta.ID, Title: meta.Title}
		tracks := make([]track.Track, 0, len(entries))
		for _, e := range entries {
			t := videoTrack(e)
			t.Playlist = pl
			tracks = append(tracks, t)
		}
		return tracks, nil
	}

	return singleTracks(meta, opts)
}

// singleTracks maps one video to its tracks: one descriptor normally, one
// per chapter when chapter splitting is requested.
func singleTracks(meta ytMetadata, opts Options) ([]track.Track, error) {
	if meta.ID == "" && meta.WebpageURL == "" {
		return nil, ErrNotFound
	}
	base := videoTrack(meta)
	if !opts.SplitChapters || len(meta.Chapters) == 0 {
		return []track.Track{base}, nil
	}

	tracks := make([]track.Track, 0, len(meta.Chapters))
	for _, ch := range meta.Chapters {
		t := base
		t.Title = ch.Title
		t.Offset = secs(ch.StartTime)
		t.Duration = secs(ch.EndTime - ch.StartTime)
		tracks = append(tracks, t)
	}
	return tracks, nil
}

func videoTrack(meta ytMetadata) track.Track {
	artist := meta.Uploader
	if artist == "" {
		artist = meta.Channel
	}
	return track.Track{
		Title:        meta.Title,
		Artist:       artist,
		Source:       track.SourceYouTube,
		SourceID:     meta.ID,
		URL:          meta.WebpageURL,
		Duration:     secs(meta.Duration),
		Live:         meta.IsLive,
		ThumbnailURL: meta.Thumbnail,
	}
}

func secs(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
