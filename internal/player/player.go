// Package player implements the per-guild playback state machine and the
// registry that owns one player per guild.
//
// A player serialises all state access through a mailbox: public methods
// post a closure to the run goroutine and wait for its result, and pipeline
// completions are posted to the same mailbox tagged with a generation
// counter so a completion from a superseded stream can never corrupt the
// state that replaced it.
package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quaverbot/quaver/internal/cache"
	"github.com/quaverbot/quaver/internal/observe"
	"github.com/quaverbot/quaver/internal/pipeline"
	"github.com/quaverbot/quaver/internal/queue"
	"github.com/quaverbot/quaver/internal/settings"
	"github.com/quaverbot/quaver/internal/track"
	"github.com/quaverbot/quaver/internal/voice"
)

// Status is the playback state of a player.
type Status int

const (
	// Idle: connected (or not) with nothing playing.
	Idle Status = iota
	// Loading: a stream is being opened.
	Loading
	// Playing: audio is flowing.
	Playing
	// Paused: playback frozen at a position.
	Paused
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Sentinel errors commands map to user-facing replies.
var (
	ErrClosed         = errors.New("player: closed")
	ErrNotConnected   = errors.New("player: not connected to a voice channel")
	ErrAlreadyPlaying = errors.New("player: already playing")
	ErrNothingPlaying = errors.New("player: nothing is playing")
	ErrQueueEmpty     = errors.New("player: the queue is empty")
	ErrNoPrevious     = errors.New("player: no previous track")
	ErrCannotSeekLive = errors.New("player: cannot seek within a livestream")
	ErrSeekOutOfRange = errors.New("player: seek position past the end of the track")
	ErrJoinFailed     = errors.New("player: could not join the voice channel")
	ErrOpenFailed     = errors.New("player: could not start playback")
)

// joinTimeout bounds one voice-channel join handshake.
const joinTimeout = 10 * time.Second

// cacheFillDelay is how long a track must survive before a background cache
// download starts, so instant skips never cost a full download.
const cacheFillDelay = 2 * time.Second

// maxCacheable is the longest track worth caching.
const maxCacheable = 30 * time.Minute

// Stream is the slice of a pipeline stream the player drives. Tests
// substitute fakes; production uses *pipeline.Stream.
type Stream interface {
	Position() time.Duration
	Stop()
}

// OpenFunc starts a stream for the given pipeline options.
type OpenFunc func(ctx context.Context, opts pipeline.Options) (Stream, error)

// PipelineOpener adapts pipeline.Open to [OpenFunc].
func PipelineOpener() OpenFunc {
	return func(ctx context.Context, opts pipeline.Options) (Stream, error) {
		return pipeline.Open(ctx, opts)
	}
}

// StreamResolver supplies the direct media URL for a track at playback time.
type StreamResolver interface {
	StreamURL(ctx context.Context, t track.Track) (string, error)
}

// Deps bundles everything a player needs. All fields except Announce are
// required.
type Deps struct {
	Connector voice.Connector
	Open      OpenFunc
	Cache     *cache.Cache
	Settings  settings.Store
	Streams   StreamResolver
	Metrics   *observe.Metrics
	Logger    *slog.Logger

	// Announce, when set, is called from its own goroutine whenever the
	// queue advances on its own and the guild has auto-announce enabled.
	Announce func(textChannelID string, t track.Queued)
}

// Stats counts what a player has done since it was created.
type Stats struct {
	TracksPlayed int64
	PlayTime     time.Duration
}

// NowPlaying is a snapshot of the current track and position.
type NowPlaying struct {
	Track    track.Queued
	Position time.Duration
	Status   Status
	Volume   int
	LoopOne  bool
	LoopAll  bool
}

// Player is one guild's playback state machine. All exported methods are
// safe for concurrent use; they serialise through the mailbox.
type Player struct {
	guildID string
	deps    Deps
	log     *slog.Logger

	inbox     chan func()
	done      chan struct{}
	closeOnce sync.Once

	// Everything below is owned by the run goroutine.
	queue      *queue.Queue
	conn       voice.Conn
	channelID  string
	status     Status
	stream     Stream
	generation uint64
	volume     *pipeline.Volume
	settings   *settings.GuildSettings

	// position is the frozen logical position while paused or disconnected.
	position time.Duration
	// startPos is the logical position the live stream started from.
	startPos time.Duration

	loopCurrent bool
	loopQueue   bool

	idleTimer    *time.Timer
	lastActive   time.Time
	tracksPlayed int64
	played       time.Duration
}

// New creates and starts a player for one guild.
func New(guildID string, deps Deps) *Player {
	p := &Player{
		guildID:    guildID,
		deps:       deps,
		log:        deps.Logger.With("guild_id", guildID),
		inbox:      make(chan func(), 16),
		done:       make(chan struct{}),
		queue:      queue.New(),
		lastActive: time.Now(),
	}
	go p.run()
	return p
}

// GuildID returns the guild this player serves.
func (p *Player) GuildID() string {
	return p.guildID
}

// run is the mailbox loop. Every mutation of player state happens here.
func (p *Player) run() {
	for {
		select {
		case fn := <-p.inbox:
			fn()
		case <-p.done:
			p.teardown()
			return
		}
	}
}

// exec posts fn to the mailbox and waits for its result. Every call counts
// as guild activity for janitor purposes.
func (p *Player) exec(fn func() error) error {
	return p.execQuiet(func() error {
		p.lastActive = time.Now()
		return fn()
	})
}

// execQuiet is exec without the activity stamp.
func (p *Player) execQuiet(fn func() error) error {
	errc := make(chan error, 1)
	select {
	case p.inbox <- func() {
		errc <- fn()
	}:
	case <-p.done:
		return ErrClosed
	}
	select {
	case err := <-errc:
		return err
	case <-p.done:
		return ErrClosed
	}
}

// post delivers fn to the mailbox without waiting. Used by timers and stream
// completions; drops silently once the player is closed.
func (p *Player) post(fn func()) {
	select {
	case p.inbox <- fn:
	case <-p.done:
	}
}

// Close stops playback, leaves the voice channel, and terminates the run
// goroutine. Safe to call more than once.
func (p *Player) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
	})
	return nil
}

// teardown runs inside the mailbox goroutine as its final act.
func (p *Player) teardown() {
	p.stopIdleTimer()
	p.generation++
	if p.stream != nil {
		p.stream.Stop()
		p.stream = nil
	}
	if p.conn != nil {
		if err := p.conn.Disconnect(); err != nil {
			p.log.Warn("voice disconnect on close", "err", err)
		}
		p.deps.Metrics.ActiveVoiceConns.Add(context.Background(), -1)
		p.conn = nil
	}
}

// ─── Connection ─────────────────────────────────────────────────────────────

// Connect joins (or moves to) a voice channel. Guild settings are read
// through on every connect; the default volume applies only to the first.
func (p *Player) Connect(ctx context.Context, channelID string) error {
	return p.exec(func() error {
		if p.conn != nil && p.channelID == channelID {
			return nil
		}

		gs, err := p.deps.Settings.Get(ctx, p.guildID)
		if err != nil {
			return fmt.Errorf("player: load settings: %w", err)
		}
		p.settings = gs
		if p.volume == nil {
			p.volume = pipeline.NewVolume(gs.DefaultVolume)
		}

		// Moving channels drops the old connection first; playback resumes
		// on the new one at the same position.
		wasPlaying := false
		if p.conn != nil {
			wasPlaying = p.status == Playing
			p.freezePosition()
			p.haltStream()
			if err := p.conn.Disconnect(); err != nil {
				p.log.Warn("voice disconnect on move", "err", err)
			}
			p.deps.Metrics.ActiveVoiceConns.Add(ctx, -1)
			p.conn = nil
		}

		joinCtx, cancel := context.WithTimeout(ctx, joinTimeout)
		defer cancel()
		conn, err := p.deps.Connector.Join(joinCtx, p.guildID, channelID)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrJoinFailed, err)
		}
		p.conn = conn
		p.channelID = channelID
		p.deps.Metrics.ActiveVoiceConns.Add(ctx, 1)
		p.stopIdleTimer()
		p.log.Info("joined voice channel", "channel_id", channelID)
		if wasPlaying {
			return p.startCurrent(p.position)
		}
		return nil
	})
}

// Connected reports whether the player has a live voice connection.
func (p *Player) Connected() bool {
	var ok bool
	_ = p.exec(func() error {
		ok = p.conn != nil
		return nil
	})
	return ok
}

// ChannelID returns the connected voice channel, or "".
func (p *Player) ChannelID() string {
	var id string
	_ = p.exec(func() error {
		if p.conn != nil {
			id = p.channelID
		}
		return nil
	})
	return id
}

// Disconnect leaves the voice channel but keeps the queue, the cursor, and
// the playback position, so a later Connect+Play resumes where it stopped.
func (p *Player) Disconnect() error {
	return p.exec(func() error {
		if p.conn == nil {
			return ErrNotConnected
		}
		p.freezePosition()
		p.haltStream()
		p.status = Idle
		p.stopIdleTimer()
		if err := p.conn.Disconnect(); err != nil {
			p.log.Warn("voice disconnect", "err", err)
		}
		p.deps.Metrics.ActiveVoiceConns.Add(context.Background(), -1)
		p.conn = nil
		p.log.Info("left voice channel", "channel_id", p.channelID)
		return nil
	})
}

// HandleVoiceDrop reacts to the transport dropping out from under us: one
// rejoin attempt at the logical position, then idle.
func (p *Player) HandleVoiceDrop() {
	p.post(func() {
		if p.conn == nil {
			return
		}
		p.log.Warn("voice connection dropped", "channel_id", p.channelID)
		p.freezePosition()
		wasPlaying := p.status == Playing || p.status == Loading
		p.haltStream()
		_ = p.conn.Disconnect()
		p.deps.Metrics.ActiveVoiceConns.Add(context.Background(), -1)
		p.conn = nil

		joinCtx, cancel := context.WithTimeout(context.Background(), joinTimeout)
		defer cancel()
		conn, err := p.deps.Connector.Join(joinCtx, p.guildID, p.channelID)
		if err != nil {
			p.log.Error("voice rejoin failed", "err", err)
			p.goIdle()
			return
		}
		p.conn = conn
		p.deps.Metrics.ActiveVoiceConns.Add(context.Background(), 1)
		p.log.Info("voice rejoined", "channel_id", p.channelID)
		if wasPlaying {
			if err := p.startCurrent(p.position); err != nil {
				p.log.Error("restart after rejoin", "err", err)
				p.goIdle()
			}
		}
	})
}

// HandleListenersGone reacts to the last listener leaving the bot's voice
// channel. When the guild opted in, playback pauses where it is and the
// auto-disconnect timer is armed; playback resumed by a returning listener
// via /play cancels the timer.
func (p *Player) HandleListenersGone() {
	p.post(func() {
		if p.conn == nil || p.settings == nil || !p.settings.LeaveIfNoListeners {
			return
		}
		if p.status == Playing || p.status == Loading {
			p.freezePosition()
			p.haltStream()
			p.status = Paused
			p.setSpeaking(false)
			p.log.Info("paused, channel has no listeners", "channel_id", p.channelID)
		}
		p.armAutoDisconnect()
	})
}

// ─── Queueing ───────────────────────────────────────────────────────────────

// Enqueue adds tracks to the queue and starts playback if the player is
// idle. It reports whether playback started as a result.
func (p *Player) Enqueue(tracks []track.Queued, next bool) (started bool, err error) {
	err = p.exec(func() error {
		if p.conn == nil {
			return ErrNotConnected
		}
		pos := queue.End
		if next {
			pos = queue.Next
		}
		for _, t := range tracks {
			p.queue.Enqueue(t, pos)
		}
		if p.status == Idle {
			if err := p.startCurrent(p.position); err != nil {
				return err
			}
			p.position = 0
			started = true
		}
		return nil
	})
	return started, err
}

// Current returns the track at the cursor, if any.
func (p *Player) Current() (track.Queued, bool) {
	var (
		t  track.Queued
		ok bool
	)
	_ = p.exec(func() error {
		if cur := p.queue.Current(); cur != nil {
			t, ok = *cur, true
		}
		return nil
	})
	return t, ok
}

// Upcoming returns the tracks after the cursor.
func (p *Player) Upcoming() []track.Queued {
	var out []track.Queued
	_ = p.exec(func() error {
		out = p.queue.Upcoming()
		return nil
	})
	return out
}

// QueueSize returns how many tracks follow the current one.
func (p *Player) QueueSize() int {
	var n int
	_ = p.exec(func() error {
		n = p.queue.SizeAfterCursor()
		return nil
	})
	return n
}

// Clear drops everything after the current track.
func (p *Player) Clear() error {
	return p.exec(func() error {
		p.queue.Clear()
		return nil
	})
}

// Shuffle permutes the upcoming tracks.
func (p *Player) Shuffle() error {
	return p.exec(func() error {
		if p.queue.EmptyAfterCursor() {
			return ErrQueueEmpty
		}
		p.queue.Shuffle()
		return nil
	})
}

// Move relocates one upcoming track between 1-based positions.
func (p *Player) Move(from, to int) (track.Queued, error) {
	var moved track.Queued
	err := p.exec(func() error {
		t, err := p.queue.Move(from, to)
		if err != nil {
			return err
		}
		moved = t
		return nil
	})
	return moved, err
}

// Remove deletes count upcoming tracks starting at the 1-based position.
func (p *Player) Remove(pos, count int) ([]track.Queued, error) {
	var removed []track.Queued
	err := p.exec(func() error {
		ts, err := p.queue.Remove(pos, count)
		if err != nil {
			return err
		}
		removed = ts
		return nil
	})
	return removed, err
}

// ─── Transport controls ─────────────────────────────────────────────────────

// Play starts or resumes playback of the current track.
func (p *Player) Play() error {
	return p.exec(func() error {
		if p.conn == nil {
			return ErrNotConnected
		}
		switch p.status {
		case Playing, Loading:
			return ErrAlreadyPlaying
		case Paused:
			return p.startCurrent(p.position)
		default:
			if p.queue.Current() == nil {
				return ErrQueueEmpty
			}
			pos := p.position
			if err := p.startCurrent(pos); err != nil {
				return err
			}
			p.position = 0
			return nil
		}
	})
}

// Pause freezes playback at the current logical position.
func (p *Player) Pause() error {
	return p.exec(func() error {
		if p.status != Playing && p.status != Loading {
			return ErrNothingPlaying
		}
		p.freezePosition()
		p.haltStream()
		p.status = Paused
		p.setSpeaking(false)
		return nil
	})
}

// Skip advances past n tracks (n >= 1) and plays whatever the cursor lands
// on. Skipping past the end leaves the player idle with the disconnect timer
// armed. It returns the skipped tracks.
func (p *Player) Skip(n int) ([]track.Queued, error) {
	var skipped []track.Queued
	err := p.exec(func() error {
		if p.conn == nil {
			return ErrNotConnected
		}
		if n < 1 {
			return fmt.Errorf("player: skip count %d: %w", n, queue.ErrOutOfRange)
		}
		if p.queue.Current() == nil && p.queue.EmptyAfterCursor() {
			return ErrQueueEmpty
		}
		p.haltStream()
		p.position = 0
		skipped = p.queue.Advance(n)
		if p.queue.Current() == nil {
			p.goIdle()
			return nil
		}
		return p.startCurrent(0)
	})
	return skipped, err
}

// Back returns to the previous track and plays it from the start.
func (p *Player) Back() error {
	return p.exec(func() error {
		if p.conn == nil {
			return ErrNotConnected
		}
		if err := p.queue.Back(); err != nil {
			return fmt.Errorf("%w: %w", ErrNoPrevious, err)
		}
		p.haltStream()
		p.position = 0
		return p.startCurrent(0)
	})
}

// Stop halts playback, clears the whole queue, and leaves the voice channel.
// Use [Player.Disconnect] to leave while keeping the queue and position.
func (p *Player) Stop() error {
	return p.exec(func() error {
		if p.status == Idle {
			return ErrNothingPlaying
		}
		p.haltStream()
		p.position = 0
		p.queue = queue.New()
		p.loopCurrent = false
		p.loopQueue = false
		p.status = Idle
		p.setSpeaking(false)
		p.stopIdleTimer()
		if p.conn != nil {
			if err := p.conn.Disconnect(); err != nil {
				p.log.Warn("voice disconnect on stop", "err", err)
			}
			p.deps.Metrics.ActiveVoiceConns.Add(context.Background(), -1)
			p.conn = nil
		}
		p.log.Info("stopped, queue cleared", "channel_id", p.channelID)
		return nil
	})
}

// Seek jumps to an absolute position in the current track. Seeking while
// paused moves the frozen position without resuming.
func (p *Player) Seek(pos time.Duration) error {
	return p.exec(func() error {
		return p.seekLocked(pos)
	})
}

// SeekForward jumps ahead of the current position by delta.
func (p *Player) SeekForward(delta time.Duration) error {
	return p.exec(func() error {
		return p.seekLocked(p.logicalPosition() + delta)
	})
}

// seekLocked runs inside the mailbox.
func (p *Player) seekLocked(pos time.Duration) error {
	cur := p.queue.Current()
	if cur == nil || p.status == Idle {
		return ErrNothingPlaying
	}
	if cur.Live {
		return ErrCannotSeekLive
	}
	if pos < 0 {
		pos = 0
	}
	if cur.Duration > 0 && pos >= cur.Duration {
		return ErrSeekOutOfRange
	}
	if p.status == Paused {
		p.position = pos
		return nil
	}
	p.haltStream()
	return p.startCurrent(pos)
}

// ─── Volume and loop ────────────────────────────────────────────────────────

// SetVolume clamps v to 0–100 and applies it to the live stream immediately.
func (p *Player) SetVolume(v int) (applied int, err error) {
	err = p.exec(func() error {
		if p.volume == nil {
			p.volume = pipeline.NewVolume(v)
		} else {
			p.volume.Set(v)
		}
		applied = p.volume.Get()
		return nil
	})
	return applied, err
}

// Volume returns the current 0–100 level.
func (p *Player) Volume() int {
	var v int
	_ = p.exec(func() error {
		if p.volume != nil {
			v = p.volume.Get()
		}
		return nil
	})
	return v
}

// SetLoopCurrent toggles restarting the current track when it ends. Mutually
// exclusive with queue looping.
func (p *Player) SetLoopCurrent(on bool) error {
	return p.exec(func() error {
		if on && p.status == Idle {
			return ErrNothingPlaying
		}
		p.loopCurrent = on
		if on {
			p.loopQueue = false
		}
		return nil
	})
}

// SetLoopQueue toggles re-appending finished tracks to the end of the queue.
// Mutually exclusive with current-track looping.
func (p *Player) SetLoopQueue(on bool) error {
	return p.exec(func() error {
		if on && p.status == Idle {
			return ErrNothingPlaying
		}
		p.loopQueue = on
		if on {
			p.loopCurrent = false
		}
		return nil
	})
}

// ─── Introspection ──────────────────────────────────────────────────────────

// Now returns a snapshot of the current track, position, and mode.
func (p *Player) Now() (NowPlaying, bool) {
	var (
		np NowPlaying
		ok bool
	)
	_ = p.exec(func() error {
		cur := p.queue.Current()
		if cur == nil {
			return nil
		}
		vol := 0
		if p.volume != nil {
			vol = p.volume.Get()
		}
		np = NowPlaying{
			Track:    *cur,
			Position: p.logicalPosition(),
			Status:   p.status,
			Volume:   vol,
			LoopOne:  p.loopCurrent,
			LoopAll:  p.loopQueue,
		}
		ok = true
		return nil
	})
	return np, ok
}

// Status returns the playback state.
func (p *Player) Status() Status {
	var s Status
	_ = p.exec(func() error {
		s = p.status
		return nil
	})
	return s
}

// Stats returns playback totals since the player was created.
func (p *Player) Stats() Stats {
	var st Stats
	_ = p.exec(func() error {
		st = Stats{TracksPlayed: p.tracksPlayed, PlayTime: p.played}
		return nil
	})
	return st
}

// Inspect returns the playback state and the last time a command touched
// this player, without itself counting as activity. The registry janitor
// uses it to reap abandoned players.
func (p *Player) Inspect() (Status, time.Time) {
	var (
		s Status
		t time.Time
	)
	_ = p.execQuiet(func() error {
		s = p.status
		t = p.lastActive
		return nil
	})
	return s, t
}

// ─── Internals (mailbox goroutine only) ─────────────────────────────────────

// logicalPosition is the position within the current track, independent of
// any chapter offset baked into the stream seek.
func (p *Player) logicalPosition() time.Duration {
	if p.status == Playing || p.status == Loading {
		if p.stream != nil {
			pos := p.stream.Position()
			if cur := p.queue.Current(); cur != nil {
				pos -= cur.Offset
			}
			return pos
		}
	}
	return p.position
}

// freezePosition captures the logical position before the stream goes away.
func (p *Player) freezePosition() {
	if p.status == Playing || p.status == Loading {
		p.position = p.logicalPosition()
	}
}

// haltStream supersedes and stops the live stream, accounting its play time.
// The generation bump guarantees the stream's completion is discarded.
func (p *Player) haltStream() {
	p.generation++
	if p.stream == nil {
		return
	}
	if played := p.stream.Position() - p.startPos; played > 0 {
		p.played += played
	}
	p.stream.Stop()
	p.stream = nil
}

// startCurrent opens a stream for the track at the cursor, starting at the
// logical position pos. On open failure the cursor advances past the broken
// track so a retry plays the next one.
func (p *Player) startCurrent(pos time.Duration) error {
	cur := p.queue.Current()
	if cur == nil {
		p.goIdle()
		return ErrQueueEmpty
	}
	if p.conn == nil {
		return ErrNotConnected
	}

	p.stopIdleTimer()
	p.status = Loading
	p.generation++
	gen := p.generation
	started := time.Now()

	ctx := context.Background()
	input, remote, err := p.resolveInput(ctx, cur)
	if err != nil {
		p.failCurrent(cur, err)
		return fmt.Errorf("%w: %w", ErrOpenFailed, err)
	}

	opts := pipeline.Options{
		Input:  input,
		Remote: remote,
		Seek:   cur.Offset + pos,
		GainDB: -cur.LoudnessDB,
		Volume: p.volume,
		Sink:   p.conn.OpusSend(),
		OnComplete: func(err error) {
			p.post(func() { p.onStreamDone(gen, err) })
		},
	}
	if cur.Offset > 0 && cur.Duration > pos {
		// Chapter slices must stop at the chapter boundary.
		opts.Limit = cur.Duration - pos
	}

	stream, err := p.deps.Open(ctx, opts)
	if err != nil {
		p.failCurrent(cur, err)
		return fmt.Errorf("%w: %w", ErrOpenFailed, err)
	}

	p.stream = stream
	p.startPos = cur.Offset + pos
	p.status = Playing
	p.setSpeaking(true)
	p.deps.Metrics.PipelineOpenDuration.Record(ctx, time.Since(started).Seconds())
	p.log.Info("playing", "title", cur.Title, "position", pos, "cached", !remote)

	p.maybeCache(cur, pos)
	return nil
}

// resolveInput picks the cache file when present, otherwise the direct
// stream URL from the resolver.
func (p *Player) resolveInput(ctx context.Context, cur *track.Queued) (input string, remote bool, err error) {
	fp := track.Fingerprint(cur.URL)
	if path, ok := p.deps.Cache.Lookup(ctx, fp); ok {
		return path, false, nil
	}
	url, err := p.deps.Streams.StreamURL(ctx, cur.Track)
	if err != nil {
		return "", false, err
	}
	return url, true, nil
}

// failCurrent logs an open failure and moves the cursor past the track.
func (p *Player) failCurrent(cur *track.Queued, err error) {
	p.log.Error("start playback", "title", cur.Title, "err", err)
	p.queue.Advance(1)
	p.position = 0
	p.goIdle()
}

// maybeCache kicks off a background download of the full track when it is
// worth caching: not live, bounded, reasonably short, playing from the top.
func (p *Player) maybeCache(cur *track.Queued, pos time.Duration) {
	if cur.Live || cur.Duration <= 0 || cur.Duration >= maxCacheable {
		return
	}
	if pos != 0 || cur.Offset != 0 {
		return
	}
	fp := track.Fingerprint(cur.URL)
	if p.deps.Cache.Contains(fp) {
		return
	}
	t := cur.Track
	go func() {
		// A skipped track should not cost a full download.
		select {
		case <-time.After(cacheFillDelay):
		case <-p.done:
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		url, err := p.deps.Streams.StreamURL(ctx, t)
		if err != nil {
			p.log.Warn("cache fill: stream url", "title", t.Title, "err", err)
			return
		}
		if err := p.deps.Cache.Fill(ctx, track.Fingerprint(t.URL), url); err != nil {
			p.log.Warn("cache fill", "title", t.Title, "err", err)
		}
	}()
}

// onStreamDone handles a pipeline completion. Stale generations are ignored:
// whatever superseded that stream has already settled the state.
func (p *Player) onStreamDone(gen uint64, err error) {
	if gen != p.generation {
		return
	}
	if p.stream != nil {
		if played := p.stream.Position() - p.startPos; played > 0 {
			p.played += played
		}
		p.stream = nil
	}
	p.setSpeaking(false)

	if err != nil && !errors.Is(err, pipeline.ErrStopped) {
		p.log.Error("stream failed", "err", err)
	}

	// A track counts as played only when its stream ran to the end. Halts,
	// seeks, and rejoins produce new streams for the same track and must not
	// inflate the count.
	if err == nil {
		if cur := p.queue.Current(); cur != nil {
			p.tracksPlayed++
			p.deps.Metrics.RecordTrackPlayed(context.Background(), string(cur.Source))
		}
	}

	switch {
	case errors.Is(err, pipeline.ErrStopped):
		// A halt that somehow kept its generation; nothing to do.
		return
	case err == nil && p.loopCurrent:
		if serr := p.startCurrent(0); serr != nil {
			p.log.Error("loop restart", "err", serr)
		}
		return
	case err == nil && p.loopQueue:
		if cur := p.queue.Current(); cur != nil {
			p.queue.Enqueue(*cur, queue.End)
		}
	}

	p.queue.Advance(1)
	p.position = 0
	cur := p.queue.Current()
	if cur == nil {
		p.goIdle()
		return
	}
	if serr := p.startCurrent(0); serr != nil {
		p.log.Error("advance playback", "err", serr)
		return
	}
	p.announceAdvance(*cur)
}

// announceAdvance posts the new current track to its originating text
// channel when the guild opted in.
func (p *Player) announceAdvance(cur track.Queued) {
	if p.deps.Announce == nil || p.settings == nil || !p.settings.AutoAnnounceNextSong {
		return
	}
	if cur.ChannelID == "" {
		return
	}
	go p.deps.Announce(cur.ChannelID, cur)
}

// goIdle parks the player. The auto-disconnect timer is armed only when the
// queue has nothing left past the cursor; an idle pause between playable
// tracks keeps the connection.
func (p *Player) goIdle() {
	p.status = Idle
	p.setSpeaking(false)
	p.stopIdleTimer()
	if !p.queue.EmptyAfterCursor() {
		return
	}
	p.armAutoDisconnect()
}

// armAutoDisconnect schedules leaving the voice channel after the guild's
// idle delay. The timer fires unless playback has started again; it also
// covers the paused-because-alone state, so Paused does not cancel it.
func (p *Player) armAutoDisconnect() {
	p.stopIdleTimer()
	if p.conn == nil || p.settings == nil || !p.settings.AutoDisconnect {
		return
	}
	delay := p.settings.AutoDisconnectDelay
	p.idleTimer = time.AfterFunc(delay, func() {
		p.post(func() {
			if p.conn == nil || p.status == Playing || p.status == Loading {
				return
			}
			p.log.Info("auto-disconnect after idle", "delay", delay)
			if err := p.conn.Disconnect(); err != nil {
				p.log.Warn("auto-disconnect", "err", err)
			}
			p.deps.Metrics.ActiveVoiceConns.Add(context.Background(), -1)
			p.conn = nil
		})
	})
}

func (p *Player) stopIdleTimer() {
	if p.idleTimer != nil {
		p.idleTimer.Stop()
		p.idleTimer = nil
	}
}

func (p *Player) setSpeaking(on bool) {
	if p.conn == nil {
		return
	}
	if err := p.conn.Speaking(on); err != nil {
		p.log.Warn("speaking notification", "speaking", on, "err", err)
	}
}
