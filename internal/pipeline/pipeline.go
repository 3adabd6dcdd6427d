// Package pipeline turns a media input (local cache file or remote URL) into
// paced Opus packets on a sink channel. ffmpeg does the decoding, seeking,
// and optional loudness gain; this package reads its raw PCM output, applies
// the live volume ratio, encodes with Opus, and pushes frames downstream.
//
// A Stream plays exactly one input. The player opens a fresh Stream per
// track, seek, or resume; Stop tears the current one down promptly.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// frameDuration is the wall-clock audio time one Opus frame carries.
const frameDuration = frameSizeMs * time.Millisecond

// ErrStopped is the completion error reported when a stream was torn down by
// Stop rather than reaching the end of its input.
var ErrStopped = errors.New("pipeline: stopped")

// Volume is a 0–100 volume level shared between a player and its streams.
// The level survives stream restarts and adjusts playback live without
// reopening ffmpeg.
type Volume struct {
	percent atomic.Int64
}

// NewVolume returns a Volume set to the given percent, clamped to 0–100.
func NewVolume(percent int) *Volume {
	v := &Volume{}
	v.Set(percent)
	return v
}

// Set clamps percent to 0–100 and applies it.
func (v *Volume) Set(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	v.percent.Store(int64(percent))
}

// Get returns the current 0–100 level.
func (v *Volume) Get() int {
	return int(v.percent.Load())
}

// ratio is the linear amplitude multiplier for the current level.
func (v *Volume) ratio() float64 {
	return float64(v.percent.Load()) / 100
}

// Options configures one Stream.
type Options struct {
	// Input is a local file path or a remote media URL.
	Input string

	// Remote enables ffmpeg's HTTP reconnect handling for network inputs.
	Remote bool

	// Seek is the position in the input to start from.
	Seek time.Duration

	// Limit bounds how much audio is played from the seek point. Zero means
	// play to the end.
	Limit time.Duration

	// GainDB applies a constant loudness correction inside ffmpeg, e.g. a
	// normalisation hint from the resolver. Zero applies no filter.
	GainDB float64

	// Volume is the live volume control. Required.
	Volume *Volume

	// Sink receives the encoded Opus packets. The channel's consumer paces
	// the stream; the pipeline never drops frames. Required.
	Sink chan<- []byte

	// OnComplete is invoked exactly once when the stream finishes: nil on
	// natural end of input, ErrStopped after Stop, or the failure otherwise.
	// Required.
	OnComplete func(err error)
}

// Stream is one live ffmpeg-to-Opus pipeline.
type Stream struct {
	opts   Options
	src    io.ReadCloser
	kill   func()
	encode func(pcm []byte) ([]byte, error)

	framesSent atomic.Int64

	stop     chan struct{}
	stopOnce sync.Once
	doneOnce sync.Once
}

// Open validates opts, starts ffmpeg, and begins pumping frames to the sink
// in a background goroutine. The returned stream is already playing.
func Open(ctx context.Context, opts Options) (*Stream, error) {
	if opts.Input == "" {
		return nil, fmt.Errorf("pipeline: input required")
	}
	if opts.Sink == nil || opts.OnComplete == nil || opts.Volume == nil {
		return nil, fmt.Errorf("pipeline: sink, volume, and completion callback required")
	}

	enc, err := newOpusEncoder()
	if err != nil {
		return nil, err
	}
	src, kill, err := startFFmpeg(ctx, opts)
	if err != nil {
		return nil, err
	}

	s := newStream(opts, src, kill, enc.encode)
	go s.pump()
	return s, nil
}

// newStream wires a stream around an arbitrary PCM source. Split from Open
// so the pump loop is testable without ffmpeg.
func newStream(opts Options, src io.ReadCloser, kill func(), encode func([]byte) ([]byte, error)) *Stream {
	return &Stream{
		opts:   opts,
		src:    src,
		kill:   kill,
		encode: encode,
		stop:   make(chan struct{}),
	}
}

// Position returns the logical playback position: the seek point plus the
// audio time already delivered to the sink.
func (s *Stream) Position() time.Duration {
	return s.opts.Seek + time.Duration(s.framesSent.Load())*frameDuration
}

// Stop tears the stream down promptly. OnComplete fires with ErrStopped
// unless the stream already completed. Safe to call more than once.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		// Unblock a pump stuck in a pipe read.
		if s.kill != nil {
			s.kill()
		}
		_ = s.src.Close()
	})
}

// complete reports the stream outcome exactly once and releases the source.
func (s *Stream) complete(err error) {
	s.doneOnce.Do(func() {
		if s.kill != nil {
			s.kill()
		}
		_ = s.src.Close()
		s.opts.OnComplete(err)
	})
}

// pump reads fixed-size PCM frames from the source, scales them by the live
// volume, encodes, and sends to the sink until EOF or Stop.
func (s *Stream) pump() {
	buf := make([]byte, frameBytes)
	for {
		select {
		case <-s.stop:
			s.complete(ErrStopped)
			return
		default:
		}

		n, err := io.ReadFull(s.src, buf)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			if errors.Is(err, io.EOF) {
				s.complete(nil)
			} else {
				select {
				case <-s.stop:
					s.complete(ErrStopped)
				default:
					s.complete(fmt.Errorf("pipeline: read pcm: %w", err))
				}
			}
			return
		}
		last := errors.Is(err, io.ErrUnexpectedEOF)
		if last {
			// Pad the trailing partial frame with silence.
			for i := n; i < frameBytes; i++ {
				buf[i] = 0
			}
		}

		scaleFrame(buf, s.opts.Volume.ratio())
		packet, encErr := s.encode(buf)
		if encErr != nil {
			s.complete(encErr)
			return
		}

		select {
		case s.opts.Sink <- packet:
			s.framesSent.Add(1)
		case <-s.stop:
			s.complete(ErrStopped)
			return
		}

		if last {
			s.complete(nil)
			return
		}
	}
}
