package pipeline

import (
	"fmt"

	"layeh.com/gopus"
)

// Discord voice uses 48 kHz stereo Opus at 20 ms frame size.
const (
	sampleRate  = 48000
	channels    = 2
	frameSizeMs = 20
	// frameSamples is the number of samples per channel per 20 ms frame.
	frameSamples = sampleRate * frameSizeMs / 1000 // 960
	// frameBytes is the exact PCM input size for one Opus frame:
	// 960 samples/channel × 2 channels × 2 bytes/sample.
	frameBytes = frameSamples * channels * 2 // 3840
)

// opusEncoder wraps a gopus Opus encoder for the outgoing stream.
type opusEncoder struct {
	enc *gopus.Encoder
}

// newOpusEncoder creates a new Opus encoder configured for Discord audio.
func newOpusEncoder() (*opusEncoder, error) {
	enc, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("pipeline: create opus encoder: %w", err)
	}
	return &opusEncoder{enc: enc}, nil
}

// encode encodes interleaved PCM int16 data (as bytes, little-endian) into an
// Opus packet.
func (e *opusEncoder) encode(pcmBytes []byte) ([]byte, error) {
	pcm := bytesToInt16s(pcmBytes)
	opus, err := e.enc.Encode(pcm, frameSamples, len(pcmBytes))
	if err != nil {
		return nil, fmt.Errorf("pipeline: opus encode: %w", err)
	}
	return opus, nil
}

// bytesToInt16s converts little-endian bytes to a slice of int16 PCM samples.
func bytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}

// scaleFrame multiplies every sample in a little-endian int16 PCM frame by
// ratio, clamping at the int16 range. ratio 1 leaves the frame untouched.
func scaleFrame(frame []byte, ratio float64) {
	if ratio == 1 {
		return
	}
	for i := 0; i+1 < len(frame); i += 2 {
		s := int16(frame[i]) | int16(frame[i+1])<<8
		v := float64(s) * ratio
		switch {
		case v > 32767:
			v = 32767
		case v < -32768:
			v = -32768
		}
		out := int16(v)
		frame[i] = byte(out)
		frame[i+1] = byte(out >> 8)
	}
}
