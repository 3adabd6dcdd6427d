package pipeline

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
)

// ffmpegArgs builds the decode command line: seek and reconnect flags before
// the input, then raw signed 16-bit little-endian stereo PCM at 48 kHz on
// stdout.
func ffmpegArgs(opts Options) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if opts.Remote {
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
		)
	}
	if opts.Seek > 0 {
		args = append(args, "-ss", formatSeconds(opts.Seek.Seconds()))
	}
	args = append(args, "-i", opts.Input, "-vn")
	if opts.Limit > 0 {
		args = append(args, "-to", formatSeconds(opts.Limit.Seconds()))
	}
	if opts.GainDB != 0 {
		args = append(args, "-af", fmt.Sprintf("volume=%.1fdB", opts.GainDB))
	}
	args = append(args,
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"pipe:1",
	)
	return args
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

// startFFmpeg launches the decoder process and returns its PCM stdout plus a
// kill function that is safe to call more than once.
func startFFmpeg(ctx context.Context, opts Options) (io.ReadCloser, func(), error) {
	cmd := exec.CommandContext(ctx, "ffmpeg", ffmpegArgs(opts)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("pipeline: start ffmpeg: %w", err)
	}

	kill := func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		// Wait reaps the process; errors after a kill are expected.
		_ = cmd.Wait()
	}
	return stdout, kill, nil
}
