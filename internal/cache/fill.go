package cache

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// Fill downloads a remote stream, transcodes it to Opus-in-Ogg, and commits
// it under the given fingerprint. It runs independently of playback; when the
// slot is already held or the fingerprint is cached it does nothing.
func (c *Cache) Fill(ctx context.Context, fingerprint, originURL string) error {
	slot, ok := c.AcquireSlot(fingerprint)
	if !ok {
		return nil
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", originURL,
		"-vn",
		"-c:a", "libopus",
		"-f", "ogg",
		"-y", slot.Path(),
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		slot.Abandon()
		if msg := bytes.TrimSpace(stderr.Bytes()); len(msg) > 0 {
			return fmt.Errorf("cache: fill %s: %w: %s", fingerprint, err, msg)
		}
		return fmt.Errorf("cache: fill %s: %w", fingerprint, err)
	}

	if _, err := slot.Commit(ctx); err != nil {
		return err
	}
	return nil
}
