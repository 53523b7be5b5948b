// Package audio converts downloaded voice notes into a format the
// speech-to-text endpoint accepts.
package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Available reports whether ffmpeg can be found on PATH.
func Available() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

func convertArgs(src, dst string) []string {
	return []string{
		"-i", src,
		"-f", "mp3",
		"-acodec", "libmp3lame",
		"-ac", "1",
		"-ar", "16000",
		"-y",
		dst,
	}
}

// Convert transcodes src into a mono 16 kHz mp3 at dst using ffmpeg.
// Callers should fall back to uploading the original file when this fails.
func Convert(ctx context.Context, src, dst string) error {
	if strings.TrimSpace(src) == "" || strings.TrimSpace(dst) == "" {
		return fmt.Errorf("audio: missing src or dst path")
	}
	if !Available() {
		return fmt.Errorf("audio: ffmpeg not found in PATH")
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", convertArgs(src, dst)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 512 {
			detail = detail[len(detail)-512:]
		}
		if detail != "" {
			return fmt.Errorf("audio: ffmpeg: %w: %s", err, detail)
		}
		return fmt.Errorf("audio: ffmpeg: %w", err)
	}
	return nil
}
