// Package media wraps the ffmpeg and ffprobe binaries for audio
// extraction and duration probing. Every helper degrades gracefully when
// the binaries are missing so the pipeline can still run against plain
// audio input.
package media

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultDuration is assumed when no probe method can measure the input.
const DefaultDuration = 60.0

var videoExtensions = []string{".mp4", ".avi", ".mov", ".mkv"}

// IsVideo reports whether the filename carries a known video extension.
func IsVideo(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, v := range videoExtensions {
		if ext == v {
			return true
		}
	}

	return false
}

// FFmpegAvailable reports whether the ffmpeg binary is on PATH.
func FFmpegAvailable() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// ExtractAudio transcodes the video's audio track into a 16 kHz mono WAV
// file next to the input and returns its path.
func ExtractAudio(ctx context.Context, videoPath string) (string, error) {
	audioPath := strings.TrimSuffix(videoPath, filepath.Ext(videoPath)) + ".wav"

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		audioPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("failed to extract audio from %s: %w: %s", filepath.Base(videoPath), err, truncate(string(out)))
	}

	return audioPath, nil
}

// Duration measures the media duration in seconds. It tries ffprobe
// first, falls back to reading WAV headers directly, and finally assumes
// DefaultDuration so downstream validation always has a bound.
func Duration(ctx context.Context, path string) float64 {
	if d, err := probeDuration(ctx, path); err == nil {
		return d
	} else {
		log.Printf("ffprobe unavailable for %s: %v", filepath.Base(path), err)
	}

	if strings.EqualFold(filepath.Ext(path), ".wav") {
		if d, err := wavDuration(path); err == nil {
			return d
		}
	}

	return DefaultDuration
}

func probeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("failed to probe %s: %w", filepath.Base(path), err)
	}

	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output %q: %w", strings.TrimSpace(string(out)), err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("non-positive duration %f for %s", d, filepath.Base(path))
	}

	return d, nil
}

// wavDuration derives duration from a canonical RIFF/WAVE header: data
// chunk size divided by byte rate.
func wavDuration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Error closing %s: %v", filepath.Base(path), err)
		}
	}()

	header := make([]byte, 44)
	if _, err := f.Read(header); err != nil {
		return 0, fmt.Errorf("failed to read WAV header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return 0, fmt.Errorf("%s is not a WAV file", filepath.Base(path))
	}

	byteRate := binary.LittleEndian.Uint32(header[28:32])
	dataSize := binary.LittleEndian.Uint32(header[40:44])
	if byteRate == 0 {
		return 0, fmt.Errorf("zero byte rate in %s", filepath.Base(path))
	}

	return float64(dataSize) / float64(byteRate), nil
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return s[:200]
	}

	return s
}
