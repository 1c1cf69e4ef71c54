package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsVideo(t *testing.T) {
	cases := []struct {
		filename string
		want     bool
	}{
		{"lecture.mp4", true},
		{"lecture.MKV", true},
		{"clip.mov", true},
		{"old.avi", true},
		{"podcast.mp3", false},
		{"audio.wav", false},
		{"noext", false},
	}

	for _, tc := range cases {
		t.Run(tc.filename, func(t *testing.T) {
			assert.Equal(t, tc.want, IsVideo(tc.filename))
		})
	}
}

// writeWAV writes a canonical 44-byte RIFF header plus silence amounting
// to the given duration at 16 kHz mono 16-bit.
func writeWAV(t *testing.T, path string, seconds float64) {
	t.Helper()

	const byteRate = 16000 * 2
	dataSize := uint32(seconds * byteRate)

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(16000))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataSize)
	buf.Write(make([]byte, dataSize))

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestWavDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.wav")
	writeWAV(t, path, 2.5)

	d, err := wavDuration(path)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, d, 0.01)
}

func TestWavDurationRejectsNonWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.wav")
	require.NoError(t, os.WriteFile(path, make([]byte, 64), 0o644))

	_, err := wavDuration(path)
	assert.Error(t, err)
}

func TestDurationFallsBackToDefault(t *testing.T) {
	if _, err := exec.LookPath("ffprobe"); err == nil {
		t.Skip("ffprobe installed, fallback path not reachable")
	}

	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("not media"), 0o644))

	assert.Equal(t, DefaultDuration, Duration(context.Background(), path))
}
