package transcribe

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vicentaelm/SubtitleMaster/internal/media"
	"github.com/Vicentaelm/SubtitleMaster/internal/subtitle"
)

// The sample engine probes a nonexistent path, so durations land on
// media.DefaultDuration and segment math is deterministic.
func sampleRun(t *testing.T, opts Options) *Result {
	t.Helper()

	result, err := NewSampleEngine().Transcribe(context.Background(), "missing.wav", opts)
	require.NoError(t, err)

	return result
}

func TestSampleEngineSegments(t *testing.T) {
	result := sampleRun(t, Options{SourceLanguage: "auto", ModelTier: "base"})

	wantCount := 10
	if media.DefaultDuration/sampleSegmentSeconds < float64(wantCount) {
		wantCount = int(media.DefaultDuration / sampleSegmentSeconds)
	}
	require.Len(t, result.Segments, wantCount)

	require.NoError(t, subtitle.Validate(result.Segments, media.DefaultDuration))
	assert.Equal(t, 0.0, result.Segments[0].Start)
	assert.InDelta(t, media.DefaultDuration, result.Segments[len(result.Segments)-1].End, 0.001)

	for i, seg := range result.Segments {
		assert.Contains(t, seg.Text, "This is sample text segment")
		if i > 0 {
			assert.Equal(t, result.Segments[i-1].End, seg.Start)
		}
	}
}

func TestSampleEngineLanguages(t *testing.T) {
	cases := []struct {
		name         string
		opts         Options
		wantLanguage string
		wantText     string
	}{
		{"auto defaults to english", Options{SourceLanguage: "auto"}, "en", "This is sample text"},
		{"spanish source", Options{SourceLanguage: "es"}, "es", "Este es un segmento"},
		{"french source", Options{SourceLanguage: "fr"}, "fr", "C'est un exemple"},
		{"translation to german", Options{SourceLanguage: "en", TargetLanguage: "de"}, "de", "Dies ist ein"},
		{"translation to english", Options{SourceLanguage: "es", TargetLanguage: "en"}, "en", "This is sample text"},
		{"same means no translation", Options{SourceLanguage: "es", TargetLanguage: "same"}, "es", "Este es un segmento"},
		{"unknown language tagged", Options{SourceLanguage: "ja"}, "ja", "[ja] Sample text"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := sampleRun(t, tc.opts)
			assert.Equal(t, tc.wantLanguage, result.Language)
			require.NotEmpty(t, result.Segments)
			assert.True(t, strings.HasPrefix(result.Segments[0].Text, tc.wantText),
				"got %q", result.Segments[0].Text)
		})
	}
}

func TestSampleEngineCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSampleEngine().Transcribe(ctx, "missing.wav", Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
