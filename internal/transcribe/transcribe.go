// Package transcribe turns audio into timed subtitle segments. The
// production engine is pluggable behind the Transcriber interface; the
// bundled SampleEngine generates deterministic placeholder segments so
// the full pipeline can run without a speech model installed.
package transcribe

import (
	"context"
	"fmt"
	"log"

	"github.com/Vicentaelm/SubtitleMaster/internal/media"
	"github.com/Vicentaelm/SubtitleMaster/internal/subtitle"
)

// Options carries the language and model selection for a run.
type Options struct {
	SourceLanguage string
	TargetLanguage string
	ModelTier      string
}

// Result is a completed transcription with the language it resolved to.
type Result struct {
	Segments []subtitle.Segment
	Language string
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error)
}

const (
	maxSampleSegments    = 10
	sampleSegmentSeconds = 6.0
)

// SampleEngine produces evenly spaced placeholder segments sized to the
// audio duration.
type SampleEngine struct{}

func NewSampleEngine() *SampleEngine {
	return &SampleEngine{}
}

func (e *SampleEngine) Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	duration := media.Duration(ctx, audioPath)
	log.Printf("Generating sample transcription (model: %s, duration: %.1fs)", opts.ModelTier, duration)

	count := int(duration / sampleSegmentSeconds)
	if count > maxSampleSegments {
		count = maxSampleSegments
	}
	if count < 1 {
		count = 1
	}

	segmentDuration := duration / float64(count)
	segments := make([]subtitle.Segment, 0, count)
	for i := 0; i < count; i++ {
		segments = append(segments, subtitle.Segment{
			Start: float64(i) * segmentDuration,
			End:   float64(i+1) * segmentDuration,
			Text:  sampleText(opts.SourceLanguage, opts.TargetLanguage, i+1),
		})
	}

	language := opts.SourceLanguage
	if language == "" || language == "auto" {
		language = "en"
	}
	if translated(opts.SourceLanguage, opts.TargetLanguage) {
		language = opts.TargetLanguage
	}

	return &Result{Segments: segments, Language: language}, nil
}

func translated(source, target string) bool {
	if target == "" || target == "same" {
		return false
	}
	if source == "" || source == "auto" {
		source = "en"
	}

	return target != source
}

// sampleText mirrors what a real model would emit: text in the source
// language, or in the target language when translation is requested.
func sampleText(source, target string, n int) string {
	language := source
	if language == "" || language == "auto" {
		language = "en"
	}
	if translated(source, target) {
		language = target
	}

	switch language {
	case "en":
		return fmt.Sprintf("This is sample text segment %d.", n)
	case "es":
		return fmt.Sprintf("Este es un segmento de texto de muestra %d.", n)
	case "fr":
		return fmt.Sprintf("C'est un exemple de segment de texte %d.", n)
	case "de":
		return fmt.Sprintf("Dies ist ein Beispieltextsegment %d.", n)
	default:
		return fmt.Sprintf("[%s] Sample text segment %d.", language, n)
	}
}
