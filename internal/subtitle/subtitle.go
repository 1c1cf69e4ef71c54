// Package subtitle contains the transcription segment model and the pure
// formatting functions that render segments as SRT, VTT or plain text.
package subtitle

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Segment is one timed span of transcribed text. Start and End are seconds
// from the beginning of the audio.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

var (
	ErrNoSegments      = errors.New("transcription produced no segments")
	ErrInvalidSegments = errors.New("transcription produced an invalid segment list")
)

// durationSlack absorbs rounding at the tail of the audio; engines routinely
// report the last segment a fraction of a second past the probed duration.
const durationSlack = 0.5

// Validate checks that the segment list is non-empty and that every segment
// satisfies 0 <= start <= end <= duration. Text content is not inspected.
func Validate(segments []Segment, duration float64) error {
	if len(segments) == 0 {
		return ErrNoSegments
	}

	for i, seg := range segments {
		if seg.Start < 0 || seg.End < seg.Start {
			return fmt.Errorf("%w: segment %d has start=%.3f end=%.3f", ErrInvalidSegments, i, seg.Start, seg.End)
		}
		if duration > 0 && seg.End > duration+durationSlack {
			return fmt.Errorf("%w: segment %d ends at %.3f beyond duration %.3f", ErrInvalidSegments, i, seg.End, duration)
		}
	}

	return nil
}

// Format renders segments in the requested format. Supported kinds are
// "srt", "vtt" and "txt".
func Format(w io.Writer, segments []Segment, kind string) error {
	switch kind {
	case "srt":
		return writeSRT(w, segments)
	case "vtt":
		return writeVTT(w, segments)
	case "txt":
		return writeTXT(w, segments)
	default:
		return fmt.Errorf("unsupported subtitle format: %s", kind)
	}
}

func writeSRT(w io.Writer, segments []Segment) error {
	for i, seg := range segments {
		_, err := fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n",
			i+1,
			Timestamp(seg.Start, false),
			Timestamp(seg.End, false),
			strings.TrimSpace(seg.Text),
		)
		if err != nil {
			return err
		}
	}

	return nil
}

func writeVTT(w io.Writer, segments []Segment) error {
	if _, err := fmt.Fprint(w, "WEBVTT\n\n"); err != nil {
		return err
	}

	for i, seg := range segments {
		_, err := fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n",
			i+1,
			Timestamp(seg.Start, true),
			Timestamp(seg.End, true),
			strings.TrimSpace(seg.Text),
		)
		if err != nil {
			return err
		}
	}

	return nil
}

func writeTXT(w io.Writer, segments []Segment) error {
	for _, seg := range segments {
		if _, err := fmt.Fprintf(w, "%s\n", strings.TrimSpace(seg.Text)); err != nil {
			return err
		}
	}

	return nil
}

// Timestamp converts seconds to HH:MM:SS,mmm; VTT uses a dot separator
// instead of a comma.
func Timestamp(seconds float64, vtt bool) string {
	hours := int(seconds / 3600)
	minutes := int(seconds/60) % 60
	secs := seconds - float64(hours*3600) - float64(minutes*60)

	ts := fmt.Sprintf("%02d:%02d:%06.3f", hours, minutes, secs)
	if !vtt {
		ts = strings.Replace(ts, ".", ",", 1)
	}

	return ts
}
