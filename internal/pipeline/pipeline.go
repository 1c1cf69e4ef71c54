// Package pipeline runs a claimed task through the full subtitle flow:
// download the input, extract audio, transcribe, format, and upload the
// result. Each stage failure marks the task failed with a message the
// owner can read back.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Vicentaelm/SubtitleMaster/internal/media"
	"github.com/Vicentaelm/SubtitleMaster/internal/metrics"
	"github.com/Vicentaelm/SubtitleMaster/internal/queue"
	"github.com/Vicentaelm/SubtitleMaster/internal/repository"
	"github.com/Vicentaelm/SubtitleMaster/internal/storage"
	"github.com/Vicentaelm/SubtitleMaster/internal/subtitle"
	"github.com/Vicentaelm/SubtitleMaster/internal/task"
	"github.com/Vicentaelm/SubtitleMaster/internal/transcribe"
)

// DefaultRunTimeout bounds a single task end to end, download included.
const DefaultRunTimeout = 30 * time.Minute

const (
	progressDownloadingInput = "Downloading input file..."
	progressDownloadingMedia = "Downloading media file..."
	progressTranscribing     = "Transcribing audio..."
	progressUploading        = "Uploading subtitles..."
	progressDone             = "Done"
)

// Storage is the slice of the remote store the pipeline needs.
type Storage interface {
	ResolveDownloadURL(ctx context.Context, fileID string) string
	Download(ctx context.Context, url string, w io.Writer) error
	UploadFile(ctx context.Context, path, filename string) (*storage.Handle, error)
}

// StatusSink mirrors transitions into the live status cache. Nil sinks
// are skipped.
type StatusSink interface {
	SetStatus(ctx context.Context, taskID string, entry queue.StatusEntry) error
}

// Notifier is told about finished tasks. Failures are logged, never
// propagated.
type Notifier interface {
	TaskFinished(ctx context.Context, t *task.Task) error
}

type Pipeline struct {
	repo     repository.TaskRepository
	store    Storage
	engine   transcribe.Transcriber
	status   StatusSink
	notifier Notifier
	timeout  time.Duration
}

func New(repo repository.TaskRepository, store Storage, engine transcribe.Transcriber, status StatusSink, notifier Notifier) *Pipeline {
	return &Pipeline{
		repo:     repo,
		store:    store,
		engine:   engine,
		status:   status,
		notifier: notifier,
		timeout:  DefaultRunTimeout,
	}
}

// Run claims and processes a single task. A task already claimed by
// another worker is skipped without error. Any stage failure marks the
// task failed and returns the stage error.
func (p *Pipeline) Run(ctx context.Context, taskID string) error {
	err := p.repo.MarkProcessing(ctx, taskID, progressDownloadingInput)
	if errors.Is(err, repository.ErrAlreadyClaimed) {
		log.Printf("Task %s already claimed, skipping", taskID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to claim task %s: %w", taskID, err)
	}

	t, err := p.repo.GetTask(ctx, taskID)
	if err != nil {
		// The claim already flipped the task to processing; without a
		// record to work from it would stay there forever.
		message := "internal error: task record could not be loaded"
		if failErr := p.repo.FailTask(ctx, taskID, message); failErr != nil {
			log.Printf("Task %s claimed but could not be loaded or failed: %v", taskID, failErr)
		}
		p.mirrorStatus(ctx, taskID, task.StatusFailed, "", message)
		return fmt.Errorf("failed to load task %s: %w", taskID, err)
	}

	metrics.TasksInFlight.Inc()
	defer metrics.TasksInFlight.Dec()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.mirrorStatus(ctx, taskID, task.StatusProcessing, progressDownloadingInput, "")

	if err := p.process(ctx, t); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("task exceeded the %s processing deadline", p.timeout)
		}
		p.fail(context.WithoutCancel(ctx), t, err)
		return err
	}

	return nil
}

func (p *Pipeline) process(ctx context.Context, t *task.Task) error {
	workDir, err := os.MkdirTemp("", "subtitle-task-")
	if err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			log.Printf("Error removing work directory %s: %v", workDir, err)
		}
	}()

	inputPath, err := p.downloadInput(ctx, t, workDir)
	if err != nil {
		return err
	}

	audioPath := inputPath
	if media.IsVideo(t.OriginalFilename) && media.FFmpegAvailable() {
		audioPath, err = timed("extract_audio", func() (string, error) {
			return media.ExtractAudio(ctx, inputPath)
		})
		if err != nil {
			return err
		}
	}

	p.setProgress(ctx, t.ID, progressTranscribing)

	result, err := timed("transcribe", func() (*transcribe.Result, error) {
		return p.engine.Transcribe(ctx, audioPath, transcribe.Options{
			SourceLanguage: t.Params.SourceLanguage,
			TargetLanguage: t.Params.TargetLanguage,
			ModelTier:      t.Params.ModelTier,
		})
	})
	if err != nil {
		return fmt.Errorf("transcription failed: %w", err)
	}

	if err := subtitle.Validate(result.Segments, media.Duration(ctx, audioPath)); err != nil {
		return fmt.Errorf("transcription produced unusable segments: %w", err)
	}

	outputFilename := subtitleFilename(t.OriginalFilename, t.Params.Format)
	subtitlePath := filepath.Join(workDir, outputFilename)

	var buf bytes.Buffer
	if err := subtitle.Format(&buf, result.Segments, t.Params.Format); err != nil {
		return fmt.Errorf("failed to format subtitles: %w", err)
	}
	if err := os.WriteFile(subtitlePath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write subtitle file: %w", err)
	}

	p.setProgress(ctx, t.ID, progressUploading)

	handle, err := timed("upload_output", func() (*storage.Handle, error) {
		return p.store.UploadFile(ctx, subtitlePath, outputFilename)
	})
	if err != nil {
		return fmt.Errorf("failed to upload subtitles: %w", err)
	}

	if err := p.repo.CompleteTask(ctx, t.ID, handle.FileID, handle.Link, outputFilename); err != nil {
		return fmt.Errorf("failed to record completion: %w", err)
	}

	p.mirrorStatus(ctx, t.ID, task.StatusCompleted, progressDone, "")
	metrics.RecordTaskCompleted(t.Params.Format)
	log.Printf("Task %s completed: %s -> %s", t.ID, t.OriginalFilename, outputFilename)

	p.notify(ctx, t.ID)

	return nil
}

func (p *Pipeline) downloadInput(ctx context.Context, t *task.Task, workDir string) (string, error) {
	p.setProgress(ctx, t.ID, progressDownloadingMedia)

	url := p.store.ResolveDownloadURL(ctx, t.InputFileID)

	inputPath := filepath.Join(workDir, filepath.Base(t.OriginalFilename))
	f, err := os.Create(inputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create input file: %w", err)
	}

	start := time.Now()
	err = p.store.Download(ctx, url, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("failed to download input: %w", err)
	}
	metrics.RecordStageDuration("download", time.Since(start))

	return inputPath, nil
}

func (p *Pipeline) fail(ctx context.Context, t *task.Task, cause error) {
	message := cause.Error()
	if err := p.repo.FailTask(ctx, t.ID, message); err != nil {
		log.Printf("Failed to mark task %s failed: %v", t.ID, err)
	}

	p.mirrorStatus(ctx, t.ID, task.StatusFailed, "", message)
	metrics.RecordTaskFailed(t.Params.Format)
	log.Printf("Task %s failed: %v", t.ID, cause)

	p.notify(ctx, t.ID)
}

func (p *Pipeline) setProgress(ctx context.Context, taskID, progress string) {
	if err := p.repo.SetProgress(ctx, taskID, progress); err != nil {
		log.Printf("Failed to update progress for task %s: %v", taskID, err)
	}

	p.mirrorStatus(ctx, taskID, task.StatusProcessing, progress, "")
}

func (p *Pipeline) mirrorStatus(ctx context.Context, taskID string, status task.TaskStatus, progress, message string) {
	if p.status == nil {
		return
	}

	entry := queue.StatusEntry{Status: status, Progress: progress, Message: message}
	if err := p.status.SetStatus(ctx, taskID, entry); err != nil {
		log.Printf("Failed to cache status for task %s: %v", taskID, err)
	}
}

func (p *Pipeline) notify(ctx context.Context, taskID string) {
	if p.notifier == nil {
		return
	}

	t, err := p.repo.GetTask(ctx, taskID)
	if err != nil {
		log.Printf("Failed to reload task %s for notification: %v", taskID, err)
		return
	}

	if err := p.notifier.TaskFinished(ctx, t); err != nil {
		log.Printf("Failed to send notification for task %s: %v", taskID, err)
	}
}

// timed wraps a stage call with a duration metric.
func timed[T any](stage string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	if err == nil {
		metrics.RecordStageDuration(stage, time.Since(start))
	}

	return v, err
}

func subtitleFilename(original, format string) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	return base + "." + format
}
