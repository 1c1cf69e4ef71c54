// Package worker provides the background processor that consumes pending
// task IDs from the queue and runs them through the pipeline.
package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/Vicentaelm/SubtitleMaster/internal/queue"
)

// Runner executes a single claimed task. The pipeline satisfies this.
type Runner interface {
	Run(ctx context.Context, taskID string) error
}

// Source yields pending task IDs. queue.Queue satisfies this.
type Source interface {
	Dequeue(ctx context.Context) (string, error)
}

type Worker struct {
	id           string
	source       Source
	runner       Runner
	stop         chan bool
	pollInterval time.Duration
}

func NewWorker(id string, source Source, runner Runner) *Worker {
	return &Worker{
		id:           id,
		source:       source,
		runner:       runner,
		stop:         make(chan bool),
		pollInterval: time.Second,
	}
}

func (w *Worker) SetPollInterval(d time.Duration) {
	w.pollInterval = d
}

func (w *Worker) Start() {
	log.Printf("Worker %s started", w.id)

	ctx := context.Background()
	for {
		select {
		case <-w.stop:
			log.Printf("Worker %s stopped", w.id)
			return
		default:
			taskID, err := w.source.Dequeue(ctx)
			if errors.Is(err, queue.ErrEmpty) {
				time.Sleep(w.pollInterval)
				continue
			}
			if err != nil {
				log.Printf("Worker %s failed to dequeue: %v", w.id, err)
				time.Sleep(w.pollInterval)
				continue
			}

			w.processTask(ctx, taskID)
		}
	}
}

// processTask never panics the loop; the pipeline records failures on
// the task itself.
func (w *Worker) processTask(ctx context.Context, taskID string) {
	log.Printf("Worker %s processing task %s", w.id, taskID)

	if err := w.runner.Run(ctx, taskID); err != nil {
		log.Printf("Worker %s: task %s failed: %v", w.id, taskID, err)
		return
	}

	log.Printf("Worker %s: task %s done", w.id, taskID)
}

func (w *Worker) Stop() {
	w.stop <- true
}
