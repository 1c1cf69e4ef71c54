package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Vicentaelm/SubtitleMaster/internal/config"
	"github.com/Vicentaelm/SubtitleMaster/internal/media"
	"github.com/Vicentaelm/SubtitleMaster/internal/notify"
	"github.com/Vicentaelm/SubtitleMaster/internal/pipeline"
	"github.com/Vicentaelm/SubtitleMaster/internal/queue"
	"github.com/Vicentaelm/SubtitleMaster/internal/repository"
	"github.com/Vicentaelm/SubtitleMaster/internal/storage"
	"github.com/Vicentaelm/SubtitleMaster/internal/transcribe"
	"github.com/Vicentaelm/SubtitleMaster/internal/worker"
)

func main() {
	cfg := config.Load()

	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	repo, err := repository.NewPostgresTaskRepository(cfg.PostgresDSN)
	if err != nil {
		log.Fatal(err)
	}

	defer func() {
		if err := repo.Close(); err != nil {
			log.Printf("failed to close Postgres repository: %v", err)
		}
	}()

	q, err := queue.NewQueue(cfg.RedisAddr)
	if err != nil {
		log.Fatal(err)
	}

	defer func() {
		if err := q.Close(); err != nil {
			log.Printf("failed to close queue: %v", err)
		}
	}()

	if !media.FFmpegAvailable() {
		log.Println("ffmpeg not found in PATH, video inputs will be transcribed without audio extraction")
	}

	var notifier pipeline.Notifier
	if cfg.SendGridAPIKey != "" && cfg.FromAddress != "" {
		notifier = notify.NewEmailNotifier(cfg.SendGridAPIKey, cfg.FromName, cfg.FromAddress)
	}

	store := storage.NewClient(cfg.StorageAPIBase)
	p := pipeline.New(repo, store, transcribe.NewSampleEngine(), q, notifier)

	workers := make([]*worker.Worker, 0, cfg.WorkerCount)
	for i := 0; i < cfg.WorkerCount; i++ {
		id := fmt.Sprintf("worker-%d-%d", time.Now().Unix(), i)
		w := worker.NewWorker(id, q, p)
		workers = append(workers, w)
		go w.Start()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down workers...")
	for _, w := range workers {
		w.Stop()
	}
}
