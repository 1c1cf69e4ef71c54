package main

import (
	"context"
	"log"
	"time"

	"github.com/Vicentaelm/SubtitleMaster/internal/metrics"
	"github.com/Vicentaelm/SubtitleMaster/internal/queue"
	"github.com/Vicentaelm/SubtitleMaster/internal/repository"
)

func startMetricsCollector(repo repository.TaskRepository, q *queue.Queue) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		updateTaskMetrics(repo, q)
	}
}

func updateTaskMetrics(repo repository.TaskRepository, q *queue.Queue) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	counts, err := repo.CountByStatus(ctx)
	if err != nil {
		log.Printf("Failed to count tasks for metrics: %v", err)
		return
	}

	byStatus := make(map[string]int, len(counts))
	for status, count := range counts {
		byStatus[string(status)] = count
	}
	metrics.UpdateStatusGauges(byStatus)

	depth, err := q.PendingDepth(ctx)
	if err != nil {
		log.Printf("Failed to read queue depth for metrics: %v", err)
		return
	}
	metrics.UpdateQueueDepth(depth)
}
