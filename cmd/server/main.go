package main

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Vicentaelm/SubtitleMaster/internal/api"
	"github.com/Vicentaelm/SubtitleMaster/internal/config"
	"github.com/Vicentaelm/SubtitleMaster/internal/middleware"
	"github.com/Vicentaelm/SubtitleMaster/internal/queue"
	"github.com/Vicentaelm/SubtitleMaster/internal/quota"
	"github.com/Vicentaelm/SubtitleMaster/internal/repository"
	"github.com/Vicentaelm/SubtitleMaster/internal/storage"
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

	membership, err := quota.LoadMembership(cfg.MembershipFile)
	if err != nil {
		log.Printf("Failed to load membership file %s: %v, all users on the free tier", cfg.MembershipFile, err)
		membership = quota.NewMembership(nil)
	}

	store := storage.NewClient(cfg.StorageAPIBase)
	engine := quota.NewEngine(membership, repo)
	apiHandler := api.NewAPI(repo, store, engine, q)

	go startMetricsCollector(repo, q)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", middleware.MetricsMiddleware(apiHandler))

	log.Printf("Server starting on :%s", cfg.Port)
	log.Printf("Connected to Redis at %s", cfg.RedisAddr)

	if err := http.ListenAndServe(":"+cfg.Port, mux); err != nil {
		log.Fatal(err)
	}
}
