package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/docsbase/backend/internal/config"
	"github.com/docsbase/backend/internal/crawler"
	"github.com/docsbase/backend/internal/database"
	"github.com/docsbase/backend/internal/docstore"
	"github.com/docsbase/backend/internal/embedding"
	"github.com/docsbase/backend/internal/ingest"
	"github.com/docsbase/backend/internal/llm"
	"github.com/docsbase/backend/internal/queue"
	"github.com/docsbase/backend/internal/queue/workers"
	"github.com/docsbase/backend/internal/vectorstore"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := docstore.NewPostgresStore(db)
	crawlClient := crawler.NewClient(cfg.Crawler)
	gateway := llm.NewGateway(cfg.LLM)
	embedder := embedding.NewService(gateway, cfg.LLM.EmbeddingModel, cfg.Ingest.EmbedBatchSize)
	index := vectorstore.NewPgVectorIndex(db)
	indexer := ingest.NewIndexer(embedder, index, cfg.Ingest)
	queueClient := queue.NewClient(cfg.Redis)
	defer queueClient.Close()

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			"critical": 6,
			"default":  3,
			"low":      1,
		},
	})

	reindexWorker := workers.NewReindexWorker(store, crawlClient, indexer)
	scanWorker := workers.NewReindexScanWorker(store, queueClient, 10*time.Minute)
	mux := queue.NewMux(
		asynq.HandlerFunc(reindexWorker.ProcessTask),
		asynq.HandlerFunc(scanWorker.ProcessTask),
	)

	scheduler := asynq.NewScheduler(redisOpt, nil)
	if _, err := scheduler.Register("@every 5m", asynq.NewTask(queue.TypeReindexScan, nil)); err != nil {
		slog.Error("failed to register reindex sweep", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := scheduler.Run(); err != nil {
			slog.Error("scheduler error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("starting worker", "concurrency", 10)
	if err := srv.Run(mux); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
