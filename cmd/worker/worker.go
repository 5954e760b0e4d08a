package main

import (
	"context"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"web-research-assistant/internal/ai"
	"web-research-assistant/internal/config"
	"web-research-assistant/internal/index"
	"web-research-assistant/internal/logger"
	"web-research-assistant/internal/queue"
	"web-research-assistant/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	ctx := context.Background()

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Worker requires Redis:", err)
	}

	embedder, err := ai.NewGeminiEmbedder(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to init embedder:", err)
	}
	defer embedder.Close()
	cachedEmbedder := services.NewCachedEmbedder(embedder, rdb, 24*time.Hour)

	// The worker maintains its own in-memory view; the API reloads from the
	// store, which both processes write through.
	ix := index.New(embedder.ModelVersion(), embedder.Dimension())
	store := index.NewMongoStore(db)
	if _, err := store.LoadInto(ctx, ix); err != nil {
		log.Fatal("Failed to load index:", err)
	}

	chunker, err := services.NewChunkingService(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatal("Invalid chunking config:", err)
	}
	ingestion := services.NewIngestionService(chunker, cachedEmbedder, ix, store,
		cfg.EmbedBatchSize, cfg.EmbedConcurrency)

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				queue.QueueIngest: 8,
				"default":         2,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(ingestion, cfg.CrawlTimeout)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskCrawlSource, processor.HandleCrawlSource)

	logger.Info("starting ingestion worker", "redis", cfg.RedisURL)
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
