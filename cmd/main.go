package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"web-research-assistant/internal/ai"
	"web-research-assistant/internal/config"
	"web-research-assistant/internal/crawler"
	"web-research-assistant/internal/index"
	"web-research-assistant/internal/logger"
	"web-research-assistant/internal/telemetry"
	"web-research-assistant/middleware"
	"web-research-assistant/routes"
	"web-research-assistant/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer("web-research-assistant", cfg.OTLPEndpoint)
		if err != nil {
			logger.Warn("tracing disabled", "error", err)
		} else {
			defer shutdown()
		}
	}
	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to init metrics:", err)
	}

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

	// Redis backs the embedding cache, rate limiting and the task queue.
	// The API degrades to inline ingestion without it.
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		logger.Warn("redis unavailable, running without cache, rate limits and queue", "error", err)
		rdb = nil
	}

	embedder, err := ai.NewGeminiEmbedder(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to init embedder:", err)
	}
	defer embedder.Close()

	generator, err := ai.NewGeminiGenerator(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to init generator:", err)
	}
	defer generator.Close()

	cachedEmbedder := services.NewCachedEmbedder(embedder, rdb, 24*time.Hour)

	// Rebuild the in-memory index from persisted records.
	ix := index.New(embedder.ModelVersion(), embedder.Dimension())
	store := index.NewMongoStore(db)
	loaded, err := store.LoadInto(ctx, ix)
	if err != nil {
		log.Fatal("Failed to load index:", err)
	}
	logger.Info("index loaded", "records", loaded,
		"documents", ix.DocumentCount(), "model_version", ix.ModelVersion())

	chunker, err := services.NewChunkingService(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatal("Invalid chunking config:", err)
	}
	ingestion := services.NewIngestionService(chunker, cachedEmbedder, ix, store,
		cfg.EmbedBatchSize, cfg.EmbedConcurrency).WithMetrics(metrics)
	retriever := services.NewRetriever(cachedEmbedder, ix, cfg.OversampleFactor)
	answers := services.NewAnswerService(retriever, services.NewContextAssembler(), generator,
		cfg.TopK, cfg.MinScore, cfg.MaxContextChars, cfg.GenerateTimeout)

	// Periodic refresh keeps the index tracking source changes: every
	// interval, each stored page is re-fetched and re-ingested in place.
	if cfg.RefreshInterval > 0 {
		sched := crawler.NewScheduler()
		err := sched.ScheduleRefresh("all-sources", cfg.RefreshInterval, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.RefreshInterval)
			defer cancel()
			return refreshSources(ctx, cfg, store, ingestion)
		})
		if err != nil {
			logger.Warn("refresh scheduling failed", "error", err)
		} else {
			sched.Start()
			defer sched.Stop()
		}
	}

	var queueClient *asynq.Client
	if rdb != nil {
		queueClient = asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer queueClient.Close()
	}

	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Requested-With"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	routes.SetupQueryRoutes(router, answers, metrics)
	routes.SetupSourceRoutes(router, cfg, ingestion, ix, store, queueClient)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("server exited")
}

// refreshSources re-fetches every stored page and re-ingests it. Failures are
// per-page; a dead source stays indexed with its last good content.
func refreshSources(ctx context.Context, cfg *config.Config, store *index.MongoStore, ingestion *services.IngestionService) error {
	docs, err := store.ListDocuments(ctx)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		result, err := crawler.Crawl(crawler.Config{
			URL:      doc.URL,
			MaxPages: 1,
			Timeout:  cfg.CrawlTimeout,
		})
		if err != nil {
			logger.Warn("refresh fetch failed", "url", doc.URL, "error", err)
			continue
		}
		if _, err := ingestion.IngestDocuments(ctx, result.Documents); err != nil {
			logger.Warn("refresh ingest failed", "url", doc.URL, "error", err)
		}
	}
	return nil
}
