package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Mode        string // "debug" or "release"
	CORSOrigins []string

	// MongoDB (persisted index layout)
	MongoURI string
	DBName   string

	// Redis (ingestion queue + embedding cache + API rate limiting)
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Gemini
	GeminiAPIKey    string
	EmbeddingsModel string
	GenerationModel string

	// Retrieval tunables
	VectorDimensions int
	ChunkSize        int
	ChunkOverlap     int
	TopK             int
	MinScore         float64
	OversampleFactor int
	MaxContextChars  int

	// Embedding service
	EmbedBatchSize   int
	EmbedConcurrency int
	EmbedTimeout     time.Duration
	EmbedMaxAttempts int
	EmbedRPM         int

	// Answer generation
	GenerateTimeout time.Duration
	GenerateRPM     int
	MaxOutputTokens int

	// Crawler
	CrawlMaxPages   int
	CrawlTimeout    time.Duration
	RefreshInterval time.Duration

	// API rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Telemetry
	TracingEnabled bool
	OTLPEndpoint   string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Mode:        getEnv("APP_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/web_research"),
		DBName:   getEnv("DB_NAME", "web_research"),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		EmbeddingsModel: getEnv("EMBEDDINGS_MODEL", "text-embedding-004"),
		GenerationModel: getEnv("GENERATION_MODEL", "gemini-2.0-flash"),

		VectorDimensions: getEnvInt("VECTOR_DIM", 768),
		ChunkSize:        getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:     getEnvInt("CHUNK_OVERLAP", 200),
		TopK:             getEnvInt("TOP_K", 5),
		MinScore:         getEnvFloat64("MIN_SCORE", 0.4),
		OversampleFactor: getEnvInt("OVERSAMPLE_FACTOR", 3),
		MaxContextChars:  getEnvInt("MAX_CONTEXT_CHARS", 8000),

		EmbedBatchSize:   getEnvInt("EMBED_BATCH_SIZE", 20),
		EmbedConcurrency: getEnvInt("EMBED_CONCURRENCY", 4),
		EmbedTimeout:     getEnvDuration("EMBED_TIMEOUT", 30*time.Second),
		EmbedMaxAttempts: getEnvInt("EMBED_MAX_ATTEMPTS", 3),
		EmbedRPM:         getEnvInt("EMBED_RPM", 300),

		GenerateTimeout: getEnvDuration("GENERATE_TIMEOUT", 60*time.Second),
		GenerateRPM:     getEnvInt("GENERATE_RPM", 10),
		MaxOutputTokens: getEnvInt("MAX_OUTPUT_TOKENS", 2048),

		CrawlMaxPages:   getEnvInt("CRAWL_MAX_PAGES", 50),
		CrawlTimeout:    getEnvDuration("CRAWL_TIMEOUT", 60*time.Second),
		RefreshInterval: getEnvDuration("REFRESH_INTERVAL", 0),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", "localhost:4317"),
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP must satisfy 0 <= overlap < CHUNK_SIZE (got %d/%d)",
			cfg.ChunkOverlap, cfg.ChunkSize)
	}

	if cfg.OversampleFactor < 1 {
		cfg.OversampleFactor = 1
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
