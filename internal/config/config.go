package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI    string
	DBName      string
	Port        string
	GinMode     string
	CORSOrigins []string

	// Redis Configuration (Asynq queue, ingest locks, rate limiting)
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Gemini Configuration
	GeminiAPIKey    string
	EmbeddingModel  string
	GenerationModel string

	// Ingestion Configuration
	MaxArchiveSize    int64
	TempDir           string
	ChunkSize         int
	ChunkOverlap      int
	IngestLockTTL     int // seconds
	StuckPendingAfter int // minutes before a pending source is failed by maintenance

	// Retrieval policy
	SemanticWeight   float64
	KeywordWeight    float64
	MMRLambda        float64
	OversampleFactor int
	SearchLimit      int

	// Rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Telemetry
	OTLPEndpoint string
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		err := godotenv.Load()
		if err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017/rag_knowledge"),
		DBName:      getEnv("DB_NAME", "rag_knowledge"),
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL", "text-embedding-004"),
		GenerationModel: getEnv("GENERATION_MODEL", "gemini-2.0-flash"),

		MaxArchiveSize:    getEnvInt64("MAX_ARCHIVE_SIZE", 52428800), // 50MB
		TempDir:           getEnv("TEMP_DIR", os.TempDir()),
		ChunkSize:         getEnvInt("CHUNK_SIZE", 500),
		ChunkOverlap:      getEnvInt("CHUNK_OVERLAP", 200),
		IngestLockTTL:     getEnvInt("INGEST_LOCK_TTL", 600),
		StuckPendingAfter: getEnvInt("STUCK_PENDING_AFTER", 30),

		SemanticWeight:   getEnvFloat("SEMANTIC_WEIGHT", 0.7),
		KeywordWeight:    getEnvFloat("KEYWORD_WEIGHT", 0.3),
		MMRLambda:        getEnvFloat("MMR_LAMBDA", 0.5),
		OversampleFactor: getEnvInt("OVERSAMPLE_FACTOR", 2),
		SearchLimit:      getEnvInt("SEARCH_LIMIT", 5),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		OTLPEndpoint: getEnv("OTLP_ENDPOINT", "localhost:4317"),
	}

	// Validate required fields
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", cfg.ChunkOverlap, cfg.ChunkSize)
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

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
