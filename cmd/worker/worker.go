package main

import (
	"context"
	"log"
	"time"

	"rag-knowledge-platform/internal/ai"
	"rag-knowledge-platform/internal/config"
	"rag-knowledge-platform/internal/logger"
	"rag-knowledge-platform/internal/queue"
	"rag-knowledge-platform/internal/store"
	"rag-knowledge-platform/internal/telemetry"
	"rag-knowledge-platform/services"

	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer("rag-knowledge-worker", cfg.OTLPEndpoint)
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
	} else {
		defer shutdownTracer()
	}
	metrics, err := telemetry.InitMetrics()
	if err != nil {
		logger.Warn("Metrics disabled", "error", err)
	}

	// Connect to MongoDB
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

	// Redis for ingest locks
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	// Embedding client
	ctx := context.Background()
	embeddings, err := ai.NewEmbeddingClient(ctx, cfg, metrics)
	if err != nil {
		log.Fatal("Failed to initialize embedding client:", err)
	}
	defer embeddings.Close()

	sources := store.NewSourceStore(db)
	chunks := store.NewChunkStore(db, sources)

	chunker, err := services.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatal("Invalid chunking configuration:", err)
	}

	archiveProcessor := services.NewArchiveProcessor(chunker, embeddings, chunks, cfg.TempDir)

	// Background housekeeping: stuck sources and orphaned temp files
	maintenance := services.NewMaintenanceService(sources, cfg.TempDir,
		time.Duration(cfg.StuckPendingAfter)*time.Minute)
	maintenance.Start()
	defer maintenance.Stop()

	// Create Asynq server
	server := asynq.NewServer(
		config.AsynqRedisOpt(cfg),
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	// Create task processor
	processor := queue.NewTaskProcessor(archiveProcessor, sources, rdb,
		time.Duration(cfg.IngestLockTTL)*time.Second, metrics)

	// Create mux and register handlers
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskSourceIngest, processor.HandleSourceIngest)

	logger.Info("Starting ingestion worker",
		"concurrency", 10, "queues", "critical(6), default(3), low(1)")

	// Start the server
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
