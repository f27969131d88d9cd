package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rag-knowledge-platform/internal/ai"
	"rag-knowledge-platform/internal/config"
	"rag-knowledge-platform/internal/logger"
	"rag-knowledge-platform/internal/store"
	"rag-knowledge-platform/internal/telemetry"
	"rag-knowledge-platform/middleware"
	"rag-knowledge-platform/routes"
	"rag-knowledge-platform/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	// Tracing and metrics
	shutdownTracer, err := telemetry.InitTracer("rag-knowledge-platform", cfg.OTLPEndpoint)
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

	// Connect to Redis (rate limiting)
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	// Asynq client for enqueueing ingestion tasks
	queueClient := asynq.NewClient(config.AsynqRedisOpt(cfg))
	defer queueClient.Close()

	ctx := context.Background()
	embeddings, err := ai.NewEmbeddingClient(ctx, cfg, metrics)
	if err != nil {
		log.Fatal("Failed to initialize embedding client:", err)
	}
	defer embeddings.Close()

	gemini, err := ai.NewGeminiClient(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to initialize Gemini client:", err)
	}
	defer gemini.Close()

	sources := store.NewSourceStore(db)
	chunks := store.NewChunkStore(db, sources)
	retrieval := services.NewRetrievalService(embeddings, sources, chunks,
		cfg.SemanticWeight, cfg.KeywordWeight, cfg.MMRLambda, cfg.OversampleFactor)

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	if metrics != nil {
		router.Use(middleware.MetricsMiddleware(metrics))
	}
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Requested-With", "X-Request-ID"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	// Source lifecycle
	sourcesGroup := router.Group("/sources")
	{
		sourcesGroup.POST("/upload",
			middleware.RequestSizeLimit(cfg.MaxArchiveSize),
			routes.HandleArchiveUpload(cfg, sources, queueClient))
		sourcesGroup.GET("", routes.ListSources(sources))
		sourcesGroup.GET("/:id", routes.GetSourceStatus(sources))
		sourcesGroup.POST("/:id/activate", routes.ActivateSource(sources))
	}

	// Retrieval
	router.POST("/search", routes.HandleSearch(cfg, retrieval, metrics))
	router.POST("/chat/ask", routes.HandleChatAsk(cfg, sources, retrieval, gemini))

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}
