package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"rag-knowledge-platform/internal/config"
	"rag-knowledge-platform/internal/logger"
	"rag-knowledge-platform/internal/telemetry"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"
)

// ErrDimensionMismatch reports a vector whose length differs from the
// dimension already recorded for this process. Stored vectors and query
// vectors must come from the same model; a mismatch is a configuration
// error, not a recoverable condition.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// EmbeddingClient produces fixed-dimension vectors for batches of text using
// the Google Generative AI embedding model. The same client instance is
// shared by the ingestion pipeline and the retrieval engine so both sides
// embed with one model and one dimension.
type EmbeddingClient struct {
	client  *genai.Client
	model   string
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	metrics *telemetry.Metrics

	mu        sync.Mutex
	dimension int
}

// NewEmbeddingClient validates configuration and connects the embedding
// backend. A missing API key is a startup-time fatal for callers. A nil
// metrics value disables batch counters.
func NewEmbeddingClient(ctx context.Context, cfg *config.Config, metrics *telemetry.Metrics) (*EmbeddingClient, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiEmbeddings",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	// Free tier allows ~100 embed requests per minute; stay under it.
	limiter := rate.NewLimiter(rate.Limit(1.5), 5)

	return &EmbeddingClient{
		client:  client,
		model:   cfg.EmbeddingModel,
		breaker: breaker,
		limiter: limiter,
		metrics: metrics,
	}, nil
}

// EmbedBatch maps texts to vectors in a single backend call. The result is
// length-preserving: one vector per input text, all of equal dimension.
func (ec *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	tracer := otel.Tracer("embedding-client")
	ctx, span := tracer.Start(ctx, "embeddings.embed_batch")
	defer span.End()
	span.SetAttributes(
		attribute.Int("embeddings.batch_size", len(texts)),
		attribute.String("embeddings.model", ec.model),
	)

	if err := ec.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := ec.breaker.Execute(func() (interface{}, error) {
		em := ec.client.EmbeddingModel(ec.model)
		batch := em.NewBatch()
		for _, text := range texts {
			batch = batch.AddContent(genai.Text(text))
		}

		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("embeddings.error", true))
		ec.recordBatch(len(texts), false)
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	ec.recordBatch(len(texts), true)

	resp := result.(*genai.BatchEmbedContentsResponse)
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(resp.Embeddings))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		if err := ec.checkDimension(len(emb.Values)); err != nil {
			return nil, err
		}
		vectors[i] = emb.Values
	}

	span.SetAttributes(attribute.Int("embeddings.dimension", len(vectors[0])))
	return vectors, nil
}

// EmbedQuery embeds a single query string with the same model used at
// ingestion time.
func (ec *EmbeddingClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := ec.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Dimension returns the vector dimension observed so far, or 0 before the
// first call.
func (ec *EmbeddingClient) Dimension() int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.dimension
}

func (ec *EmbeddingClient) recordBatch(size int, success bool) {
	if ec.metrics != nil {
		ec.metrics.RecordEmbeddingBatch(size, success)
	}
}

func (ec *EmbeddingClient) checkDimension(dim int) error {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	if ec.dimension == 0 {
		ec.dimension = dim
		return nil
	}
	if ec.dimension != dim {
		return fmt.Errorf("%w: store uses %d, model returned %d", ErrDimensionMismatch, ec.dimension, dim)
	}
	return nil
}

// Close releases the underlying client.
func (ec *EmbeddingClient) Close() error {
	if ec.client != nil {
		return ec.client.Close()
	}
	return nil
}
