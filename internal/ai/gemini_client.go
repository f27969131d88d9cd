package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rag-knowledge-platform/internal/config"
	"rag-knowledge-platform/internal/logger"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"
)

// GeminiClient generates natural-language answers from a question plus the
// retrieved context fragments. Retrieval itself never depends on it.
type GeminiClient struct {
	client  *genai.Client
	model   string
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewGeminiClient(ctx context.Context, cfg *config.Config) (*GeminiClient, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY for generation")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, err
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiGeneration",
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

	// RPM limit with some buffer for the free tier
	limiter := rate.NewLimiter(rate.Limit(9.0/60.0), 2)

	return &GeminiClient{
		client:  client,
		model:   cfg.GenerationModel,
		breaker: breaker,
		limiter: limiter,
	}, nil
}

// GenerateAnswer produces an answer for the question grounded in the given
// context fragments.
func (gc *GeminiClient) GenerateAnswer(ctx context.Context, question string, contextChunks []string) (string, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.generate_answer")
	defer span.End()
	span.SetAttributes(
		attribute.Int("gemini.context_chunks", len(contextChunks)),
		attribute.String("gemini.model", gc.model),
	)

	if err := gc.limiter.Wait(ctx); err != nil {
		return "", err
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.GenerativeModel(gc.model)
		model.SetTemperature(0.7)
		model.SetMaxOutputTokens(2048)

		fullPrompt := buildPromptWithContext(question, contextChunks)

		resp, err := model.GenerateContent(ctx, genai.Text(fullPrompt))
		if err != nil {
			span.SetAttributes(attribute.Bool("gemini.error", true))
			return nil, err
		}
		return resp, nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
			return "", fmt.Errorf("answer generation temporarily unavailable: %w", err)
		}
		return "", err
	}

	answer := extractResponseText(result.(*genai.GenerateContentResponse))
	if answer == "" {
		return "", fmt.Errorf("empty response from model")
	}

	span.SetAttributes(attribute.Int("gemini.answer_length", len(answer)))
	return answer, nil
}

// Build prompt with context chunks
func buildPromptWithContext(question string, contextChunks []string) string {
	if len(contextChunks) == 0 {
		return question
	}

	contextStr := ""
	for i, chunk := range contextChunks {
		contextStr += fmt.Sprintf("Context %d:\n%s\n\n", i+1, chunk)
	}

	return fmt.Sprintf("Based on the following context:\n\n%s\n\nPlease answer this question: %s", contextStr, question)
}

func extractResponseText(resp *genai.GenerateContentResponse) string {
	total := ""
	for _, candidate := range resp.Candidates {
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if text, ok := part.(genai.Text); ok {
					total += string(text)
				}
			}
		}
	}
	return total
}

// Close the client
func (gc *GeminiClient) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}
