package services

import (
	"context"
	"fmt"
	"sort"

	"rag-knowledge-platform/internal/store"
	"rag-knowledge-platform/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// QueryEmbedder embeds a single query string.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// SourceResolver looks up a source by id.
type SourceResolver interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Source, error)
}

// ChunkFinder is the slice of chunk storage retrieval needs.
type ChunkFinder interface {
	Nearest(ctx context.Context, sourceID primitive.ObjectID, vector []float32, limit int) ([]store.NearestChunk, error)
}

// RetrievalService answers similarity queries over an indexed source with
// hybrid scoring: vector closeness blended with lexical overlap, then a
// maximal-marginal-relevance pass to keep the final results from repeating
// each other.
type RetrievalService struct {
	embedder       QueryEmbedder
	sources        SourceResolver
	chunks         ChunkFinder
	semanticWeight float64
	keywordWeight  float64
	mmrLambda      float64
	oversample     int
}

func NewRetrievalService(embedder QueryEmbedder, sources SourceResolver, chunks ChunkFinder, semanticWeight, keywordWeight, mmrLambda float64, oversample int) *RetrievalService {
	if oversample < 2 {
		oversample = 2
	}
	return &RetrievalService{
		embedder:       embedder,
		sources:        sources,
		chunks:         chunks,
		semanticWeight: semanticWeight,
		keywordWeight:  keywordWeight,
		mmrLambda:      mmrLambda,
		oversample:     oversample,
	}
}

// Search returns up to limit chunk texts from the source, most relevant
// first. An unknown source returns store.ErrSourceNotFound; a source with
// no chunks returns an empty slice.
func (s *RetrievalService) Search(ctx context.Context, sourceID primitive.ObjectID, query string, limit int) ([]string, error) {
	tracer := otel.Tracer("retrieval")
	ctx, span := tracer.Start(ctx, "retrieval.search")
	defer span.End()
	span.SetAttributes(
		attribute.String("source.id", sourceID.Hex()),
		attribute.Int("retrieval.limit", limit),
	)

	if limit <= 0 {
		return []string{}, nil
	}

	// Resolve the source before spending an embedding call on the query.
	if _, err := s.sources.GetByID(ctx, sourceID); err != nil {
		return nil, err
	}

	queryVector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	// Over-fetch so the diversity pass has alternatives to choose from.
	candidateLimit := limit * s.oversample
	nearest, err := s.chunks.Nearest(ctx, sourceID, queryVector, candidateLimit)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("retrieval.candidates", len(nearest)))

	if len(nearest) == 0 {
		return []string{}, nil
	}

	scored := make([]ScoredChunk, 0, len(nearest))
	for _, cand := range nearest {
		semantic := CosineSimilarity(queryVector, cand.Chunk.Vector)
		keyword := KeywordScore(query, cand.Chunk.Text)
		scored = append(scored, ScoredChunk{
			Chunk: cand.Chunk,
			Score: s.semanticWeight*semantic + s.keywordWeight*keyword,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	selected := SelectMMR(queryVector, scored, s.mmrLambda, limit)

	results := make([]string, len(selected))
	for i, sc := range selected {
		results[i] = sc.Chunk.Text
	}
	return results, nil
}
