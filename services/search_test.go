package services

import (
	"context"
	"errors"
	"testing"

	"rag-knowledge-platform/internal/store"
	"rag-knowledge-platform/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeQueryEmbedder struct {
	vector []float32
	calls  int
	fail   error
}

func (f *fakeQueryEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	if f.fail != nil {
		return nil, f.fail
	}
	return f.vector, nil
}

type fakeSourceResolver struct {
	fail error
}

func (f *fakeSourceResolver) GetByID(_ context.Context, id primitive.ObjectID) (*models.Source, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	return &models.Source{ID: id, IndexStatus: models.IndexStatusCompleted}, nil
}

type fakeChunkFinder struct {
	chunks         []store.NearestChunk
	requestedLimit int
	fail           error
}

func (f *fakeChunkFinder) Nearest(_ context.Context, _ primitive.ObjectID, _ []float32, limit int) ([]store.NearestChunk, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.requestedLimit = limit
	if len(f.chunks) > limit {
		return f.chunks[:limit], nil
	}
	return f.chunks, nil
}

func nearestChunk(text string, vector []float32) store.NearestChunk {
	return store.NearestChunk{
		Chunk: models.Chunk{
			ChunkID: text,
			Text:    text,
			Vector:  vector,
		},
	}
}

func newTestRetrieval(embedder QueryEmbedder, sources SourceResolver, finder ChunkFinder) *RetrievalService {
	return NewRetrievalService(embedder, sources, finder, 0.7, 0.3, 0.5, 2)
}

func TestSearchUnknownSource(t *testing.T) {
	embedder := &fakeQueryEmbedder{vector: []float32{1, 0}}
	sources := &fakeSourceResolver{fail: store.ErrSourceNotFound}
	svc := newTestRetrieval(embedder, sources, &fakeChunkFinder{})

	_, err := svc.Search(context.Background(), primitive.NewObjectID(), "query", 5)
	if !errors.Is(err, store.ErrSourceNotFound) {
		t.Errorf("Expected ErrSourceNotFound, got %v", err)
	}
	if embedder.calls != 0 {
		t.Errorf("Expected no embedding call for an unknown source, got %d", embedder.calls)
	}
}

func TestSearchEmptySource(t *testing.T) {
	embedder := &fakeQueryEmbedder{vector: []float32{1, 0}}
	svc := newTestRetrieval(embedder, &fakeSourceResolver{}, &fakeChunkFinder{})

	results, err := svc.Search(context.Background(), primitive.NewObjectID(), "query", 5)
	if err != nil {
		t.Fatalf("Empty source must not be an error, got: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected empty results, got %d", len(results))
	}
}

func TestSearchOversamplesCandidates(t *testing.T) {
	embedder := &fakeQueryEmbedder{vector: []float32{1, 0}}
	finder := &fakeChunkFinder{
		chunks: []store.NearestChunk{nearestChunk("only chunk", []float32{1, 0})},
	}
	svc := newTestRetrieval(embedder, &fakeSourceResolver{}, finder)

	if _, err := svc.Search(context.Background(), primitive.NewObjectID(), "query", 5); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if finder.requestedLimit < 10 {
		t.Errorf("Expected at least 10 candidates requested for limit 5, got %d", finder.requestedLimit)
	}
}

func TestSearchRanksByHybridScore(t *testing.T) {
	// Both chunks sit at the same vector distance; the one sharing the
	// query's words must win on the keyword component.
	embedder := &fakeQueryEmbedder{vector: []float32{1, 0}}
	finder := &fakeChunkFinder{
		chunks: []store.NearestChunk{
			nearestChunk("unrelated prose entirely", []float32{1, 0}),
			nearestChunk("connection pool sizing guide", []float32{1, 0}),
		},
	}
	svc := newTestRetrieval(embedder, &fakeSourceResolver{}, finder)

	results, err := svc.Search(context.Background(), primitive.NewObjectID(), "connection pool", 1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0] != "connection pool sizing guide" {
		t.Errorf("Expected keyword overlap to break the tie, got %q", results[0])
	}
}

func TestSearchSelectionRelevanceIsSemantic(t *testing.T) {
	// The keyword component can lift a lexically matching chunk above a
	// semantically closer one in the candidate ordering, but the final
	// selection ranks by vector closeness to the query: the chunk at
	// cosine 1.0 wins over the keyword match at cosine 0.6.
	embedder := &fakeQueryEmbedder{vector: []float32{1, 0}}
	finder := &fakeChunkFinder{
		chunks: []store.NearestChunk{
			nearestChunk("unrelated prose entirely", []float32{1, 0}),
			nearestChunk("database connection pool", []float32{0.6, 0.8}),
		},
	}
	svc := newTestRetrieval(embedder, &fakeSourceResolver{}, finder)

	results, err := svc.Search(context.Background(), primitive.NewObjectID(), "database connection pool", 1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0] != "unrelated prose entirely" {
		t.Errorf("Expected the semantically closest chunk, got %q", results[0])
	}
}

func TestSearchAvoidsNearDuplicates(t *testing.T) {
	// Two copies of the same vector and one distinct chunk: with limit 2
	// the diversity pass must pick the distinct chunk over the duplicate.
	embedder := &fakeQueryEmbedder{vector: []float32{1, 0}}
	finder := &fakeChunkFinder{
		chunks: []store.NearestChunk{
			nearestChunk("duplicate one", []float32{0.9, 0.436}),
			nearestChunk("duplicate two", []float32{0.9, 0.436}),
			nearestChunk("different angle", []float32{0.6, -0.8}),
		},
	}
	svc := newTestRetrieval(embedder, &fakeSourceResolver{}, finder)

	results, err := svc.Search(context.Background(), primitive.NewObjectID(), "anything", 2)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0] == "duplicate one" && results[1] == "duplicate two" {
		t.Error("Expected the dissimilar chunk to displace the near-duplicate")
	}
}

func TestSearchEmbedderFailure(t *testing.T) {
	embedder := &fakeQueryEmbedder{fail: errors.New("embedding unavailable")}
	svc := newTestRetrieval(embedder, &fakeSourceResolver{}, &fakeChunkFinder{})

	if _, err := svc.Search(context.Background(), primitive.NewObjectID(), "query", 5); err == nil {
		t.Error("Expected error when query embedding fails")
	}
}

func TestSearchZeroLimit(t *testing.T) {
	embedder := &fakeQueryEmbedder{vector: []float32{1, 0}}
	svc := newTestRetrieval(embedder, &fakeSourceResolver{}, &fakeChunkFinder{})

	results, err := svc.Search(context.Background(), primitive.NewObjectID(), "query", 0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected no results for limit 0, got %d", len(results))
	}
}
