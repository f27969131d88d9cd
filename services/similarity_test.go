package services

import (
	"math"
	"testing"

	"rag-knowledge-platform/models"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0.0},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0.0},
		{"empty", nil, nil, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKeywordScoreOverlap(t *testing.T) {
	query := "database connection pool"
	matching := "tuning the database connection pool for high throughput"
	unrelated := "baking sourdough bread at home"

	matchScore := KeywordScore(query, matching)
	missScore := KeywordScore(query, unrelated)

	if matchScore <= missScore {
		t.Errorf("Expected overlapping text to outscore unrelated text: %v <= %v",
			matchScore, missScore)
	}
	if missScore != 0 {
		t.Errorf("Expected zero score for disjoint vocabularies, got %v", missScore)
	}
}

func TestKeywordScoreEmptyVocabulary(t *testing.T) {
	// Queries without letter tokens degrade to zero instead of erroring.
	if got := KeywordScore("12345 !!!", "some indexed text"); got != 0 {
		t.Errorf("Expected 0 for non-letter query, got %v", got)
	}
	if got := KeywordScore("query words", "   "); got != 0 {
		t.Errorf("Expected 0 for empty text, got %v", got)
	}
	if got := KeywordScore("", ""); got != 0 {
		t.Errorf("Expected 0 for empty inputs, got %v", got)
	}
}

func TestKeywordScoreIdenticalText(t *testing.T) {
	text := "retrieval augmented generation"
	score := KeywordScore(text, text)
	if math.Abs(score-1.0) > 1e-9 {
		t.Errorf("Expected identical documents to score 1.0, got %v", score)
	}
}

func TestSelectMMRLimits(t *testing.T) {
	query := []float32{1, 0}
	candidates := makeCandidates(
		[]float64{0.9, 0.8, 0.7},
		[][]float32{{1, 0}, {0, 1}, {0.5, 0.5}},
	)

	if got := SelectMMR(query, candidates, 0.5, 0); len(got) != 0 {
		t.Errorf("Expected empty selection for limit 0, got %d", len(got))
	}
	if got := SelectMMR(query, nil, 0.5, 5); len(got) != 0 {
		t.Errorf("Expected empty selection for no candidates, got %d", len(got))
	}
	if got := SelectMMR(query, candidates, 0.5, 5); len(got) != 3 {
		t.Errorf("Expected all candidates when fewer than limit, got %d", len(got))
	}
}

func TestSelectMMRPicksClosestToQueryFirst(t *testing.T) {
	query := []float32{1, 0}
	candidates := makeCandidates(
		[]float64{0.95, 0.9, 0.4},
		[][]float32{{0, 1}, {1, 0}, {0.5, 0.5}},
	)

	selected := SelectMMR(query, candidates, 0.5, 2)
	if len(selected) != 2 {
		t.Fatalf("Expected 2 selected, got %d", len(selected))
	}
	if selected[0].Chunk.ChunkID != candidates[1].Chunk.ChunkID {
		t.Errorf("Expected first pick to be the candidate closest to the query, got %s",
			selected[0].Chunk.ChunkID)
	}
}

func TestSelectMMRRelevanceIgnoresHybridScore(t *testing.T) {
	// A candidate with a high blended score but a vector far from the
	// query must lose to a closer vector: relevance inside the selection
	// loop is cosine to the query, not the incoming score.
	query := []float32{1, 0}
	candidates := makeCandidates(
		[]float64{0.95, 0.50},
		[][]float32{{0, 1}, {1, 0}},
	)

	selected := SelectMMR(query, candidates, 0.5, 1)
	if len(selected) != 1 {
		t.Fatalf("Expected 1 selected, got %d", len(selected))
	}
	if selected[0].Chunk.ChunkID != candidates[1].Chunk.ChunkID {
		t.Errorf("Expected the vector closest to the query, got %s",
			selected[0].Chunk.ChunkID)
	}
}

func TestSelectMMRPenalizesRedundancy(t *testing.T) {
	// Second candidate duplicates the first pick; the diversity term
	// should push the third, dissimilar candidate ahead of it.
	query := []float32{1, 0}
	candidates := makeCandidates(
		[]float64{0.95, 0.94, 0.80},
		[][]float32{{0.9, 0.436}, {0.9, 0.436}, {0.6, -0.8}},
	)

	selected := SelectMMR(query, candidates, 0.5, 2)
	if len(selected) != 2 {
		t.Fatalf("Expected 2 selected, got %d", len(selected))
	}
	if selected[1].Chunk.ChunkID != candidates[2].Chunk.ChunkID {
		t.Errorf("Expected dissimilar candidate to beat the near-duplicate, got %s",
			selected[1].Chunk.ChunkID)
	}
}

func makeCandidates(scores []float64, vectors [][]float32) []ScoredChunk {
	out := make([]ScoredChunk, len(scores))
	for i := range scores {
		out[i] = ScoredChunk{
			Chunk: models.Chunk{
				ChunkID: string(rune('a' + i)),
				Vector:  vectors[i],
			},
			Score: scores[i],
		}
	}
	return out
}
