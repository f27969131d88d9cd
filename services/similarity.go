package services

import (
	"math"
	"regexp"
	"strings"

	"rag-knowledge-platform/models"
)

// ScoredChunk carries a candidate chunk through scoring and selection.
type ScoredChunk struct {
	Chunk models.Chunk
	Score float64
}

// CosineSimilarity between two embedding vectors. Mismatched or zero
// vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var tokenPattern = regexp.MustCompile(`\p{L}+`)

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// KeywordScore measures lexical overlap between the query and a chunk text
// as the cosine of their tf-idf vectors over the two-document corpus
// {query, text}. Inputs with no letter tokens score 0, never an error, so
// a numeric query against prose degrades instead of failing the search.
func KeywordScore(query, text string) float64 {
	queryTokens := tokenize(query)
	textTokens := tokenize(text)
	if len(queryTokens) == 0 || len(textTokens) == 0 {
		return 0
	}

	vocab := make(map[string]int)
	for _, tok := range queryTokens {
		if _, ok := vocab[tok]; !ok {
			vocab[tok] = len(vocab)
		}
	}
	for _, tok := range textTokens {
		if _, ok := vocab[tok]; !ok {
			vocab[tok] = len(vocab)
		}
	}

	queryVec := tfidfVector(queryTokens, textTokens, vocab)
	textVec := tfidfVector(textTokens, queryTokens, vocab)

	var dot float64
	for i := range queryVec {
		dot += queryVec[i] * textVec[i]
	}
	return dot
}

// tfidfVector builds the L2-normalized tf-idf vector for doc within the
// two-document corpus {doc, other}, using smoothed idf:
// ln((1+N)/(1+df)) + 1.
func tfidfVector(doc, other []string, vocab map[string]int) []float64 {
	counts := make(map[string]int, len(doc))
	for _, tok := range doc {
		counts[tok]++
	}
	otherSet := make(map[string]bool, len(other))
	for _, tok := range other {
		otherSet[tok] = true
	}

	const corpusSize = 2.0
	vec := make([]float64, len(vocab))
	for tok, count := range counts {
		df := 1.0
		if otherSet[tok] {
			df = 2.0
		}
		tf := float64(count) / float64(len(doc))
		idf := math.Log((1+corpusSize)/(1+df)) + 1
		vec[vocab[tok]] = tf * idf
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// SelectMMR picks up to limit chunks from candidates by maximal marginal
// relevance: each round takes the candidate maximizing
// lambda*relevance - (1-lambda)*maxSimilarityToSelected, trading closeness
// to the query against redundancy with what was already picked. Relevance
// is the cosine between the query vector and the candidate's vector; the
// hybrid Score only orders the incoming candidate list and breaks ties.
// The returned chunks are in selection order.
func SelectMMR(queryVector []float32, candidates []ScoredChunk, lambda float64, limit int) []ScoredChunk {
	if limit <= 0 || len(candidates) == 0 {
		return []ScoredChunk{}
	}
	if limit > len(candidates) {
		limit = len(candidates)
	}

	selected := make([]ScoredChunk, 0, limit)
	remaining := make([]ScoredChunk, len(candidates))
	copy(remaining, candidates)

	for len(selected) < limit {
		bestIdx := 0
		bestScore := math.Inf(-1)

		for i, cand := range remaining {
			relevance := CosineSimilarity(queryVector, cand.Chunk.Vector)

			maxSim := 0.0
			for _, sel := range selected {
				sim := CosineSimilarity(cand.Chunk.Vector, sel.Chunk.Vector)
				if sim > maxSim {
					maxSim = sim
				}
			}

			mmr := lambda*relevance - (1-lambda)*maxSim
			if mmr > bestScore {
				bestScore = mmr
				bestIdx = i
			}
		}

		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}
