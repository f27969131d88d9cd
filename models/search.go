package models

import "time"

// SearchRequest asks for the most relevant, mutually diverse text fragments
// of one source.
type SearchRequest struct {
	SourceID string `json:"source_id" binding:"required"`
	Query    string `json:"query" binding:"required"`
	Limit    int    `json:"limit"`
}

// SearchResponse carries the ranked fragments in selection order. No scores
// or chunk identities are exposed; callers concatenate the fragments as
// context for an answer generator.
type SearchResponse struct {
	Results []string  `json:"results"`
	Count   int       `json:"count"`
	Took    int64     `json:"took_ms"`
	At      time.Time `json:"timestamp"`
}

// ChatRequest asks a question against the caller's active source, or an
// explicit one.
type ChatRequest struct {
	SourceID string `json:"source_id"`
	UserID   string `json:"user_id" binding:"required"`
	Question string `json:"question" binding:"required"`
}

// ChatResponse is the generated answer plus how many context fragments
// backed it.
type ChatResponse struct {
	Answer        string    `json:"answer"`
	ContextChunks int       `json:"context_chunks"`
	SourceID      string    `json:"source_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// UploadResponse acknowledges an accepted archive; ingestion continues in
// the background worker.
type UploadResponse struct {
	SourceID string `json:"source_id"`
	TaskID   string `json:"task_id,omitempty"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}
