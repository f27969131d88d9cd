package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Indexing status values for a source. Transitions are monotonic within a
// single ingestion run: pending -> completed or pending -> failed.
const (
	IndexStatusPending   = "pending"
	IndexStatusCompleted = "completed"
	IndexStatusFailed    = "failed"
)

// Source origin types
const (
	OriginArchive = "archive"
)

// Source represents a logical document collection built from one uploaded
// archive. All chunks of a source are replaced wholesale on re-ingestion.
type Source struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"name" json:"name"`
	OriginType   string             `bson:"origin_type" json:"origin_type"`
	IndexStatus  string             `bson:"index_status" json:"index_status"`
	UserID       string             `bson:"user_id" json:"user_id"`
	ChunkCount   int                `bson:"chunk_count" json:"chunk_count"`
	ErrorMessage string             `bson:"error_message,omitempty" json:"error_message,omitempty"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

// ActiveSource records which completed source a user currently queries
// against. One per user.
type ActiveSource struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID   string             `bson:"user_id" json:"user_id"`
	SourceID primitive.ObjectID `bson:"source_id" json:"source_id"`
}
