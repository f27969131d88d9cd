package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Chunk is the immutable unit of retrievable text: a bounded slice of a
// source's extracted text plus its embedding vector. Chunks are created in
// bulk during ingestion and never mutated afterwards.
type Chunk struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ChunkID  string             `bson:"chunk_id" json:"chunk_id"`
	SourceID primitive.ObjectID `bson:"source_id" json:"source_id"`
	Order    int                `bson:"order" json:"order"`
	Text     string             `bson:"-" json:"text"`
	Vector   []float32          `bson:"vector" json:"-"`
}
