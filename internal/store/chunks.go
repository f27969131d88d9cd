package store

import (
	"context"
	"math"
	"sort"
	"time"

	"rag-knowledge-platform/models"
	"rag-knowledge-platform/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// chunkDocument is the at-rest shape of a chunk. Text is compressed above
// the threshold in utils so long fragments do not bloat the collection.
type chunkDocument struct {
	ID          primitive.ObjectID         `bson:"_id,omitempty"`
	ChunkID     string                     `bson:"chunk_id"`
	SourceID    primitive.ObjectID         `bson:"source_id"`
	Order       int                        `bson:"order"`
	TextData    []byte                     `bson:"text_data"`
	Compression utils.CompressionAlgorithm `bson:"compression"`
	Vector      []float32                  `bson:"vector"`
	CreatedAt   time.Time                  `bson:"created_at"`
}

// NearestChunk pairs a decoded chunk with its cosine distance to the query
// vector. Lower distance means closer.
type NearestChunk struct {
	Chunk    models.Chunk
	Distance float64
}

type ChunkStore struct {
	collection *mongo.Collection
	sources    *SourceStore
}

func NewChunkStore(db *mongo.Database, sources *SourceStore) *ChunkStore {
	return &ChunkStore{
		collection: db.Collection("chunks"),
		sources:    sources,
	}
}

// DeleteBySource removes every chunk belonging to the source. Deleting zero
// chunks is not an error, so a first ingestion and a re-ingestion take the
// same path.
func (s *ChunkStore) DeleteBySource(ctx context.Context, sourceID primitive.ObjectID) (int64, error) {
	res, err := s.collection.DeleteMany(ctx, bson.M{"source_id": sourceID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// InsertBatch stores chunks for a source in a single ordered bulk write.
// The source must exist; inserting chunks for an unknown source returns
// ErrSourceNotFound.
func (s *ChunkStore) InsertBatch(ctx context.Context, sourceID primitive.ObjectID, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	if _, err := s.sources.GetByID(ctx, sourceID); err != nil {
		return err
	}

	now := time.Now().UTC()
	docs := make([]interface{}, 0, len(chunks))
	for _, chunk := range chunks {
		textData, algo, err := utils.CompressText(chunk.Text)
		if err != nil {
			return err
		}

		chunkID := chunk.ChunkID
		if chunkID == "" {
			chunkID = uuid.New().String()
		}

		docs = append(docs, chunkDocument{
			ChunkID:     chunkID,
			SourceID:    sourceID,
			Order:       chunk.Order,
			TextData:    textData,
			Compression: algo,
			Vector:      chunk.Vector,
			CreatedAt:   now,
		})
	}

	_, err := s.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	return err
}

// CountBySource returns the number of stored chunks for a source.
func (s *ChunkStore) CountBySource(ctx context.Context, sourceID primitive.ObjectID) (int64, error) {
	return s.collection.CountDocuments(ctx, bson.M{"source_id": sourceID})
}

// Nearest returns up to limit chunks of the source closest to the query
// vector by cosine distance, nearest first. An indexed source with no
// chunks yields an empty slice.
func (s *ChunkStore) Nearest(ctx context.Context, sourceID primitive.ObjectID, vector []float32, limit int) ([]NearestChunk, error) {
	if _, err := s.sources.GetByID(ctx, sourceID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []NearestChunk{}, nil
	}

	cursor, err := s.collection.Find(ctx, bson.M{"source_id": sourceID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var scored []NearestChunk
	for cursor.Next(ctx) {
		var doc chunkDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}

		text, err := utils.DecompressText(doc.TextData, doc.Compression)
		if err != nil {
			return nil, err
		}

		scored = append(scored, NearestChunk{
			Chunk: models.Chunk{
				ID:       doc.ID,
				ChunkID:  doc.ChunkID,
				SourceID: doc.SourceID,
				Order:    doc.Order,
				Text:     text,
				Vector:   doc.Vector,
			},
			Distance: cosineDistance(vector, doc.Vector),
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Distance < scored[j].Distance
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	if scored == nil {
		scored = []NearestChunk{}
	}
	return scored, nil
}

// cosineDistance is 1 minus cosine similarity. Zero or mismatched vectors
// are treated as maximally distant.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1.0
	}
	return 1.0 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
