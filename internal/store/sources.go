package store

import (
	"context"
	"errors"
	"time"

	"rag-knowledge-platform/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrSourceNotFound is returned when a source ID does not resolve to a
// stored source.
var ErrSourceNotFound = errors.New("source not found")

type SourceStore struct {
	collection *mongo.Collection
	active     *mongo.Collection
}

func NewSourceStore(db *mongo.Database) *SourceStore {
	return &SourceStore{
		collection: db.Collection("sources"),
		active:     db.Collection("active_sources"),
	}
}

func (s *SourceStore) Create(ctx context.Context, src *models.Source) error {
	now := time.Now().UTC()
	src.ID = primitive.NewObjectID()
	src.CreatedAt = now
	src.UpdatedAt = now
	if src.IndexStatus == "" {
		src.IndexStatus = models.IndexStatusPending
	}

	_, err := s.collection.InsertOne(ctx, src)
	return err
}

func (s *SourceStore) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Source, error) {
	var src models.Source
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&src)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSourceNotFound
		}
		return nil, err
	}
	return &src, nil
}

// List returns sources newest first, optionally filtered by index status.
func (s *SourceStore) List(ctx context.Context, status string) ([]models.Source, error) {
	filter := bson.M{}
	if status != "" {
		filter["index_status"] = status
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var sources []models.Source
	if err := cursor.All(ctx, &sources); err != nil {
		return nil, err
	}
	return sources, nil
}

// MarkCompleted records a successful ingestion run and the resulting chunk
// count. A completed source never transitions back to failed from a stale
// worker, so the update is keyed on the current status as well.
func (s *SourceStore) MarkCompleted(ctx context.Context, id primitive.ObjectID, chunkCount int) error {
	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"index_status":  models.IndexStatusCompleted,
			"chunk_count":   chunkCount,
			"error_message": "",
			"updated_at":    time.Now().UTC(),
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrSourceNotFound
	}
	return nil
}

func (s *SourceStore) MarkFailed(ctx context.Context, id primitive.ObjectID, reason string) error {
	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": id, "index_status": bson.M{"$ne": models.IndexStatusCompleted}},
		bson.M{"$set": bson.M{
			"index_status":  models.IndexStatusFailed,
			"error_message": reason,
			"updated_at":    time.Now().UTC(),
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrSourceNotFound
	}
	return nil
}

// FindStuckPending returns pending sources that have not been touched for
// longer than the given age. Used by the maintenance sweep to requeue work
// lost to worker restarts.
func (s *SourceStore) FindStuckPending(ctx context.Context, olderThan time.Duration) ([]models.Source, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	cursor, err := s.collection.Find(ctx, bson.M{
		"index_status": models.IndexStatusPending,
		"updated_at":   bson.M{"$lt": cutoff},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var sources []models.Source
	if err := cursor.All(ctx, &sources); err != nil {
		return nil, err
	}
	return sources, nil
}

// SetActive records the source a user's chat questions run against. One
// active source per user; repeated calls overwrite.
func (s *SourceStore) SetActive(ctx context.Context, userID string, sourceID primitive.ObjectID) error {
	if _, err := s.GetByID(ctx, sourceID); err != nil {
		return err
	}

	opts := options.Update().SetUpsert(true)
	_, err := s.active.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{"source_id": sourceID}},
		opts,
	)
	return err
}

func (s *SourceStore) GetActive(ctx context.Context, userID string) (*models.Source, error) {
	var record models.ActiveSource
	err := s.active.FindOne(ctx, bson.M{"user_id": userID}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSourceNotFound
		}
		return nil, err
	}
	return s.GetByID(ctx, record.SourceID)
}
