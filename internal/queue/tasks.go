package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"rag-knowledge-platform/internal/logger"
	"rag-knowledge-platform/internal/telemetry"
	"rag-knowledge-platform/services"
)

const TaskSourceIngest = "source:ingest"

// ingestLockScript releases the per-source lock only if this worker still
// holds it, so a run that outlived its TTL cannot free a newer holder's
// lock.
var ingestLockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type SourceIngestPayload struct {
	SourceID    string `json:"source_id"`
	ArchivePath string `json:"archive_path"`
}

// NewSourceIngestTask builds the ingestion task for an uploaded archive.
func NewSourceIngestTask(sourceID, archivePath string) (*asynq.Task, error) {
	payload, err := json.Marshal(SourceIngestPayload{
		SourceID:    sourceID,
		ArchivePath: archivePath,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskSourceIngest,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("critical"),
	), nil
}

// ArchiveIngester rebuilds one source's chunks from an uploaded archive and
// reports how many chunks were stored.
type ArchiveIngester interface {
	Process(ctx context.Context, sourceID primitive.ObjectID, archivePath string) (int, error)
}

// SourceMarker records the terminal state of an ingestion run.
type SourceMarker interface {
	MarkCompleted(ctx context.Context, id primitive.ObjectID, chunkCount int) error
	MarkFailed(ctx context.Context, id primitive.ObjectID, message string) error
}

// TaskProcessor executes queued ingestion runs. A Redis lock keyed on the
// source serializes runs so two workers never rebuild the same source
// concurrently.
type TaskProcessor struct {
	processor ArchiveIngester
	sources   SourceMarker
	rdb       *redis.Client
	lockTTL   time.Duration
	metrics   *telemetry.Metrics
}

func NewTaskProcessor(processor ArchiveIngester, sources SourceMarker, rdb *redis.Client, lockTTL time.Duration, metrics *telemetry.Metrics) *TaskProcessor {
	return &TaskProcessor{
		processor: processor,
		sources:   sources,
		rdb:       rdb,
		lockTTL:   lockTTL,
		metrics:   metrics,
	}
}

func (p *TaskProcessor) HandleSourceIngest(ctx context.Context, t *asynq.Task) error {
	var payload SourceIngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	sourceID, err := primitive.ObjectIDFromHex(payload.SourceID)
	if err != nil {
		return fmt.Errorf("invalid source id %q: %w", payload.SourceID, asynq.SkipRetry)
	}

	release, err := p.acquireLock(ctx, payload.SourceID)
	if err != nil {
		// Another worker is ingesting this source; let asynq retry later.
		return err
	}
	defer release()

	return p.runIngest(ctx, sourceID, payload.ArchivePath)
}

// runIngest processes one archive and settles its lifecycle. The archive is
// removed once the run reaches a terminal state; on a retryable failure it is
// kept on disk so the next attempt can reprocess it. Leftovers from exhausted
// retries are swept by maintenance.
func (p *TaskProcessor) runIngest(ctx context.Context, sourceID primitive.ObjectID, archivePath string) error {
	logger.Info("Starting ingestion", "source_id", sourceID.Hex(), "archive", archivePath)
	started := time.Now()

	count, err := p.processor.Process(ctx, sourceID, archivePath)
	if err != nil {
		p.recordIngestion(started, 0, "failed")
		logger.Error("Ingestion failed", "source_id", sourceID.Hex(), "error", err)
		if markErr := p.sources.MarkFailed(ctx, sourceID, err.Error()); markErr != nil {
			logger.Error("Failed to record ingestion failure", "source_id", sourceID.Hex(), "error", markErr)
		}
		if errors.Is(err, services.ErrNoTextExtracted) {
			p.removeArchive(archivePath)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	if err := p.sources.MarkCompleted(ctx, sourceID, count); err != nil {
		p.recordIngestion(started, count, "failed")
		return fmt.Errorf("failed to mark source completed: %w", err)
	}
	p.removeArchive(archivePath)
	p.recordIngestion(started, count, "completed")

	logger.Info("Ingestion completed", "source_id", sourceID.Hex(), "chunks", count)
	return nil
}

func (p *TaskProcessor) removeArchive(archivePath string) {
	if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to remove uploaded archive", "archive", archivePath, "error", err)
	}
}

func (p *TaskProcessor) recordIngestion(started time.Time, chunks int, status string) {
	if p.metrics != nil {
		p.metrics.RecordIngestion(time.Since(started).Seconds(), chunks, status)
	}
}

func (p *TaskProcessor) acquireLock(ctx context.Context, sourceID string) (func(), error) {
	key := fmt.Sprintf("ingest:lock:%s", sourceID)
	token := uuid.New().String()

	ok, err := p.rdb.SetNX(ctx, key, token, p.lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire ingest lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("source %s is already being ingested", sourceID)
	}

	release := func() {
		if _, err := ingestLockScript.Run(context.Background(), p.rdb, []string{key}, token).Result(); err != nil {
			logger.Warn("Failed to release ingest lock", "source_id", sourceID, "error", err)
		}
	}
	return release, nil
}
