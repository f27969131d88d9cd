package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"rag-knowledge-platform/internal/logger"
	"rag-knowledge-platform/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// ErrNoTextExtracted means every file in the archive was unreadable or
// empty. The source has nothing to index and the run fails as a whole.
var ErrNoTextExtracted = errors.New("no text extracted from archive")

// embedBatchSize bounds one embedding API call.
const embedBatchSize = 100

// Embedder turns a batch of texts into one vector per text, in order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkWriter is the slice of chunk storage the pipeline needs.
type ChunkWriter interface {
	DeleteBySource(ctx context.Context, sourceID primitive.ObjectID) (int64, error)
	InsertBatch(ctx context.Context, sourceID primitive.ObjectID, chunks []models.Chunk) error
}

// ArchiveProcessor runs one ingestion: wipe the source's old chunks,
// extract the uploaded archive, pull text out of every readable file,
// chunk, embed, and store. Re-running it for the same source replaces the
// indexed content rather than appending to it.
type ArchiveProcessor struct {
	extractor *Extractor
	chunker   *Chunker
	embedder  Embedder
	chunks    ChunkWriter
	tempDir   string
}

func NewArchiveProcessor(chunker *Chunker, embedder Embedder, chunks ChunkWriter, tempDir string) *ArchiveProcessor {
	return &ArchiveProcessor{
		extractor: NewExtractor(),
		chunker:   chunker,
		embedder:  embedder,
		chunks:    chunks,
		tempDir:   tempDir,
	}
}

// Process ingests the archive for the source and returns the number of
// chunks stored. Unreadable files inside the archive are skipped with a
// log line; an archive yielding no text at all is an error.
func (p *ArchiveProcessor) Process(ctx context.Context, sourceID primitive.ObjectID, archivePath string) (int, error) {
	tracer := otel.Tracer("ingestion")
	ctx, span := tracer.Start(ctx, "ingestion.process_archive")
	defer span.End()
	span.SetAttributes(attribute.String("source.id", sourceID.Hex()))

	deleted, err := p.chunks.DeleteBySource(ctx, sourceID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear existing chunks: %w", err)
	}
	if deleted > 0 {
		logger.Info("Cleared previous chunks before re-ingestion",
			"source_id", sourceID.Hex(), "deleted", deleted)
	}

	destDir, files, err := ExtractArchive(archivePath, p.tempDir)
	if err != nil {
		return 0, fmt.Errorf("failed to extract archive: %w", err)
	}
	defer os.RemoveAll(destDir)

	text := p.collectText(files, sourceID)
	if strings.TrimSpace(text) == "" {
		return 0, ErrNoTextExtracted
	}

	pieces := p.chunker.Split(text)
	span.SetAttributes(attribute.Int("ingestion.chunks", len(pieces)))

	chunks, err := p.embedChunks(ctx, sourceID, pieces)
	if err != nil {
		return 0, err
	}

	if err := p.chunks.InsertBatch(ctx, sourceID, chunks); err != nil {
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}

	logger.Info("Archive ingested",
		"source_id", sourceID.Hex(), "files", len(files), "chunks", len(chunks))
	return len(chunks), nil
}

// collectText extracts text file by file and joins the results with
// newlines. A file that cannot be read or decoded costs only itself.
func (p *ArchiveProcessor) collectText(files []string, sourceID primitive.ObjectID) string {
	var parts []string
	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("Skipping unreadable file",
				"source_id", sourceID.Hex(), "file", path, "error", err)
			continue
		}
		if len(content) == 0 {
			continue
		}

		text, err := p.extractor.ExtractText(content)
		if err != nil {
			logger.Warn("Skipping file with failed extraction",
				"source_id", sourceID.Hex(), "file", path, "error", err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n")
}

func (p *ArchiveProcessor) embedChunks(ctx context.Context, sourceID primitive.ObjectID, pieces []string) ([]models.Chunk, error) {
	chunks := make([]models.Chunk, 0, len(pieces))
	for start := 0; start < len(pieces); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(pieces) {
			end = len(pieces)
		}

		batch := pieces[start:end]
		vectors, err := p.embedder.EmbedBatch(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks %d-%d: %w", start, end, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}

		for i, vec := range vectors {
			chunks = append(chunks, models.Chunk{
				SourceID: sourceID,
				Order:    start + i,
				Text:     batch[i],
				Vector:   vec,
			})
		}
	}
	return chunks, nil
}
