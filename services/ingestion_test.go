package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rag-knowledge-platform/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeEmbedder struct {
	calls [][]string
	fail  error
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.calls = append(f.calls, texts)
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(len(texts[i])), 1}
	}
	return vectors, nil
}

type fakeChunkWriter struct {
	ops      []string
	inserted []models.Chunk
}

func (f *fakeChunkWriter) DeleteBySource(_ context.Context, _ primitive.ObjectID) (int64, error) {
	f.ops = append(f.ops, "delete")
	deleted := int64(len(f.inserted))
	f.inserted = nil
	return deleted, nil
}

func (f *fakeChunkWriter) InsertBatch(_ context.Context, _ primitive.ObjectID, chunks []models.Chunk) error {
	f.ops = append(f.ops, "insert")
	f.inserted = append(f.inserted, chunks...)
	return nil
}

func newTestProcessor(t *testing.T, embedder Embedder, writer ChunkWriter) *ArchiveProcessor {
	t.Helper()
	chunker, err := NewChunker(500, 200)
	if err != nil {
		t.Fatalf("Failed to build chunker: %v", err)
	}
	return NewArchiveProcessor(chunker, embedder, writer, t.TempDir())
}

func TestProcessStoresChunks(t *testing.T) {
	archive := writeTestArchive(t, map[string]string{
		"a.txt": strings.Repeat("alpha content ", 50),
		"b.txt": strings.Repeat("beta content ", 50),
	})

	embedder := &fakeEmbedder{}
	writer := &fakeChunkWriter{}
	processor := newTestProcessor(t, embedder, writer)

	count, err := processor.Process(context.Background(), primitive.NewObjectID(), archive)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if count == 0 {
		t.Fatal("Expected chunks to be stored")
	}
	if count != len(writer.inserted) {
		t.Errorf("Returned count %d does not match stored chunks %d", count, len(writer.inserted))
	}

	for i, chunk := range writer.inserted {
		if chunk.Order != i {
			t.Errorf("Chunk %d has order %d", i, chunk.Order)
		}
		if len(chunk.Vector) == 0 {
			t.Errorf("Chunk %d has no vector", i)
		}
	}
}

func TestProcessDeletesBeforeInsert(t *testing.T) {
	archive := writeTestArchive(t, map[string]string{
		"doc.txt": "enough text to produce at least one chunk",
	})

	writer := &fakeChunkWriter{}
	processor := newTestProcessor(t, &fakeEmbedder{}, writer)

	sourceID := primitive.NewObjectID()
	for run := 0; run < 2; run++ {
		if _, err := processor.Process(context.Background(), sourceID, archive); err != nil {
			t.Fatalf("Run %d failed: %v", run, err)
		}
	}

	if len(writer.ops) < 2 || writer.ops[0] != "delete" {
		t.Errorf("Expected delete before first insert, ops: %v", writer.ops)
	}
	if len(writer.inserted) != 1 {
		t.Errorf("Expected re-ingestion to replace chunks, got %d stored", len(writer.inserted))
	}
}

func TestProcessSkipsUnreadableFiles(t *testing.T) {
	archive := writeTestArchive(t, map[string]string{
		"good.txt":  "readable document text",
		"image.png": string([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0}),
	})

	writer := &fakeChunkWriter{}
	processor := newTestProcessor(t, &fakeEmbedder{}, writer)

	count, err := processor.Process(context.Background(), primitive.NewObjectID(), archive)
	if err != nil {
		t.Fatalf("Expected unsupported file to be skipped, got: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 chunk from the readable file, got %d", count)
	}
	if !strings.Contains(writer.inserted[0].Text, "readable document") {
		t.Errorf("Unexpected chunk text: %q", writer.inserted[0].Text)
	}
}

func TestProcessNoExtractableText(t *testing.T) {
	archive := writeTestArchive(t, map[string]string{
		"image.png": string([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0}),
	})

	writer := &fakeChunkWriter{}
	processor := newTestProcessor(t, &fakeEmbedder{}, writer)

	_, err := processor.Process(context.Background(), primitive.NewObjectID(), archive)
	if !errors.Is(err, ErrNoTextExtracted) {
		t.Errorf("Expected ErrNoTextExtracted, got %v", err)
	}
}

func TestProcessEmbedderFailureIsFatal(t *testing.T) {
	archive := writeTestArchive(t, map[string]string{
		"doc.txt": "some document text",
	})

	writer := &fakeChunkWriter{}
	embedder := &fakeEmbedder{fail: errors.New("quota exhausted")}
	processor := newTestProcessor(t, embedder, writer)

	if _, err := processor.Process(context.Background(), primitive.NewObjectID(), archive); err == nil {
		t.Fatal("Expected embedding failure to fail the run")
	}
	for _, op := range writer.ops {
		if op == "insert" {
			t.Error("Expected no chunks stored after embedding failure")
		}
	}
}

func TestProcessCleansUpExtractionDir(t *testing.T) {
	archive := writeTestArchive(t, map[string]string{
		"doc.txt": "cleanup check text",
	})

	tempDir := t.TempDir()
	chunker, _ := NewChunker(500, 200)
	processor := NewArchiveProcessor(chunker, &fakeEmbedder{}, &fakeChunkWriter{}, tempDir)

	if _, err := processor.Process(context.Background(), primitive.NewObjectID(), archive); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatalf("Failed to read temp dir: %v", err)
	}
	for _, entry := range entries {
		t.Errorf("Extraction artifact left behind: %s", filepath.Join(tempDir, entry.Name()))
	}
}
