package services

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestArchive(t *testing.T, entries map[string]string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "upload.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create archive: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range entries {
		entry, err := w.Create(name)
		if err != nil {
			t.Fatalf("Failed to add entry %s: %v", name, err)
		}
		if _, err := entry.Write([]byte(content)); err != nil {
			t.Fatalf("Failed to write entry %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to finalize archive: %v", err)
	}
	return path
}

func TestExtractArchive(t *testing.T) {
	archive := writeTestArchive(t, map[string]string{
		"docs/readme.txt":  "hello",
		"docs/sub/note.md": "nested",
	})

	destDir, files, err := ExtractArchive(archive, t.TempDir())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer os.RemoveAll(destDir)

	if len(files) != 2 {
		t.Fatalf("Expected 2 extracted files, got %d", len(files))
	}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Errorf("Extracted file unreadable: %v", err)
			continue
		}
		if len(data) == 0 {
			t.Errorf("Extracted file %s is empty", path)
		}
	}
}

func TestExtractArchiveSkipsMetadata(t *testing.T) {
	archive := writeTestArchive(t, map[string]string{
		"doc.txt":            "real content",
		"__MACOSX/._doc.txt": "resource fork",
		".DS_Store":          "finder junk",
	})

	destDir, files, err := ExtractArchive(archive, t.TempDir())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer os.RemoveAll(destDir)

	if len(files) != 1 {
		t.Fatalf("Expected metadata entries skipped, got %d files", len(files))
	}
	if filepath.Base(files[0]) != "doc.txt" {
		t.Errorf("Expected doc.txt, got %s", files[0])
	}
}

func TestExtractArchiveRejectsTraversal(t *testing.T) {
	archive := writeTestArchive(t, map[string]string{
		"../escape.txt": "should not land outside",
	})

	_, _, err := ExtractArchive(archive, t.TempDir())
	if err == nil {
		t.Fatal("Expected error for path traversal entry")
	}
	if !strings.Contains(err.Error(), "escapes") {
		t.Errorf("Expected traversal rejection, got: %v", err)
	}
}

func TestExtractArchiveInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-zip.zip")
	if err := os.WriteFile(path, []byte("garbage bytes"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	if _, _, err := ExtractArchive(path, t.TempDir()); err == nil {
		t.Error("Expected error for corrupt archive")
	}
}
