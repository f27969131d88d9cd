package services

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// maxExtractedFileSize caps a single extracted file so a crafted archive
// cannot exhaust disk.
const maxExtractedFileSize = 100 << 20

// ExtractArchive unpacks the zip at archivePath into a fresh directory
// under tempDir and returns the paths of the extracted regular files. The
// caller owns the returned directory and must remove it when done.
func ExtractArchive(archivePath, tempDir string) (string, []string, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer reader.Close()

	destDir, err := os.MkdirTemp(tempDir, "ingest-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create extraction dir: %w", err)
	}

	var files []string
	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		// macOS metadata entries carry no document text.
		base := filepath.Base(file.Name)
		if strings.HasPrefix(base, "._") || base == ".DS_Store" {
			continue
		}

		path, err := extractOne(file, destDir)
		if err != nil {
			os.RemoveAll(destDir)
			return "", nil, err
		}
		files = append(files, path)
	}

	return destDir, files, nil
}

func extractOne(file *zip.File, destDir string) (string, error) {
	// Reject entries that escape the destination (zip slip).
	destPath := filepath.Join(destDir, file.Name)
	if !strings.HasPrefix(destPath, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry escapes extraction dir: %s", file.Name)
	}

	if file.UncompressedSize64 > maxExtractedFileSize {
		return "", fmt.Errorf("archive entry too large: %s (%d bytes)", file.Name, file.UncompressedSize64)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", err
	}

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open archive entry %s: %w", file.Name, err)
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, io.LimitReader(src, maxExtractedFileSize)); err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", file.Name, err)
	}
	return destPath, nil
}
