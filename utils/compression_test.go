package utils

import (
	"strings"
	"testing"
)

func TestCompressTextRoundTrip(t *testing.T) {
	long := strings.Repeat("chunk text stored at rest ", 100)

	data, algo, err := CompressText(long)
	if err != nil {
		t.Fatalf("CompressText failed: %v", err)
	}
	if algo != CompressionGzip {
		t.Errorf("Expected gzip above threshold, got %s", algo)
	}
	if len(data) >= len(long) {
		t.Errorf("Expected compression to shrink repetitive text: %d >= %d", len(data), len(long))
	}

	back, err := DecompressText(data, algo)
	if err != nil {
		t.Fatalf("DecompressText failed: %v", err)
	}
	if back != long {
		t.Error("Round trip does not reproduce the original text")
	}
}

func TestCompressTextBelowThreshold(t *testing.T) {
	short := "short fragment"

	data, algo, err := CompressText(short)
	if err != nil {
		t.Fatalf("CompressText failed: %v", err)
	}
	if algo != CompressionNone {
		t.Errorf("Expected no compression below threshold, got %s", algo)
	}
	if string(data) != short {
		t.Errorf("Expected raw bytes, got %q", data)
	}

	back, err := DecompressText(data, algo)
	if err != nil {
		t.Fatalf("DecompressText failed: %v", err)
	}
	if back != short {
		t.Error("Round trip does not reproduce the original text")
	}
}

func TestDecompressUnknownAlgorithm(t *testing.T) {
	if _, err := DecompressData([]byte("x"), CompressionAlgorithm("zstd")); err == nil {
		t.Error("Expected error for unknown algorithm")
	}
}
