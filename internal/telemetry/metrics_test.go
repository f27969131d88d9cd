package telemetry

import "testing"

func TestInitMetrics(t *testing.T) {
	m, err := InitMetrics()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if m.RequestCounter == nil || m.RequestDuration == nil ||
		m.IngestionDuration == nil || m.ChunksIngested == nil ||
		m.SearchDuration == nil || m.EmbeddingBatches == nil {
		t.Error("Expected every instrument to be initialized")
	}
}

func TestRecordersAcceptValues(t *testing.T) {
	m, err := InitMetrics()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// The global meter is a no-op without an SDK; recording must still be
	// safe to call from hot paths.
	m.RecordRequest("POST", "/search", "200", 0.05)
	m.RecordIngestion(12.5, 140, "completed")
	m.RecordIngestion(0.3, 0, "failed")
	m.RecordSearch(0.2, 5)
	m.RecordEmbeddingBatch(100, true)
	m.RecordEmbeddingBatch(40, false)
}
