package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter    metric.Int64Counter
	RequestDuration   metric.Float64Histogram
	IngestionDuration metric.Float64Histogram
	ChunksIngested    metric.Int64Counter
	SearchDuration    metric.Float64Histogram
	EmbeddingBatches  metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("rag-knowledge-platform")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	ingestionDuration, err := meter.Float64Histogram(
		"ingestion.duration",
		metric.WithDescription("Archive ingestion duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	chunksIngested, err := meter.Int64Counter(
		"ingestion.chunks.total",
		metric.WithDescription("Total chunks stored by ingestion runs"),
	)
	if err != nil {
		return nil, err
	}

	searchDuration, err := meter.Float64Histogram(
		"search.duration",
		metric.WithDescription("Retrieval query duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	embeddingBatches, err := meter.Int64Counter(
		"embedding.batches.total",
		metric.WithDescription("Total embedding batch calls"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:    requestCounter,
		RequestDuration:   requestDuration,
		IngestionDuration: ingestionDuration,
		ChunksIngested:    chunksIngested,
		SearchDuration:    searchDuration,
		EmbeddingBatches:  embeddingBatches,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordIngestion records one ingestion run
func (m *Metrics) RecordIngestion(duration float64, chunks int, status string) {
	attrs := []attribute.KeyValue{
		attribute.String("ingestion.status", status),
	}

	m.IngestionDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
	if chunks > 0 {
		m.ChunksIngested.Add(context.Background(), int64(chunks), metric.WithAttributes(attrs...))
	}
}

// RecordSearch records one retrieval query
func (m *Metrics) RecordSearch(duration float64, results int) {
	m.SearchDuration.Record(context.Background(), duration, metric.WithAttributes(
		attribute.Int("search.results", results),
	))
}

// RecordEmbeddingBatch records one embedding API call
func (m *Metrics) RecordEmbeddingBatch(size int, success bool) {
	m.EmbeddingBatches.Add(context.Background(), 1, metric.WithAttributes(
		attribute.Int("embedding.batch_size", size),
		attribute.Bool("embedding.success", success),
	))
}
