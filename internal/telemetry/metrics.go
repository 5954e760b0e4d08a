package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the pipeline's instruments.
type Metrics struct {
	RequestCounter    metric.Int64Counter
	RequestDuration   metric.Float64Histogram
	DocumentsIngested metric.Int64Counter
	ChunksEmbedded    metric.Int64Counter
	QueriesAnswered   metric.Int64Counter
	QueryDuration     metric.Float64Histogram
}

// InitMetrics registers the instruments on the global meter provider.
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("web-research-assistant")

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

	documentsIngested, err := meter.Int64Counter(
		"ingest.documents.total",
		metric.WithDescription("Documents ingested into the index"),
	)
	if err != nil {
		return nil, err
	}

	chunksEmbedded, err := meter.Int64Counter(
		"ingest.chunks.embedded",
		metric.WithDescription("Chunks embedded and indexed"),
	)
	if err != nil {
		return nil, err
	}

	queriesAnswered, err := meter.Int64Counter(
		"query.answered.total",
		metric.WithDescription("Answered queries"),
	)
	if err != nil {
		return nil, err
	}

	queryDuration, err := meter.Float64Histogram(
		"query.duration",
		metric.WithDescription("End-to-end query duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:    requestCounter,
		RequestDuration:   requestDuration,
		DocumentsIngested: documentsIngested,
		ChunksEmbedded:    chunksEmbedded,
		QueriesAnswered:   queriesAnswered,
		QueryDuration:     queryDuration,
	}, nil
}

// RecordRequest records one HTTP request.
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}
	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordIngestion records one ingested document and its indexed chunks.
func (m *Metrics) RecordIngestion(domain string, chunks int64) {
	attrs := metric.WithAttributes(attribute.String("source.domain", domain))
	m.DocumentsIngested.Add(context.Background(), 1, attrs)
	m.ChunksEmbedded.Add(context.Background(), chunks, attrs)
}

// RecordQuery records one answered query. grounded is false when the answer
// fell back to the no-sources response.
func (m *Metrics) RecordQuery(grounded bool, durationSecs float64) {
	attrs := metric.WithAttributes(attribute.Bool("query.grounded", grounded))
	m.QueriesAnswered.Add(context.Background(), 1, attrs)
	m.QueryDuration.Record(context.Background(), durationSecs, attrs)
}
