package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the application's instrument handles.
type Metrics struct {
	RequestCounter  metric.Int64Counter
	RequestDuration metric.Float64Histogram
	QueriesAnswered metric.Int64Counter
	ChunksIndexed   metric.Int64Counter
	SyncRuns        metric.Int64Counter
}

func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("sql-rag-platform")

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

	queriesAnswered, err := meter.Int64Counter(
		"rag.queries.total",
		metric.WithDescription("Questions answered, by outcome"),
	)
	if err != nil {
		return nil, err
	}

	chunksIndexed, err := meter.Int64Counter(
		"rag.chunks.indexed",
		metric.WithDescription("Chunks written to the vector indexes"),
	)
	if err != nil {
		return nil, err
	}

	syncRuns, err := meter.Int64Counter(
		"rag.sync.runs",
		metric.WithDescription("Relational sync runs, by status"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:  requestCounter,
		RequestDuration: requestDuration,
		QueriesAnswered: queriesAnswered,
		ChunksIndexed:   chunksIndexed,
		SyncRuns:        syncRuns,
	}, nil
}

func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.String("status", status),
	)
	m.RequestCounter.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, duration, attrs)
}

func (m *Metrics) RecordQuery(status string) {
	m.QueriesAnswered.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("status", status)))
}

func (m *Metrics) RecordSync(status string, chunks int64) {
	ctx := context.Background()
	m.SyncRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	if chunks > 0 {
		m.ChunksIndexed.Add(ctx, chunks)
	}
}
