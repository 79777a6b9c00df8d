package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics records engine pull and export activity.
type Metrics struct {
	pullDuration metric.Float64Histogram
	pullsTotal   metric.Int64Counter
	exportsTotal metric.Int64Counter
	queueLength  metric.Int64ObservableGauge
}

// NewMetrics creates engine metrics. A nil meter yields no-op instruments.
func NewMetrics(meter metric.Meter, queue *PullQueue) (*Metrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("imgport/engine")
	}

	pullDuration, err := meter.Float64Histogram(
		"imgport_engine_pull_duration_seconds",
		metric.WithDescription("Duration of image pulls in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	pullsTotal, err := meter.Int64Counter(
		"imgport_engine_pulls_total",
		metric.WithDescription("Total number of image pulls"),
	)
	if err != nil {
		return nil, err
	}

	exportsTotal, err := meter.Int64Counter(
		"imgport_engine_exports_total",
		metric.WithDescription("Total number of image tar exports opened"),
	)
	if err != nil {
		return nil, err
	}

	queueLength, err := meter.Int64ObservableGauge(
		"imgport_engine_pull_queue_length",
		metric.WithDescription("Pulls waiting for a free slot"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			if queue != nil {
				o.Observe(int64(queue.Len()))
			}
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		pullDuration: pullDuration,
		pullsTotal:   pullsTotal,
		exportsTotal: exportsTotal,
		queueLength:  queueLength,
	}, nil
}

// RecordPull records a finished pull.
func (m *Metrics) RecordPull(ctx context.Context, status string, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("status", status),
	}

	m.pullDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.pullsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordExport records an export stream being opened.
func (m *Metrics) RecordExport(ctx context.Context, status string) {
	m.exportsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
