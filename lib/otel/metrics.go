package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// APIMetrics holds metrics for the image export API.
type APIMetrics struct {
	ExportBytes     metric.Int64Histogram
	ExportsTotal    metric.Int64Counter
	RegistryLookups metric.Int64Counter
}

// NewAPIMetrics creates metrics for the API layer. A nil meter yields no-op
// instruments.
func NewAPIMetrics(meter metric.Meter) (*APIMetrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter(instrumentationName)
	}

	exportBytes, err := meter.Int64Histogram(
		"imgport_export_bytes",
		metric.WithDescription("Size of streamed image archives"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	exportsTotal, err := meter.Int64Counter(
		"imgport_exports_total",
		metric.WithDescription("Total number of export requests by outcome"),
	)
	if err != nil {
		return nil, err
	}

	registryLookups, err := meter.Int64Counter(
		"imgport_registry_lookups_total",
		metric.WithDescription("Total number of registry size lookups by outcome"),
	)
	if err != nil {
		return nil, err
	}

	return &APIMetrics{
		ExportBytes:     exportBytes,
		ExportsTotal:    exportsTotal,
		RegistryLookups: registryLookups,
	}, nil
}

// RecordExport records a finished export. bytes is what reached the client.
func (m *APIMetrics) RecordExport(ctx context.Context, outcome string, bytes int64) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.ExportsTotal.Add(ctx, 1, attrs)
	if bytes > 0 {
		m.ExportBytes.Record(ctx, bytes, attrs)
	}
}

// RecordRegistryLookup records a registry size lookup.
func (m *APIMetrics) RecordRegistryLookup(ctx context.Context, outcome string) {
	m.RegistryLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
