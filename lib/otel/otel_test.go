package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDisabled(t *testing.T) {
	p, err := Init(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.NotNil(t, p.Meter)
	assert.NotNil(t, p.TracerProvider)
	assert.Nil(t, p.LogHandler)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestAPIMetricsNilMeter(t *testing.T) {
	m, err := NewAPIMetrics(nil)
	require.NoError(t, err)
	m.RecordExport(context.Background(), "success", 1024)
	m.RecordRegistryLookup(context.Background(), "failed")
}
