package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, r *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, r.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sum(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	data, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range data.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordRun(ctx, "workflow", "critical", 20*time.Millisecond)
	m.RecordRun(ctx, "direct", "good", 10*time.Millisecond)
	m.RecordStage(ctx, "fetch_academic", true, time.Millisecond)
	m.RecordStage(ctx, "fetch_attendance", false, time.Millisecond)
	m.RecordAlert(ctx, "grade_drop", "high")
	m.RecordFallback(ctx, "step failed")
	m.RecordBatchStudent(ctx, "ok")

	got := collect(t, reader)
	assert.Equal(t, int64(2), sum(t, got["insights_pipeline_runs_total"]))
	assert.Equal(t, int64(1), sum(t, got["insights_pipeline_stage_failures_total"]))
	assert.Equal(t, int64(1), sum(t, got["insights_alerts_raised_total"]))
	assert.Equal(t, int64(1), sum(t, got["insights_pipeline_fallbacks_total"]))
	assert.Equal(t, int64(1), sum(t, got["insights_batch_students_total"]))
	assert.Contains(t, got, "insights_pipeline_stage_duration_seconds")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordRun(ctx, "direct", "good", time.Second)
	m.RecordStage(ctx, "synthesize", false, time.Second)
	m.RecordAlert(ctx, "grade_drop", "high")
	m.RecordFallback(ctx, "x")
	m.RecordBatchStudent(ctx, "ok")
}

func TestSetup_Disabled(t *testing.T) {
	p, err := Setup(context.Background(), Config{Enabled: false, Endpoint: "localhost:4317"})
	require.NoError(t, err)
	require.NotNil(t, p)

	m, err := NewMetrics(p)
	require.NoError(t, err)
	m.RecordRun(context.Background(), "direct", "good", time.Second)
	assert.NoError(t, p.Shutdown(context.Background()))
}
