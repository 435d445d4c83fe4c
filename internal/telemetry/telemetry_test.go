package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/wesleyorama2/merchload/internal/metrics"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestExporter_ForwardsRegistrySamples(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	exp, err := New(ctx, Config{Reader: reader, RunID: "run-1"}, nil)
	require.NoError(t, err)
	defer exp.Shutdown(ctx)
	assert.True(t, exp.Enabled())

	reg := metrics.NewRegistry(metrics.DefaultConfig(), exp)
	reg.ObserveTrend(metrics.HTTPReqDuration, 12.5)
	reg.ObserveTrend(metrics.HTTPReqDuration, 7.5)
	reg.ObserveRate(metrics.Errors, true)
	reg.ObserveRate(metrics.Errors, false)
	reg.ObserveRate(metrics.Errors, false)
	reg.AddCounter(metrics.Iterations, 3)

	got := collect(t, reader)

	hist, ok := got["merchload.http_req_duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
	assert.Equal(t, 20.0, hist.DataPoints[0].Sum)
	runID, _ := hist.DataPoints[0].Attributes.Value(attribute.Key("run_id"))
	assert.Equal(t, "run-1", runID.AsString())

	errs, ok := got["merchload.errors"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	byOutcome := map[bool]int64{}
	for _, dp := range errs.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key("ok"))
		byOutcome[v.AsBool()] = dp.Value
	}
	assert.Equal(t, map[bool]int64{true: 1, false: 2}, byOutcome)

	iters, ok := got["merchload.iterations"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, iters.DataPoints, 1)
	assert.Equal(t, int64(3), iters.DataPoints[0].Value)
}

func TestNew_Disabled(t *testing.T) {
	ctx := context.Background()
	exp, err := New(ctx, Config{}, nil)
	require.NoError(t, err)
	defer exp.Shutdown(ctx)

	assert.False(t, exp.Enabled())
	exp.ObserveTrend("auth_duration", 1)
	exp.ObserveRate("errors", true)
	exp.ObserveCounter("iterations", 1)
}

func TestNew_StdoutExporter(t *testing.T) {
	ctx := context.Background()
	exp, err := New(ctx, Config{Exporter: ExporterStdout, ServiceVersion: "test"}, nil)
	require.NoError(t, err)
	assert.True(t, exp.Enabled())
	assert.NoError(t, exp.Shutdown(ctx))
}

func TestNew_UnknownExporter(t *testing.T) {
	_, err := New(context.Background(), Config{Exporter: "carrier-pigeon"}, nil)
	assert.Error(t, err)
}
