package observe

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestRecordTick(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTick(ctx, "idle", 10*time.Microsecond)
	m.RecordTick(ctx, "active", 20*time.Microsecond)
	m.RecordTick(ctx, "active", 30*time.Microsecond)

	rm := collect(t, reader)

	ticks := findMetric(rm, "lipsync.ticks")
	require.NotNil(t, ticks)
	sum, ok := ticks.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	byState := map[string]int64{}
	for _, dp := range sum.DataPoints {
		state, _ := dp.Attributes.Value(attribute.Key("state"))
		byState[state.AsString()] = dp.Value
	}
	assert.Equal(t, int64(1), byState["idle"])
	assert.Equal(t, int64(2), byState["active"])

	hist := findMetric(rm, "lipsync.tick.duration")
	require.NotNil(t, hist)
	h, ok := hist.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range h.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(3), count)
}

func TestCountersAndGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTransition(ctx, "idle", "active")
	m.RecordFrame(ctx, "energy")
	m.RecordAudioDropped(ctx)
	m.RecordAnalyzerError(ctx, "timeline")
	m.AddStreamClients(ctx, 2)
	m.AddStreamClients(ctx, -1)
	m.RecordStreamDropped(ctx)

	rm := collect(t, reader)

	for _, name := range []string{
		"lipsync.state.transitions",
		"lipsync.frames.analyzed",
		"lipsync.audio.dropped",
		"lipsync.analyzer.errors",
		"lipsync.stream.dropped",
	} {
		assert.NotNil(t, findMetric(rm, name), name)
	}

	clients := findMetric(rm, "lipsync.stream.clients")
	require.NotNil(t, clients)
	sum, ok := clients.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordTick(ctx, "idle", time.Millisecond)
		m.RecordTransition(ctx, "idle", "active")
		m.RecordFrame(ctx, "energy")
		m.RecordAudioDropped(ctx)
		m.RecordAnalyzerError(ctx, "energy")
		m.AddStreamClients(ctx, 1)
		m.RecordStreamDropped(ctx)
	})
}

func TestProviderServesPrometheus(t *testing.T) {
	ctx := context.Background()
	p, err := InitProvider(ctx, ProviderConfig{ServiceVersion: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(ctx) })

	p.Metrics.RecordTick(ctx, "active", time.Microsecond)

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "lipsync_ticks")
}
