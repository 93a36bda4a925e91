// Package observe provides OpenTelemetry metrics for the lip-sync pipeline and a
// Prometheus bridge so they can be scraped from /metrics.
//
// Components accept a *Metrics that may be nil; every Record method is a no-op on
// a nil receiver. Tests should build one with [NewMetrics] over a
// sdkmetric.ManualReader.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/normanking/cortexlipsync"

// Metrics holds all metric instruments. The underlying OTel types handle their
// own synchronisation.
type Metrics struct {
	// Ticks counts controller ticks. Attribute: state (idle|active).
	Ticks metric.Int64Counter

	// TickDuration tracks the time spent mapping and flushing one tick.
	TickDuration metric.Float64Histogram

	// StateTransitions counts idle/active transitions. Attributes: from, to.
	StateTransitions metric.Int64Counter

	// FramesAnalyzed counts audio buffers turned into frames. Attribute: analyzer.
	FramesAnalyzed metric.Int64Counter

	// AudioDropped counts audio pushes ignored because no analyzer was ready.
	AudioDropped metric.Int64Counter

	// AnalyzerErrors counts analyzer failures. Attribute: analyzer.
	AnalyzerErrors metric.Int64Counter

	// StreamClients tracks connected pose stream clients.
	StreamClients metric.Int64UpDownCounter

	// StreamDropped counts poses dropped for slow stream clients.
	StreamDropped metric.Int64Counter
}

// tickBuckets are histogram boundaries in seconds, sized for sub-millisecond work.
var tickBuckets = []float64{
	0.00001, 0.000025, 0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01,
}

// NewMetrics creates all instruments from the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Ticks, err = m.Int64Counter("lipsync.ticks",
		metric.WithDescription("Controller ticks by resulting state."),
	); err != nil {
		return nil, err
	}
	if met.TickDuration, err = m.Float64Histogram("lipsync.tick.duration",
		metric.WithDescription("Time spent computing and flushing one tick."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(tickBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StateTransitions, err = m.Int64Counter("lipsync.state.transitions",
		metric.WithDescription("Idle/active state transitions."),
	); err != nil {
		return nil, err
	}
	if met.FramesAnalyzed, err = m.Int64Counter("lipsync.frames.analyzed",
		metric.WithDescription("Audio buffers converted into viseme frames."),
	); err != nil {
		return nil, err
	}
	if met.AudioDropped, err = m.Int64Counter("lipsync.audio.dropped",
		metric.WithDescription("Audio buffers ignored because the analyzer was unavailable."),
	); err != nil {
		return nil, err
	}
	if met.AnalyzerErrors, err = m.Int64Counter("lipsync.analyzer.errors",
		metric.WithDescription("Analyzer failures by analyzer."),
	); err != nil {
		return nil, err
	}
	if met.StreamClients, err = m.Int64UpDownCounter("lipsync.stream.clients",
		metric.WithDescription("Connected pose stream clients."),
	); err != nil {
		return nil, err
	}
	if met.StreamDropped, err = m.Int64Counter("lipsync.stream.dropped",
		metric.WithDescription("Poses dropped for slow stream clients."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTick records one tick and how long it took.
func (m *Metrics) RecordTick(ctx context.Context, state string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("state", state))
	m.Ticks.Add(ctx, 1, attrs)
	m.TickDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordTransition records a state change.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.StateTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordFrame records one analyzed audio buffer.
func (m *Metrics) RecordFrame(ctx context.Context, analyzer string) {
	if m == nil {
		return
	}
	m.FramesAnalyzed.Add(ctx, 1, metric.WithAttributes(attribute.String("analyzer", analyzer)))
}

// RecordAudioDropped records an ignored audio push.
func (m *Metrics) RecordAudioDropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.AudioDropped.Add(ctx, 1)
}

// RecordAnalyzerError records an analyzer failure.
func (m *Metrics) RecordAnalyzerError(ctx context.Context, analyzer string) {
	if m == nil {
		return
	}
	m.AnalyzerErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("analyzer", analyzer)))
}

// AddStreamClients adjusts the connected client gauge.
func (m *Metrics) AddStreamClients(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.StreamClients.Add(ctx, delta)
}

// RecordStreamDropped records a pose dropped for a slow client.
func (m *Metrics) RecordStreamDropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.StreamDropped.Add(ctx, 1)
}
