package observe

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig configures the OpenTelemetry SDK meter provider.
type ProviderConfig struct {
	// ServiceName is the service name reported in telemetry. Default: "cortexlipsync".
	ServiceName string

	// ServiceVersion is the service version reported in telemetry.
	ServiceVersion string

	// SetGlobal registers the provider as the global OTel meter provider.
	SetGlobal bool
}

// Provider bundles the meter provider with its Prometheus scrape handler.
type Provider struct {
	MeterProvider *sdkmetric.MeterProvider
	Metrics       *Metrics

	handler http.Handler
}

// InitProvider sets up a meter provider backed by a Prometheus exporter on a
// private registry, and builds the application instruments on it.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "cortexlipsync"
	}

	res, err := resource.Merge(
		resource.Default(),
		// Schemaless so the merge never conflicts with the SDK default's schema URL.
		resource.NewSchemaless(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	promExp, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)
	if cfg.SetGlobal {
		otel.SetMeterProvider(mp)
	}

	met, err := NewMetrics(mp)
	if err != nil {
		_ = mp.Shutdown(ctx)
		return nil, err
	}

	return &Provider{
		MeterProvider: mp,
		Metrics:       met,
		handler:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, nil
}

// Handler serves the Prometheus text exposition of all metrics.
func (p *Provider) Handler() http.Handler {
	return p.handler
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.MeterProvider.Shutdown(ctx)
}
