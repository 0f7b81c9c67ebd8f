// Package observability exports gateway metrics over OTLP.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/zap"

	"github.com/stoik/persuasion-gateway/internal/domain"
)

const meterName = "github.com/stoik/persuasion-gateway"

// Config configures the metric exporter
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string // host:port of a gRPC collector
	Insecure       bool
	ExportInterval time.Duration
}

// DefaultConfig returns telemetry disabled, pointing at a local collector
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "persuasion-gateway",
		ServiceVersion: "dev",
		OTLPEndpoint:   "localhost:4317",
		Insecure:       true,
		ExportInterval: 15 * time.Second,
	}
}

// Metrics implements ports.Metrics with OpenTelemetry instruments
type Metrics struct {
	provider *sdkmetric.MeterProvider
	logger   *zap.SugaredLogger

	messages      metric.Int64Counter
	degraded      metric.Int64Counter
	relayFailures metric.Int64Counter
	duration      metric.Float64Histogram
}

// New creates the metrics recorder. When cfg.Enabled is false every
// instrument is a no-op and nothing is exported.
func New(ctx context.Context, cfg Config, logger *zap.SugaredLogger) (*Metrics, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	if !cfg.Enabled {
		logger.Debugw("Telemetry disabled")
		return newMetrics(noop.NewMeterProvider().Meter(meterName), nil, logger)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	interval := cfg.ExportInterval
	if interval <= 0 {
		interval = DefaultConfig().ExportInterval
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)

	logger.Infow("Telemetry enabled", "endpoint", cfg.OTLPEndpoint, "interval", interval.String())
	return newMetrics(provider.Meter(meterName, metric.WithInstrumentationVersion(cfg.ServiceVersion)), provider, logger)
}

// NewWithReader records into reader instead of exporting
func NewWithReader(reader sdkmetric.Reader) (*Metrics, error) {
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return newMetrics(provider.Meter(meterName), provider, zap.NewNop().Sugar())
}

func newMetrics(meter metric.Meter, provider *sdkmetric.MeterProvider, logger *zap.SugaredLogger) (*Metrics, error) {
	m := &Metrics{provider: provider, logger: logger}

	var err error
	if m.messages, err = meter.Int64Counter("persuasion.messages",
		metric.WithDescription("Messages evaluated, by risk level"),
		metric.WithUnit("{message}"),
	); err != nil {
		return nil, err
	}
	if m.degraded, err = meter.Int64Counter("persuasion.degraded",
		metric.WithDescription("Messages whose analysis was degraded"),
		metric.WithUnit("{message}"),
	); err != nil {
		return nil, err
	}
	if m.relayFailures, err = meter.Int64Counter("persuasion.relay.failures",
		metric.WithDescription("Annotated messages the downstream relay refused"),
		metric.WithUnit("{message}"),
	); err != nil {
		return nil, err
	}
	if m.duration, err = meter.Float64Histogram("persuasion.evaluation.duration",
		metric.WithDescription("Time spent parsing, evaluating and annotating one message"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordMessage counts one evaluated message
func (m *Metrics) RecordMessage(ctx context.Context, verdict domain.Verdict, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("risk", verdict.Level.String()))
	m.messages.Add(ctx, 1, attrs)
	if verdict.Degraded {
		m.degraded.Add(ctx, 1)
	}
	m.duration.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
}

// RecordRelayFailure counts one message the relay could not deliver
func (m *Metrics) RecordRelayFailure(ctx context.Context) {
	m.relayFailures.Add(ctx, 1)
}

// Shutdown flushes pending metrics
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	if err := m.provider.Shutdown(ctx); err != nil {
		m.logger.Warnw("Failed to shut down meter provider", "error", err)
		return err
	}
	return nil
}
