package telemetry

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/sentra-ai/sentra/internal/redact"
)

// Config controls telemetry setup.
type Config struct {
	Enabled  bool
	Endpoint string
	Protocol string // grpc | http
	Service  string
	Version  string
}

// ScanSample is the per-scan measurement handed to TrackScan. It carries
// the text hash, never the text.
type ScanSample struct {
	TextHash    string
	Mode        string
	Action      string
	Severity    string
	L1Count     int
	L2Count     int
	L2Skipped   bool
	DurationMs  float64
	L2LatencyMs float64
}

// Provider wires tracer/meter providers and exposes the scan instruments.
// When disabled it is a no-op; callers never branch on Enabled themselves.
type Provider struct {
	Enabled bool
	tracer  trace.Tracer
	meter   metric.Meter

	scansCounter      metric.Int64Counter
	scanDuration      metric.Float64Histogram
	l2Duration        metric.Float64Histogram
	detectionsCounter metric.Int64Counter
	actionsCounter    metric.Int64Counter

	shutdownTraceProvider func(context.Context) error
	shutdownMeterProvider func(context.Context) error
}

// NewProvider configures OTLP exporters + providers. When disabled, returns
// no-op providers so call sites stay unconditional.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !cfg.Enabled {
		p := &Provider{
			Enabled: false,
			tracer:  tracenoop.NewTracerProvider().Tracer(""),
			meter:   noop.NewMeterProvider().Meter(""),
		}
		p.initInstruments()
		return p, nil
	}

	redact.Logf("telemetry enabled (OTLP %s) endpoint=%s", strings.ToLower(cfg.Protocol), cfg.Endpoint)

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.Service),
			attribute.String("service.version", cfg.Version),
		),
	)
	if err != nil {
		return nil, err
	}

	var traceExp sdktrace.SpanExporter
	switch strings.ToLower(cfg.Protocol) {
	case "http":
		traceExp, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure())
	default:
		traceExp, err = otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure())
	}
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	var reader sdkmetric.Reader
	switch strings.ToLower(cfg.Protocol) {
	case "http":
		exp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(cfg.Endpoint), otlpmetrichttp.WithInsecure())
		if err != nil {
			return nil, err
		}
		reader = sdkmetric.NewPeriodicReader(exp)
	default:
		exp, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(cfg.Endpoint), otlpmetricgrpc.WithInsecure())
		if err != nil {
			return nil, err
		}
		reader = sdkmetric.NewPeriodicReader(exp)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))
	otel.SetMeterProvider(mp)

	p := &Provider{
		Enabled:               true,
		tracer:                tp.Tracer("sentra"),
		meter:                 mp.Meter("sentra"),
		shutdownTraceProvider: tp.Shutdown,
		shutdownMeterProvider: mp.Shutdown,
	}
	p.initInstruments()
	return p, nil
}

func (p *Provider) initInstruments() {
	if p == nil {
		return
	}
	// Instrument creation errors are swallowed: telemetry is best effort.
	p.scansCounter, _ = p.meter.Int64Counter("sentra_scans_total")
	p.scanDuration, _ = p.meter.Float64Histogram("sentra_scan_duration_ms")
	p.l2Duration, _ = p.meter.Float64Histogram("sentra_l2_inference_duration_ms")
	p.detectionsCounter, _ = p.meter.Int64Counter("sentra_detections_total")
	p.actionsCounter, _ = p.meter.Int64Counter("sentra_actions_total")
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil {
		return tracenoop.NewTracerProvider().Tracer("")
	}
	return p.tracer
}

// Shutdown flushes providers.
func (p *Provider) Shutdown(ctx context.Context) {
	if p == nil {
		return
	}
	if p.shutdownTraceProvider != nil {
		_ = p.shutdownTraceProvider(ctx)
	}
	if p.shutdownMeterProvider != nil {
		_ = p.shutdownMeterProvider(ctx)
	}
}

// TrackScan records one scan. Never blocks, never returns an error; a
// failing collector only produces exporter warnings.
func (p *Provider) TrackScan(s ScanSample) {
	if p == nil {
		return
	}
	labels := []attribute.KeyValue{
		attribute.String("sentra.mode", s.Mode),
		attribute.String("sentra.action", s.Action),
		attribute.Bool("sentra.l2_skipped", s.L2Skipped),
	}
	if s.Severity != "" {
		labels = append(labels, attribute.String("sentra.severity", s.Severity))
	}
	ctx := context.Background()
	opts := metric.WithAttributes(labels...)
	p.scansCounter.Add(ctx, 1, opts)
	p.scanDuration.Record(ctx, s.DurationMs, opts)
	if s.L2LatencyMs > 0 {
		p.l2Duration.Record(ctx, s.L2LatencyMs, opts)
	}
	if n := s.L1Count + s.L2Count; n > 0 {
		p.detectionsCounter.Add(ctx, int64(n), opts)
	}
	p.actionsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("sentra.action", s.Action)))
}
