package otel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the instrumentation scope used by protocol and RPC spans.
	TracerName = "deficore"
	// Namespace groups every deficore service in the backend.
	Namespace = "deficore"

	DefaultEndpoint = "localhost:4318"

	metricInterval = 15 * time.Second
	batchTimeout   = 2 * time.Second
)

// Resource attribute keys describing how the node was started.
const (
	StorageKey = attribute.Key("deficore.storage")
	DevModeKey = attribute.Key("deficore.dev_mode")
)

// Config describes the node being instrumented and where its telemetry goes.
type Config struct {
	ServiceName string
	Environment string
	// Storage is the state backend name, e.g. leveldb or memory.
	Storage string
	DevMode bool

	Endpoint string
	Insecure bool
	Headers  map[string]string
	Metrics  bool
	Traces   bool
	// SampleRatio is the fraction of root spans kept. Zero or above one keeps
	// every span.
	SampleRatio float64
}

func (c Config) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(c.ServiceName),
		semconv.ServiceNamespace(Namespace),
		DevModeKey.Bool(c.DevMode),
	}
	if c.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(c.Environment))
	}
	if c.Storage != "" {
		attrs = append(attrs, StorageKey.String(c.Storage))
	}
	return attrs
}

// Resource merges the SDK defaults with the node's identity.
func Resource(c Config) (*resource.Resource, error) {
	if strings.TrimSpace(c.ServiceName) == "" {
		return nil, errors.New("telemetry: service name required")
	}
	return resource.Merge(resource.Default(), resource.NewSchemaless(c.attributes()...))
}

// Tracer returns the protocol tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// shutdowns stops providers in reverse start order.
type shutdowns []func(context.Context) error

func (s shutdowns) run(ctx context.Context) error {
	var errs []error
	for i := len(s) - 1; i >= 0; i-- {
		errs = append(errs, s[i](ctx))
	}
	return errors.Join(errs...)
}

func traceProvider(ctx context.Context, c Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(c.Endpoint)}
	if c.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(c.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(c.Headers))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(c.SampleRatio)),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(batchTimeout)),
	), nil
}

func meterProvider(ctx context.Context, c Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(c.Endpoint)}
	if c.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if len(c.Headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(c.Headers))
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: metric exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(metricInterval))),
	), nil
}

// Init installs the global providers selected by c and the W3C propagators.
// The returned function flushes and stops them.
func Init(ctx context.Context, c Config) (func(context.Context) error, error) {
	res, err := Resource(c)
	if err != nil {
		return nil, err
	}
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}

	var stop shutdowns
	if c.Traces {
		tp, err := traceProvider(ctx, c, res)
		if err != nil {
			return nil, err
		}
		otel.SetTracerProvider(tp)
		stop = append(stop, tp.Shutdown)
	}
	if c.Metrics {
		mp, err := meterProvider(ctx, c, res)
		if err != nil {
			_ = stop.run(ctx)
			return nil, err
		}
		otel.SetMeterProvider(mp)
		stop = append(stop, mp.Shutdown)
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return stop.run, nil
}

// ParseHeaders reads the OTEL_EXPORTER_OTLP_HEADERS form, key=value pairs
// separated by commas. Malformed pairs are dropped.
func ParseHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers
}
