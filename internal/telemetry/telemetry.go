// Package telemetry exports traces to an OTLP/HTTP collector. The
// module publishes a tracer through the service registry; without a
// telemetry block in the config the module never loads and consumers
// fall back to a no-op tracer via TracerFrom.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"gopkg.in/yaml.v3"

	"github.com/heraldbot/herald/internal/core"
)

// ScopeName identifies herald's instrumentation scope.
const ScopeName = "github.com/heraldbot/herald"

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module wires the OTLP exporter into the app lifecycle.
type Module struct {
	config   Config
	logger   *slog.Logger
	provider *sdktrace.TracerProvider
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "telemetry",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("telemetry: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner. It builds the exporter and
// publishes the tracer every other component picks up.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	// Validate runs after Provision; an unchecked empty endpoint would
	// silently fall back to the exporter's localhost default here.
	if err := m.config.validate(); err != nil {
		return err
	}
	m.logger = ctx.Logger

	version := "dev"
	if svc, ok := ctx.GetService("app.version"); ok {
		if v, ok := svc.(string); ok && v != "" {
			version = v
		}
	}

	exporter, err := otlptracehttp.New(context.Background(), m.exporterOptions()...)
	if err != nil {
		return fmt.Errorf("telemetry: create exporter: %w", err)
	}

	m.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "herald"),
			attribute.String("service.version", version),
		)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(m.config.SampleRatio))),
	)

	ctx.RegisterService("telemetry.tracer", m.provider.Tracer(ScopeName))
	ctx.RegisterService("status.telemetry", m.statusReport)

	m.logger.Info("telemetry enabled",
		"endpoint", m.config.Endpoint,
		"sample_ratio", m.config.SampleRatio,
	)
	return nil
}

func (m *Module) exporterOptions() []otlptracehttp.Option {
	var opts []otlptracehttp.Option
	if strings.Contains(m.config.Endpoint, "://") {
		opts = append(opts, otlptracehttp.WithEndpointURL(m.config.Endpoint))
	} else {
		opts = append(opts, otlptracehttp.WithEndpoint(m.config.Endpoint))
		if m.config.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
	}
	if len(m.config.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(m.config.Headers))
	}
	return opts
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Stop implements core.Stopper. Shutdown flushes buffered spans within
// the caller's deadline.
func (m *Module) Stop(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	if err := m.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutdown: %w", err)
	}
	return nil
}

func (m *Module) statusReport() map[string]any {
	return map[string]any{
		"endpoint":     m.config.Endpoint,
		"sample_ratio": m.config.SampleRatio,
	}
}

// TracerFrom returns the tracer published by the telemetry module, or
// a no-op tracer when telemetry is not configured.
func TracerFrom(ctx *core.AppContext) trace.Tracer {
	if svc, ok := ctx.GetService("telemetry.tracer"); ok {
		if t, ok := svc.(trace.Tracer); ok {
			return t
		}
	}
	return noop.NewTracerProvider().Tracer(ScopeName)
}
