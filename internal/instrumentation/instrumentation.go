// Package instrumentation wires OpenTelemetry metrics and tracing into the
// credential lifecycle. Providers are injected; with the otel globals left
// unconfigured everything is a no-op.
package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const scopeName = "github.com/Salint/oauth2-system"

// Instrumentation bundles the tracer and metric instruments used by the
// oauth service.
type Instrumentation struct {
	tracer  trace.Tracer
	metrics *Metrics
}

// New creates instruments from the given providers.
func New(mp metric.MeterProvider, tp trace.TracerProvider) (*Instrumentation, error) {
	metrics, err := newMetrics(mp.Meter(scopeName))
	if err != nil {
		return nil, err
	}
	return &Instrumentation{
		tracer:  tp.Tracer(scopeName),
		metrics: metrics,
	}, nil
}

// Noop returns instrumentation that records nothing.
func Noop() *Instrumentation {
	inst, err := New(noop.NewMeterProvider(), tracenoop.NewTracerProvider())
	if err != nil {
		// The noop meter never fails to create instruments.
		panic(fmt.Sprintf("instrumentation: noop setup failed: %v", err))
	}
	return inst
}

func (i *Instrumentation) Metrics() *Metrics {
	return i.metrics
}

// StartSpan starts a span named op. The returned finish function records err
// on the span and ends it.
func (i *Instrumentation) StartSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	ctx, span := i.tracer.Start(ctx, op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
