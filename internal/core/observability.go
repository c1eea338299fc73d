package core

import (
	"context"
	"time"
)

// MetricsRecorder receives one observation per service operation. Implementations
// must be safe for concurrent use.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan terminates a span started by a Tracer.
type TraceSpan interface {
	End(err error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

type serviceOptions struct {
	metrics     MetricsRecorder
	tracer      Tracer
	clock       Clock
	traceConfig TraceConfig
	archiver    *ReportArchiver
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		metrics:     noopMetricsRecorder{},
		tracer:      noopTracer{},
		clock:       ClockFunc(time.Now),
		traceConfig: DefaultTraceConfig(),
	}
}

// ServiceOption customizes a Service at construction time.
type ServiceOption func(*serviceOptions)

// WithMetricsRecorder attaches a metrics recorder to the service.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer attaches a tracer to the service.
func WithTracer(tracer Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithClock overrides the clock used for report timestamps and entity
// created/updated times.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithTraceConfig overrides the traversal bounds used by the trace and recall
// engines.
func WithTraceConfig(cfg TraceConfig) ServiceOption {
	return func(o *serviceOptions) {
		o.traceConfig = cfg.normalized()
	}
}

// WithReportArchiver attaches a report archiver so generated reports and plans
// can be retained as audit artifacts.
func WithReportArchiver(archiver *ReportArchiver) ServiceOption {
	return func(o *serviceOptions) {
		o.archiver = archiver
	}
}
