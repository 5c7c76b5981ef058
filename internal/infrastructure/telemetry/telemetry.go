// Package telemetry exports pipeline metrics through OpenTelemetry.
package telemetry

import (
	"context"
	"fmt"
	"time"

	otelglobal "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const meterName = "github.com/alem-hub/student-insights"

// Common attribute keys.
var (
	AttrStrategy = attribute.Key("strategy")
	AttrStatus   = attribute.Key("status")
	AttrStage    = attribute.Key("stage")
	AttrOutcome  = attribute.Key("outcome")
	AttrType     = attribute.Key("alert_type")
	AttrSeverity = attribute.Key("severity")
	AttrReason   = attribute.Key("reason")
)

// Config selects the exporter.
type Config struct {
	ServiceName string
	Enabled     bool

	// Endpoint is the OTLP gRPC collector address. Empty disables export.
	Endpoint string

	// Interval between pushes.
	Interval time.Duration
}

// Provider owns the meter provider and its shutdown.
type Provider struct {
	metric.MeterProvider
	shutdown func(context.Context) error
}

// Shutdown flushes and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}

// Setup builds the meter provider described by cfg and installs it as the
// global provider. A disabled config yields a no-op provider.
func Setup(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return &Provider{MeterProvider: noop.NewMeterProvider()}, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "student-insights"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("otlp metric exporter: %w", err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.Interval))),
		sdkmetric.WithResource(res),
	)
	otelglobal.SetMeterProvider(mp)
	return &Provider{MeterProvider: mp, shutdown: mp.Shutdown}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// INSTRUMENTS
// ══════════════════════════════════════════════════════════════════════════════

// Metrics holds the pipeline instruments. A nil *Metrics records nothing.
type Metrics struct {
	runs          metric.Int64Counter
	runDuration   metric.Float64Histogram
	stageDuration metric.Float64Histogram
	stageFailures metric.Int64Counter
	alerts        metric.Int64Counter
	fallbacks     metric.Int64Counter
	jobStudents   metric.Int64Counter
}

// NewMetrics creates the instruments on mp. A nil mp uses the global provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otelglobal.GetMeterProvider()
	}
	m := mp.Meter(meterName)

	var (
		out Metrics
		err error
	)
	if out.runs, err = m.Int64Counter("insights_pipeline_runs_total",
		metric.WithDescription("Pipeline invocations by strategy and overall status")); err != nil {
		return nil, err
	}
	if out.runDuration, err = m.Float64Histogram("insights_pipeline_run_duration_seconds",
		metric.WithDescription("Pipeline invocation duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if out.stageDuration, err = m.Float64Histogram("insights_pipeline_stage_duration_seconds",
		metric.WithDescription("Stage duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if out.stageFailures, err = m.Int64Counter("insights_pipeline_stage_failures_total",
		metric.WithDescription("Stages that recorded an error result")); err != nil {
		return nil, err
	}
	if out.alerts, err = m.Int64Counter("insights_alerts_raised_total",
		metric.WithDescription("Alerts raised by the rule table")); err != nil {
		return nil, err
	}
	if out.fallbacks, err = m.Int64Counter("insights_pipeline_fallbacks_total",
		metric.WithDescription("Workflow runs that fell back to direct execution")); err != nil {
		return nil, err
	}
	if out.jobStudents, err = m.Int64Counter("insights_batch_students_total",
		metric.WithDescription("Students processed by the batch analysis job")); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecordRun records one completed invocation.
func (m *Metrics) RecordRun(ctx context.Context, strategy, status string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(AttrStrategy.String(strategy), AttrStatus.String(status))
	m.runs.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordStage records a stage duration; failed marks an error-tagged result.
func (m *Metrics) RecordStage(ctx context.Context, stage string, failed bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if failed {
		outcome = "error"
		m.stageFailures.Add(ctx, 1, metric.WithAttributes(AttrStage.String(stage)))
	}
	m.stageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(AttrStage.String(stage), AttrOutcome.String(outcome)))
}

// RecordAlert counts one raised alert.
func (m *Metrics) RecordAlert(ctx context.Context, alertType, severity string) {
	if m == nil {
		return
	}
	m.alerts.Add(ctx, 1, metric.WithAttributes(AttrType.String(alertType), AttrSeverity.String(severity)))
}

// RecordFallback counts a fallback to direct execution.
func (m *Metrics) RecordFallback(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(AttrReason.String(reason)))
}

// RecordBatchStudent counts one student handled by the batch job.
func (m *Metrics) RecordBatchStudent(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.jobStudents.Add(ctx, 1, metric.WithAttributes(AttrStatus.String(status)))
}
