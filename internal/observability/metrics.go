package observability

import (
	"context"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the instruments recorded by the poller and the orchestrator.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	meter metric.Meter

	// Status polling
	StatusQueryDuration metric.Float64Histogram
	PollsTotal          metric.Int64Counter

	// Pipeline runs
	PhaseDuration metric.Float64Histogram
	RunsTotal     metric.Int64Counter
	RunsActive    metric.Int64UpDownCounter
}

// NewMetrics creates and registers all metrics with a Prometheus exporter
// backed by its own registry.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	registry := promclient.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("quickrank")
	m := &Metrics{meter: meter}

	m.StatusQueryDuration, err = meter.Float64Histogram(
		"status_query_duration_seconds",
		metric.WithDescription("Task status query latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PollsTotal, err = meter.Int64Counter(
		"polls_total",
		metric.WithDescription("Total task status polls by kind and outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PhaseDuration, err = meter.Float64Histogram(
		"phase_duration_seconds",
		metric.WithDescription("Pipeline phase duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RunsTotal, err = meter.Int64Counter(
		"runs_total",
		metric.WithDescription("Total pipeline runs by outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RunsActive, err = meter.Int64UpDownCounter(
		"runs_active",
		metric.WithDescription("Number of pipeline runs in progress"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

// RecordPoll records one status query and its outcome.
func (m *Metrics) RecordPoll(ctx context.Context, kind, outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.StatusQueryDuration.Record(ctx, durationSeconds, metric.WithAttributes(kindAttr(kind)))
	m.PollsTotal.Add(ctx, 1, metric.WithAttributes(kindAttr(kind), outcomeAttr(outcome)))
}

// RecordPhase records how long a phase ran before it ended with outcome.
func (m *Metrics) RecordPhase(ctx context.Context, phase, outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.PhaseDuration.Record(ctx, durationSeconds, metric.WithAttributes(phaseAttr(phase), outcomeAttr(outcome)))
}

// RecordRunStarted records a pipeline run starting.
func (m *Metrics) RecordRunStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.RunsActive.Add(ctx, 1)
}

// RecordRunFinished records a pipeline run reaching a terminal outcome.
func (m *Metrics) RecordRunFinished(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.RunsActive.Add(ctx, -1)
	m.RunsTotal.Add(ctx, 1, metric.WithAttributes(outcomeAttr(outcome)))
}
