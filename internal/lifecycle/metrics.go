package lifecycle

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("sluice.lifecycle")

var (
	// snapshotsTotal counts processed snapshots.
	// Labels: subject, outcome (modified, unchanged, dropped)
	snapshotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sluice",
		Subsystem: "lifecycle",
		Name:      "snapshots_total",
		Help:      "Snapshots processed by lifecycle coordinators",
	}, []string{"subject", "outcome"})

	// callbacksTotal counts host callback invocations.
	// Labels: subject, callback
	callbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sluice",
		Subsystem: "lifecycle",
		Name:      "callbacks_total",
		Help:      "Host lifecycle callbacks invoked",
	}, []string{"subject", "callback"})

	// faultsTotal counts failed lifecycle steps.
	// Labels: subject, step
	faultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sluice",
		Subsystem: "lifecycle",
		Name:      "faults_total",
		Help:      "Lifecycle steps that returned an error or panicked",
	}, []string{"subject", "step"})

	activeMounts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sluice",
		Subsystem: "lifecycle",
		Name:      "active_mounts",
		Help:      "Coordinators currently mounted",
	})

	processDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sluice",
		Subsystem: "lifecycle",
		Name:      "process_duration_seconds",
		Help:      "Time spent processing one snapshot including host callbacks",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"subject"})
)

func startProcessSpan(ctx context.Context, subject, mountID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Coordinator.process",
		trace.WithAttributes(
			attribute.String("lifecycle.subject", subject),
			attribute.String("lifecycle.mount", mountID),
		),
	)
}

func recordReport(span trace.Span, subject string, r Report, seconds float64) {
	outcome := "unchanged"
	switch {
	case r.Dropped:
		outcome = "dropped"
	case r.Modified:
		outcome = "modified"
	}
	snapshotsTotal.WithLabelValues(subject, outcome).Inc()
	for _, cb := range r.Callbacks {
		callbacksTotal.WithLabelValues(subject, cb).Inc()
	}
	for _, f := range r.Faults {
		faultsTotal.WithLabelValues(subject, f.Step).Inc()
	}
	if !r.Dropped {
		processDuration.WithLabelValues(subject).Observe(seconds)
	}

	span.SetAttributes(
		attribute.Bool("lifecycle.modified", r.Modified),
		attribute.Int("lifecycle.callbacks", len(r.Callbacks)),
		attribute.Int("lifecycle.faults", len(r.Faults)),
	)
	for _, f := range r.Faults {
		span.RecordError(f)
	}
	if len(r.Faults) > 0 {
		span.SetStatus(codes.Error, "lifecycle step failed")
	}
}
