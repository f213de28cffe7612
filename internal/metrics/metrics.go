// Package metrics holds the runtime's Prometheus collectors and OpenTelemetry
// tracer, shared by pkg/controller and pkg/retry so every Controller and
// Supervisor instance reports to the same registry instead of each owning
// private collectors.
package metrics

import (
	"go.opentelemetry.io/otel"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StateTransitions counts every Controller state-change callback
	// dispatch, labeled by pipeline id and the new state.
	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_state_transitions_total",
		Help: "Total number of pipeline Controller state transitions.",
	}, []string{"pipeline", "state"})

	// PipelineState is a gauge of the current PipelineState, one per
	// pipeline id and candidate state (1 for the active state, 0 for all
	// others) - the usual Prometheus enum-as-gauge-vec idiom.
	PipelineState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pipeline_state",
		Help: "Current state of a pipeline Controller (1 for the active state).",
	}, []string{"pipeline", "state"})

	// Faults counts classified Faults dispatched to subscribers.
	Faults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_faults_total",
		Help: "Total number of Faults classified and dispatched.",
	}, []string{"pipeline", "severity", "domain"})

	// RetryAttempts counts every backoff-then-Restart cycle the Retry
	// Supervisor performs, labeled by pipeline id.
	RetryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_retry_attempts_total",
		Help: "Total number of Retry Supervisor restart attempts.",
	}, []string{"pipeline"})
)

// Tracer is the runtime's shared OpenTelemetry tracer, used to span
// Controller.Build for distributed-tracing backends. Call sites
// use Tracer.Start(ctx, name) directly so context.Context propagates
// normally.
var Tracer = otel.Tracer("github.com/edgepipe/runtime")
