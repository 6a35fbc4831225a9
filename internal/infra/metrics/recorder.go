// Package metrics exports timer activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/osa030/routinetimer/internal/domain/cue"
)

const namespace = "routinetimer"

// Recorder records timer activity. A nil *Recorder records nothing.
type Recorder struct {
	operations        *prom.CounterVec
	transitions       *prom.CounterVec
	state             *prom.GaugeVec
	remaining         prom.Gauge
	stepsCompleted    prom.Counter
	sessionsCompleted prom.Counter
	sessionsStarted   *prom.CounterVec
	cues              *prom.CounterVec
}

// NewRecorder constructs and registers the timer metrics on reg.
func NewRecorder(reg prom.Registerer) *Recorder {
	r := &Recorder{
		operations: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Control operations by name",
		}, []string{"operation"}),
		transitions: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Timer state transitions by target state",
		}, []string{"state"}),
		state: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "1 for the current timer state",
		}, []string{"state"}),
		remaining: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "remaining_seconds",
			Help:      "Remaining time of the current step or delay",
		}),
		stepsCompleted: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "steps_completed_total",
			Help:      "Steps that counted down to zero",
		}),
		sessionsCompleted: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_completed_total",
			Help:      "Sessions whose last step counted down to zero",
		}),
		sessionsStarted: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_loaded_total",
			Help:      "Sessions loaded by source",
		}, []string{"source"}),
		cues: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cue_deliveries_total",
			Help:      "Cue deliveries by sink, kind and result",
		}, []string{"sink", "kind", "result"}),
	}
	reg.MustRegister(r.operations, r.transitions, r.state, r.remaining,
		r.stepsCompleted, r.sessionsCompleted, r.sessionsStarted, r.cues)
	return r
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prom.Registry {
	reg := prom.NewRegistry()
	reg.MustRegister(promcollect.NewGoCollector(), promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
	return reg
}

// HTTPHandler returns an http.Handler that serves the metrics of reg.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// IncOperation counts a control operation.
func (r *Recorder) IncOperation(name string) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(name).Inc()
}

// SetState marks state as current and counts the transition.
func (r *Recorder) SetState(state string) {
	if r == nil {
		return
	}
	r.state.Reset()
	r.state.WithLabelValues(state).Set(1)
	r.transitions.WithLabelValues(state).Inc()
}

// SetRemaining records the remaining time.
func (r *Recorder) SetRemaining(d time.Duration) {
	if r == nil {
		return
	}
	r.remaining.Set(d.Seconds())
}

// IncStepCompleted counts a completed step.
func (r *Recorder) IncStepCompleted() {
	if r == nil {
		return
	}
	r.stepsCompleted.Inc()
}

// IncSessionCompleted counts a completed session.
func (r *Recorder) IncSessionCompleted() {
	if r == nil {
		return
	}
	r.sessionsCompleted.Inc()
}

// IncSessionLoaded counts a loaded session by source ("routine", "duration").
func (r *Recorder) IncSessionLoaded(source string) {
	if r == nil {
		return
	}
	r.sessionsStarted.WithLabelValues(source).Inc()
}

// CueDelivered counts a cue delivery attempt.
func (r *Recorder) CueDelivered(sink string, kind cue.Kind, err error) {
	if r == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failed"
	}
	r.cues.WithLabelValues(sink, kind.String(), result).Inc()
}
