package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus is the Emitter backed by prometheus/client_golang. The live
// tier (histograms/counters) is written inline by the dispatcher and
// registered the usual promauto way; the cached tier (per-state gauges)
// is delegated to a GaugeCache registered as a custom Collector so that a
// controller type that stops iterating goes absent from scrapes instead
// of serving a frozen number. Mandatory dimensions on every per-state
// metric are (controller_type, state, substate); time_in_state
// additionally carries (next_state, next_substate); errors carry an
// error label plus a synthetic "any" aggregate per state.
type Prometheus struct {
	iterationLatency *prometheus.HistogramVec
	stateEntered     *prometheus.CounterVec
	stateExited      *prometheus.CounterVec
	timeInState      *prometheus.HistogramVec
	handlerLatency   *prometheus.HistogramVec
	errorsTotal      *prometheus.CounterVec
	gauges           *GaugeCache
}

var _ Emitter = (*Prometheus)(nil)

// NewPrometheus registers the controller's metric families against reg
// and returns a ready-to-use Emitter. freshnessWindow bounds how long a
// published per-state census remains visible to a scrape before it is
// treated as stale and omitted.
func NewPrometheus(reg prometheus.Registerer, freshnessWindow time.Duration) *Prometheus {
	gauges := NewGaugeCache(freshnessWindow)
	reg.MustRegister(gauges)

	return &Prometheus{
		iterationLatency: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fleet_controller_iteration_latency_seconds",
				Help:    "Wall-clock duration of one controller iteration.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"controller_type"},
		),
		stateEntered: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_controller_state_entered_total",
				Help: "Number of times an object entered a given state.",
			},
			[]string{"controller_type", "state", "substate"},
		),
		stateExited: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_controller_state_exited_total",
				Help: "Number of times an object exited a given state.",
			},
			[]string{"controller_type", "state", "substate"},
		),
		timeInState: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fleet_controller_time_in_state_seconds",
				Help:    "Duration an object spent in a state before transitioning.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 16),
			},
			[]string{"controller_type", "state", "substate", "next_state", "next_substate"},
		),
		handlerLatency: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fleet_controller_handler_latency_in_state_seconds",
				Help:    "Duration of one handler invocation for an object in a state.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"controller_type", "state", "substate"},
		),
		errorsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_controller_errors_total",
				Help: "Outcome errors by state and error kind (error=\"any\" is a per-state aggregate).",
			},
			[]string{"controller_type", "state", "substate", "error"},
		),
		gauges: gauges,
	}
}

func (p *Prometheus) ObserveIterationLatency(controllerType string, d time.Duration) {
	p.iterationLatency.WithLabelValues(controllerType).Observe(d.Seconds())
}

func (p *Prometheus) ObserveStateEntered(controllerType, state, substate string) {
	p.stateEntered.WithLabelValues(controllerType, state, substate).Inc()
}

func (p *Prometheus) ObserveStateExited(controllerType, state, substate string) {
	p.stateExited.WithLabelValues(controllerType, state, substate).Inc()
}

func (p *Prometheus) ObserveTimeInState(controllerType, state, substate, nextState, nextSubstate string, d time.Duration) {
	p.timeInState.WithLabelValues(controllerType, state, substate, nextState, nextSubstate).Observe(d.Seconds())
}

func (p *Prometheus) ObserveHandlerLatency(controllerType, state, substate string, d time.Duration) {
	p.handlerLatency.WithLabelValues(controllerType, state, substate).Observe(d.Seconds())
}

func (p *Prometheus) ObserveError(controllerType, state, substate, errorKind string) {
	p.errorsTotal.WithLabelValues(controllerType, state, substate, errorKind).Inc()
	p.errorsTotal.WithLabelValues(controllerType, state, substate, "any").Inc()
}

func (p *Prometheus) PublishStateCensus(controllerType string, counts, aboveSLA []StateCount, recordedAt time.Time) {
	p.gauges.Publish(controllerType, counts, aboveSLA, recordedAt)
}
