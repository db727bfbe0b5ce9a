// Package metrics exposes the Prometheus counters shared across both cores.
// It is deliberately small: spec.md calls for a handful of operator-visible
// counters (dropped frames, dropped alerts, job transitions, conversion
// failures) and nothing more elaborate — no histograms, no per-request
// latency buckets, matching how sparingly the teacher instruments its own
// hot paths.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the counters a Config-constructed pipeline increments.
// Construct one with New and register it with a prometheus.Registerer of
// the caller's choosing (or prometheus.DefaultRegisterer).
type Registry struct {
	FramesDropped       prometheus.Counter
	AlertsDropped       prometheus.Counter
	AlertsEmitted       *prometheus.CounterVec
	BackendDowngrades   *prometheus.CounterVec
	JobStateTransitions *prometheus.CounterVec
	ConversionFailures  *prometheus.CounterVec
}

// New builds a Registry with unregistered collectors; call Register to
// attach them to a prometheus.Registerer.
func New() *Registry {
	return &Registry{
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "detect",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped due to bad input, backpressure, or out-of-order arrival.",
		}),
		AlertsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "detect",
			Name:      "alerts_dropped_total",
			Help:      "Alerts dropped because the alert sink was full.",
		}),
		AlertsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "detect",
			Name:      "alerts_emitted_total",
			Help:      "Alerts emitted, labeled by severity.",
		}, []string{"severity"}),
		BackendDowngrades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "detect",
			Name:      "backend_downgrades_total",
			Help:      "Detector backend downgrades, labeled by detector kind.",
		}, []string{"kind"}),
		JobStateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "optimize",
			Name:      "job_state_transitions_total",
			Help:      "Cloud job state transitions, labeled by resulting state.",
		}, []string{"state"}),
		ConversionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "optimize",
			Name:      "conversion_failures_total",
			Help:      "Model conversion failures, labeled by rule tag.",
		}, []string{"rule_tag"}),
	}
}

// Register attaches every collector in r to reg. Safe to call once per
// Registry instance.
func (r *Registry) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		r.FramesDropped,
		r.AlertsDropped,
		r.AlertsEmitted,
		r.BackendDowngrades,
		r.JobStateTransitions,
		r.ConversionFailures,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
