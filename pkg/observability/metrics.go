package observability

import (
	"context"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/pool"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "canopy"

// Metrics holds the engine collectors.
type Metrics struct {
	TreeOpens   *prometheus.CounterVec
	Transitions *prometheus.CounterVec
	Interrupts  *prometheus.CounterVec
	Events      *prometheus.CounterVec
	Duration    prometheus.Histogram
	Errors      prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		TreeOpens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tree_opens_total",
			Help:      "Trees opened, by tree path.",
		}, []string{"tree"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Applied transitions, by kind.",
		}, []string{"kind"}),
		Interrupts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interruptions_total",
			Help:      "Trees opened by interrupting another, by target.",
		}, []string{"target"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Drained events, by outcome.",
		}, []string{"outcome"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_duration_seconds",
			Help:      "Time spent handling one event.",
			Buckets:   prometheus.DefBuckets,
		}),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_errors_total",
			Help:      "Events that ended with an error.",
		}),
	}
	for _, c := range []prometheus.Collector{m.TreeOpens, m.Transitions, m.Interrupts, m.Events, m.Duration, m.Errors} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks records the lifecycle notifications into the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTreeOpen: func(_ context.Context, e *domain.ElementHook) {
			m.TreeOpens.WithLabelValues(e.Path).Inc()
		},
		OnTransition: func(_ context.Context, e *domain.TransitionHook) {
			m.Transitions.WithLabelValues(e.Kind).Inc()
		},
		OnInterrupt: func(_ context.Context, e *domain.TransitionHook) {
			m.Interrupts.WithLabelValues(e.Target).Inc()
		},
		OnEventDone: func(_ context.Context, e *domain.EventDoneHook) {
			m.Events.WithLabelValues(e.Outcome).Inc()
			m.Duration.Observe(e.Duration.Seconds())
			if e.Err != nil {
				m.Errors.Inc()
			}
		},
	}
}

// RegisterGauges exposes the live session count and the pool statistics.
func RegisterGauges(reg prometheus.Registerer, sessions func() int, stats func() pool.Stats) error {
	gauges := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Live sessions.",
		}, func() float64 { return float64(sessions()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "workers",
			Help:      "Running pool workers.",
		}, func() float64 { return float64(stats().Workers) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "idle_workers",
			Help:      "Pool workers waiting for a task.",
		}, func() float64 { return float64(stats().Idle) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "queued_tasks",
			Help:      "Tasks waiting for a worker.",
		}, func() float64 { return float64(stats().Queued) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "panics_total",
			Help:      "Tasks that panicked.",
		}, func() float64 { return float64(stats().Panics) }),
	}
	for _, g := range gauges {
		if err := reg.Register(g); err != nil {
			return err
		}
	}
	return nil
}
