package scheduler

import "github.com/prometheus/client_golang/prometheus"

// metrics are the scheduler's prometheus counters, served by the
// administrative listener.
type metrics struct {
	dispatches  *prometheus.CounterVec
	schedules   prometheus.Counter
	unschedules prometheus.Counter
	storeErrors prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventmq",
			Subsystem: "scheduler",
			Name:      "dispatches_total",
			Help:      "Job requests dispatched to the broker.",
		}, []string{"queue"}),
		schedules: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventmq",
			Subsystem: "scheduler",
			Name:      "schedules_total",
			Help:      "SCHEDULE requests accepted.",
		}),
		unschedules: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventmq",
			Subsystem: "scheduler",
			Name:      "unschedules_total",
			Help:      "UNSCHEDULE requests that removed a schedule.",
		}),
		storeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventmq",
			Subsystem: "scheduler",
			Name:      "store_errors_total",
			Help:      "Best-effort store operations that failed.",
		}),
	}
	reg.MustRegister(m.dispatches, m.schedules, m.unschedules, m.storeErrors)
	return m
}
