package scheduler

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Submitted    *prometheus.CounterVec
	Deduplicated *prometheus.CounterVec
	Completed    *prometheus.CounterVec
	Running      *prometheus.GaugeVec
}

// NewMetrics creates the scheduler collectors and registers them with reg
// when reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldsync",
			Subsystem: "scheduler",
			Name:      "jobs_submitted_total",
			Help:      "Jobs accepted by the scheduler.",
		}, []string{"kind"}),
		Deduplicated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldsync",
			Subsystem: "scheduler",
			Name:      "jobs_deduplicated_total",
			Help:      "Submissions dropped because a job with the same name was pending or running.",
		}, []string{"kind"}),
		Completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldsync",
			Subsystem: "scheduler",
			Name:      "jobs_completed_total",
			Help:      "Jobs that reached a terminal state.",
		}, []string{"kind", "state"}),
		Running: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fieldsync",
			Subsystem: "scheduler",
			Name:      "jobs_running",
			Help:      "Jobs currently holding a pool slot.",
		}, []string{"pool"}),
	}
	if reg != nil {
		reg.MustRegister(m.Submitted, m.Deduplicated, m.Completed, m.Running)
	}
	return m
}
