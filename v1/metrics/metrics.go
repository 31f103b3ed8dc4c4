package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// AcquireCounter tracks the number of successful lock acquisitions.
	AcquireCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wwlock_acquires_total",
		Help: "Total number of successful lock acquisitions",
	})
	// DeadlockCounter tracks the number of acquisitions aborted by the
	// wound-wait rule.
	DeadlockCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wwlock_deadlocks_total",
		Help: "Total number of acquisitions aborted to avoid deadlock",
	})
	// BackoffCounter tracks the number of backoff cycles.
	BackoffCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wwlock_backoffs_total",
		Help: "Total number of backoff cycles",
	})
	// BusyCounter tracks the number of failed non-blocking acquisitions.
	BusyCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wwlock_busy_total",
		Help: "Total number of try-acquisitions that found the lock held",
	})
	// HeldGauge reports the number of currently held locks.
	HeldGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wwlock_held_locks",
		Help: "Current number of held locks",
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterCoreMetrics registers wwlock core metrics on the provided registry.
func RegisterCoreMetrics(reg prometheus.Registerer) {
	reg.MustRegister(AcquireCounter, DeadlockCounter, BackoffCounter, BusyCounter, HeldGauge)
}
