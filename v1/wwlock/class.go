package wwlock

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/mirkobrombin/go-wwlock/v1/eventbus"
	"github.com/mirkobrombin/go-wwlock/v1/metrics"
)

var tracer = otel.Tracer("github.com/mirkobrombin/go-wwlock/v1/wwlock")

// Class groups Mutexes and AcquireCtxs that may be acquired together. Stamps
// are only comparable within one class, so every Mutex involved in a single
// multi-lock operation must come from the same Class.
type Class struct {
	name  string
	id    string
	stamp atomic.Uint64

	bus          eventbus.Bus
	traceEnabled bool

	acquireCounter  prometheus.Counter
	deadlockCounter prometheus.Counter
	backoffCounter  prometheus.Counter
	busyCounter     prometheus.Counter
	heldGauge       prometheus.Gauge
	waitHist        prometheus.Histogram
}

// ClassOption configures a Class.
type ClassOption func(*Class)

// WithBus makes the class publish lock lifecycle events ("lock:<name>",
// "unlock:<name>", "backoff:<class>") on the provided bus. Publication is
// fire-and-forget; bus failures never affect locking.
func WithBus(bus eventbus.Bus) ClassOption {
	return func(c *Class) {
		c.bus = bus
	}
}

// WithTracing enables OpenTelemetry spans around blocking waits and bulk
// acquisition loops.
func WithTracing() ClassOption {
	return func(c *Class) {
		c.traceEnabled = true
	}
}

// WithMetrics enables per-class Prometheus metrics collection using the
// provided registerer. The class name is attached as a constant label.
func WithMetrics(reg prometheus.Registerer) ClassOption {
	return func(c *Class) {
		labels := prometheus.Labels{"class": c.name}
		c.acquireCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "wwlock_class_acquires_total",
			Help:        "Total number of successful lock acquisitions",
			ConstLabels: labels,
		})
		c.deadlockCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "wwlock_class_deadlocks_total",
			Help:        "Total number of acquisitions aborted to avoid deadlock",
			ConstLabels: labels,
		})
		c.backoffCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "wwlock_class_backoffs_total",
			Help:        "Total number of backoff cycles",
			ConstLabels: labels,
		})
		c.busyCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "wwlock_class_busy_total",
			Help:        "Total number of try-acquisitions that found the lock held",
			ConstLabels: labels,
		})
		c.heldGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "wwlock_class_held_locks",
			Help:        "Current number of held locks",
			ConstLabels: labels,
		})
		c.waitHist = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "wwlock_class_wait_seconds",
			Help:        "Time spent blocked waiting for contended locks",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		})
		reg.MustRegister(c.acquireCounter, c.deadlockCounter, c.backoffCounter,
			c.busyCounter, c.heldGauge, c.waitHist)
	}
}

// NewClass returns a new lock class. The stamp counter starts at zero and is
// never reset for the lifetime of the class.
func NewClass(name string, opts ...ClassOption) *Class {
	c := &Class{name: name, id: uuid.NewString()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the class name.
func (c *Class) Name() string { return c.name }

// ID returns the unique identifier of this class instance.
func (c *Class) ID() string { return c.id }

// nextStamp draws a fresh stamp. Stamps start at 1 and strictly increase;
// wraparound of the 64-bit counter is not handled.
func (c *Class) nextStamp() uint64 {
	return c.stamp.Add(1)
}

func (c *Class) publish(key string) {
	if c.bus == nil {
		return
	}
	_ = c.bus.Publish(context.Background(), key)
}

func (c *Class) acquired(m *Mutex, waited time.Duration) {
	metrics.AcquireCounter.Inc()
	metrics.HeldGauge.Inc()
	if c.acquireCounter != nil {
		c.acquireCounter.Inc()
		c.heldGauge.Inc()
		if waited > 0 {
			c.waitHist.Observe(waited.Seconds())
		}
	}
	if m.name != "" {
		c.publish("lock:" + m.name)
	}
}

func (c *Class) released(m *Mutex) {
	metrics.HeldGauge.Dec()
	if c.heldGauge != nil {
		c.heldGauge.Dec()
	}
	if m.name != "" {
		c.publish("unlock:" + m.name)
	}
}

func (c *Class) deadlocked() {
	metrics.DeadlockCounter.Inc()
	if c.deadlockCounter != nil {
		c.deadlockCounter.Inc()
	}
}

func (c *Class) busy() {
	metrics.BusyCounter.Inc()
	if c.busyCounter != nil {
		c.busyCounter.Inc()
	}
}

func (c *Class) backedOff() {
	metrics.BackoffCounter.Inc()
	if c.backoffCounter != nil {
		c.backoffCounter.Inc()
	}
	c.publish("backoff:" + c.name)
}
