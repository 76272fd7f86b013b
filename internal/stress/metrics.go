package stress

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Metrics is an [Observer] that counts worker events in Prometheus
// collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	creates     *prometheus.CounterVec
	cycles      *prometheus.CounterVec
	removes     prometheus.Counter
	aborts      prometheus.Counter
	fatals      prometheus.Counter
	swept       prometheus.Counter
	waiting     prometheus.Gauge
	barrierWait prometheus.Histogram

	mu        sync.Mutex
	arrivedAt map[int]time.Time
}

// NewMetrics returns Metrics with every collector registered.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		creates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poolstress",
			Name:      "pool_creates_total",
			Help:      "Pool create attempts by result.",
		}, []string{"result"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poolstress",
			Name:      "cycles_total",
			Help:      "Open/close cycles by result.",
		}, []string{"result"}),
		removes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poolstress",
			Name:      "files_removed_total",
			Help:      "Backing files removed during cleanup.",
		}),
		aborts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poolstress",
			Name:      "workers_aborted_total",
			Help:      "Workers that stopped early because the run was aborted.",
		}),
		fatals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poolstress",
			Name:      "fatal_errors_total",
			Help:      "Fatal environment errors.",
		}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poolstress",
			Name:      "swept_pools_total",
			Help:      "Stale pools destroyed before the run.",
		}),
		waiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "poolstress",
			Name:      "barrier_waiting",
			Help:      "Workers currently blocked at the barrier.",
		}),
		barrierWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "poolstress",
			Name:      "barrier_wait_seconds",
			Help:      "Time workers spent blocked at the barrier.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		arrivedAt: make(map[int]time.Time),
	}

	m.registry.MustRegister(
		m.creates, m.cycles, m.removes, m.aborts, m.fatals, m.swept, m.waiting, m.barrierWait,
	)

	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe updates the collectors for ev.
func (m *Metrics) Observe(ev Event) {
	switch ev.Kind {
	case EventCreated:
		m.creates.WithLabelValues("ok").Inc()
	case EventCreateFailed:
		m.creates.WithLabelValues("failed").Inc()
	case EventBarrierWait:
		m.waiting.Inc()
		m.mu.Lock()
		m.arrivedAt[ev.Worker] = ev.Time
		m.mu.Unlock()
	case EventBarrierReleased:
		m.leaveBarrier(ev)
	case EventClosed:
		m.cycles.WithLabelValues("ok").Inc()
	case EventOpenFailed, EventCloseFailed:
		if ev.Iteration >= 0 {
			m.cycles.WithLabelValues("failed").Inc()
		}
	case EventDestroyed:
		m.removes.Inc()
	case EventAborted:
		m.aborts.Inc()
		m.leaveBarrier(ev)
	case EventFatal:
		m.fatals.Inc()
	case EventSwept:
		m.swept.Inc()
	}
}

func (m *Metrics) leaveBarrier(ev Event) {
	m.mu.Lock()
	start, ok := m.arrivedAt[ev.Worker]
	delete(m.arrivedAt, ev.Worker)
	m.mu.Unlock()

	if !ok {
		return
	}

	m.waiting.Dec()
	m.barrierWait.Observe(ev.Time.Sub(start).Seconds())
}

// WriteTextfile writes every collector in Prometheus text format to path,
// atomically, for the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	var buf bytes.Buffer

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return fmt.Errorf("encode metrics: %w", err)
		}
	}

	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}

	return nil
}
