package metrics

import "github.com/prometheus/client_golang/prometheus"

// SyncMetrics exposes counters and gauges for the offline mutation queue.
type SyncMetrics struct {
	enqueuedTotal *prometheus.CounterVec
	replayedTotal *prometheus.CounterVec
	evictedTotal  prometheus.Counter
	queueDepth    prometheus.Gauge
	drainDuration prometheus.Histogram
}

func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	m := &SyncMetrics{
		enqueuedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "offline_queue",
			Name:      "enqueued_total",
			Help:      "Total operations deferred to the offline queue",
		}, []string{"table", "kind"}),
		replayedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "offline_queue",
			Name:      "replayed_total",
			Help:      "Total replay attempts during queue drains",
		}, []string{"table", "status"}),
		evictedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "offline_queue",
			Name:      "evicted_total",
			Help:      "Operations dropped because the queue hit its bound",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clinic",
			Subsystem: "offline_queue",
			Name:      "depth",
			Help:      "Operations currently waiting for replay",
		}),
		drainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "offline_queue",
			Name:      "drain_duration_seconds",
			Help:      "Duration of queue drain passes",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.enqueuedTotal, m.replayedTotal, m.evictedTotal, m.queueDepth, m.drainDuration)
	return m
}

func (m *SyncMetrics) ObserveEnqueued(table, kind string) {
	if m == nil {
		return
	}
	m.enqueuedTotal.WithLabelValues(table, kind).Inc()
}

func (m *SyncMetrics) ObserveReplay(table, status string) {
	if m == nil {
		return
	}
	m.replayedTotal.WithLabelValues(table, status).Inc()
}

func (m *SyncMetrics) ObserveEvicted() {
	if m == nil {
		return
	}
	m.evictedTotal.Inc()
}

func (m *SyncMetrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

func (m *SyncMetrics) ObserveDrainDuration(seconds float64) {
	if m == nil {
		return
	}
	m.drainDuration.Observe(seconds)
}

// BookingMetrics exposes counters for booking orchestration outcomes.
type BookingMetrics struct {
	outcomesTotal  *prometheus.CounterVec
	conflictsTotal prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		outcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "outcomes_total",
			Help:      "Booking operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		conflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "slot_conflicts_total",
			Help:      "Booking attempts rejected by the slot conflict checker",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.outcomesTotal, m.conflictsTotal)
	return m
}

func (m *BookingMetrics) ObserveOutcome(operation, outcome string) {
	if m == nil {
		return
	}
	m.outcomesTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *BookingMetrics) ObserveConflict() {
	if m == nil {
		return
	}
	m.conflictsTotal.Inc()
}
