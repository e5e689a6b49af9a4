package runtime

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetrics exports dispatch activity to Prometheus. A nil
// *DispatchMetrics records nothing.
type DispatchMetrics struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	registered bool

	dispatchesTotal *prometheus.CounterVec
	faultsTotal     *prometheus.CounterVec
	rejectedTotal   prometheus.Counter
	linesPublished  prometheus.Counter
	inFlight        prometheus.Gauge
	decodeSeconds   prometheus.Histogram
	batchSize       prometheus.Histogram
}

func dispatchOpts(name, help string) prometheus.Opts {
	return prometheus.Opts{
		Namespace: "transflow",
		Subsystem: "dispatch",
		Name:      name,
		Help:      help,
	}
}

// NewDispatchMetrics creates the collectors. Call Register before use.
func NewDispatchMetrics(registerer prometheus.Registerer) *DispatchMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	decodeOpts := dispatchOpts("decode_seconds", "Wall time of the engine call per batch")
	sizeOpts := dispatchOpts("batch_size", "Number of sentences per dispatched batch")

	return &DispatchMetrics{
		registerer: registerer,
		dispatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts(dispatchOpts("total", "Dispatches that reached a terminal state, by outcome")),
			[]string{"outcome"},
		),
		faultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts(dispatchOpts("faults_total", "Fatal decode faults, by category")),
			[]string{"category"},
		),
		rejectedTotal:  prometheus.NewCounter(prometheus.CounterOpts(dispatchOpts("rejected_total", "Input messages rejected before dispatch"))),
		linesPublished: prometheus.NewCounter(prometheus.CounterOpts(dispatchOpts("lines_published_total", "Lines handed to the output collector"))),
		inFlight:       prometheus.NewGauge(prometheus.GaugeOpts(dispatchOpts("in_flight", "Dispatches currently running"))),
		decodeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: decodeOpts.Namespace,
			Subsystem: decodeOpts.Subsystem,
			Name:      decodeOpts.Name,
			Help:      decodeOpts.Help,
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: sizeOpts.Namespace,
			Subsystem: sizeOpts.Subsystem,
			Name:      sizeOpts.Name,
			Help:      sizeOpts.Help,
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *DispatchMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.dispatchesTotal,
		m.faultsTotal,
		m.rejectedTotal,
		m.linesPublished,
		m.inFlight,
		m.decodeSeconds,
		m.batchSize,
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

func (m *DispatchMetrics) dispatchStarted(batchSize int) {
	if m == nil {
		return
	}
	m.inFlight.Inc()
	m.batchSize.Observe(float64(batchSize))
}

func (m *DispatchMetrics) decoded(duration time.Duration) {
	if m == nil {
		return
	}
	m.decodeSeconds.Observe(duration.Seconds())
}

func (m *DispatchMetrics) dispatchDone(lines int) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	outcome := "done"
	if lines == 0 {
		outcome = "empty"
	}
	m.dispatchesTotal.WithLabelValues(outcome).Inc()
	m.linesPublished.Add(float64(lines))
}

func (m *DispatchMetrics) fault(category FaultCategory) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.dispatchesTotal.WithLabelValues("fatal").Inc()
	m.faultsTotal.WithLabelValues(string(category)).Inc()
}

func (m *DispatchMetrics) rejected() {
	if m == nil {
		return
	}
	m.rejectedTotal.Inc()
}
