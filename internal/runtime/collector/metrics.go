package collector

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports collector activity. A nil *Metrics records nothing.
type Metrics struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	registered bool

	emitted    prometheus.Counter
	duplicates prometheus.Counter
	drops      prometheus.Counter
	emitErrors prometheus.Counter
	pending    prometheus.Gauge
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "transflow",
		Subsystem: "collector",
		Name:      name,
		Help:      help,
	})
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Metrics{
		registerer: registerer,
		emitted:    newCounter("lines_emitted_total", "Lines emitted in order"),
		duplicates: newCounter("duplicate_lines_total", "Lines dropped because their number was already written"),
		drops:      newCounter("dropped_lines_total", "Lines accepted but not emitted"),
		emitErrors: newCounter("emit_errors_total", "Emitter failures"),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "transflow",
			Subsystem: "collector",
			Name:      "pending_lines",
			Help:      "Lines buffered until their predecessors arrive",
		}),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}
	for _, c := range []prometheus.Collector{m.emitted, m.duplicates, m.drops, m.emitErrors, m.pending} {
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

func (m *Metrics) emittedLine() {
	if m != nil {
		m.emitted.Inc()
	}
}

func (m *Metrics) duplicate() {
	if m != nil {
		m.duplicates.Inc()
	}
}

func (m *Metrics) dropped() {
	if m != nil {
		m.drops.Inc()
	}
}

func (m *Metrics) emitError() {
	if m != nil {
		m.emitErrors.Inc()
	}
}

func (m *Metrics) setPending(n int) {
	if m != nil {
		m.pending.Set(float64(n))
	}
}
