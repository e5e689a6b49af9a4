package runtime

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/transflow/internal/runtime/jsoncodec"
	metadatapkg "github.com/drblury/transflow/internal/runtime/metadata"
)

const (
	latencySampleSize    = 256
	throughputWindowSize = time.Minute
)

// UnprocessableBatchError wraps input messages that could not be validated or
// decoded into a batch. Such messages go to the poison queue and never reach
// the engine.
type UnprocessableBatchError struct {
	MessageUUID string
	err         error
}

func (e *UnprocessableBatchError) Error() string {
	return fmt.Sprintf("unprocessable batch %s: %v", e.MessageUUID, e.err)
}

func (e *UnprocessableBatchError) Unwrap() error {
	return e.err
}

// DispatchStats aggregates dispatch activity for the stats API.
type DispatchStats struct {
	mu sync.Mutex `json:"-"`

	DispatchesStarted   uint64    `json:"dispatches_started"`
	DispatchesCompleted uint64    `json:"dispatches_completed"`
	EmptyBatches        uint64    `json:"empty_batches"`
	BatchesRejected     uint64    `json:"batches_rejected"`
	DispatchesFaulted   uint64    `json:"dispatches_faulted"`
	LinesPublished      uint64    `json:"lines_published"`
	TotalDecodeTime     int64     `json:"total_decode_time_ns"`
	LastDispatchAt      time.Time `json:"last_dispatch_at"`
	LastRejection       string    `json:"last_rejection,omitempty"`

	// Latency covers the engine call only.
	Latency    LatencyMetrics    `json:"decode_latency"`
	Throughput ThroughputMetrics `json:"throughput"`
	Resource   ResourceUsage     `json:"resource"`
	Backlog    BacklogMetrics    `json:"backlog"`

	latencyWindow    *latencyWindow    `json:"-"`
	throughputWindow *throughputWindow `json:"-"`
	resourceSampler  *resourceTracker  `json:"-"`
}

type LatencyMetrics struct {
	AverageNs  int64 `json:"average_ns"`
	P50Ns      int64 `json:"p50_ns"`
	P95Ns      int64 `json:"p95_ns"`
	P99Ns      int64 `json:"p99_ns"`
	LastNs     int64 `json:"last_ns"`
	SampleSize int   `json:"sample_size"`
}

// ThroughputMetrics counts completed dispatches and the lines they published.
type ThroughputMetrics struct {
	DispatchesPerSecond float64 `json:"dispatches_per_second"`
	LinesPerSecond      float64 `json:"lines_per_second"`
	WindowSeconds       float64 `json:"window_seconds"`
	DispatchesInWindow  uint64  `json:"dispatches_in_window"`
}

type BacklogMetrics struct {
	InFlight    uint64 `json:"in_flight"`
	MaxInFlight uint64 `json:"max_in_flight"`
	// EstimatedLagMillis is the age of the last input message when its batch
	// started, or -1 when unknown.
	EstimatedLagMillis int64 `json:"estimated_lag_millis"`
}

// NewDispatchStats returns an empty stats aggregate.
func NewDispatchStats() *DispatchStats {
	return newDispatchStats(newResourceTracker())
}

func newDispatchStats(sampler *resourceTracker) *DispatchStats {
	return &DispatchStats{
		resourceSampler:  sampler,
		latencyWindow:    newLatencyWindow(latencySampleSize),
		throughputWindow: newThroughputWindow(throughputWindowSize),
		Backlog:          BacklogMetrics{EstimatedLagMillis: -1},
	}
}

func (s *DispatchStats) onStart(lagMillis int64) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.DispatchesStarted++
	s.Backlog.InFlight++
	if s.Backlog.InFlight > s.Backlog.MaxInFlight {
		s.Backlog.MaxInFlight = s.Backlog.InFlight
	}
	if lagMillis >= 0 {
		s.Backlog.EstimatedLagMillis = lagMillis
	}
}

func (s *DispatchStats) onDecoded(duration time.Duration) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalDecodeTime += int64(duration)
	s.latencyWindow.Add(duration)
	s.Latency = s.latencyWindow.Snapshot()
}

func (s *DispatchStats) onDone(lines int) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Backlog.InFlight > 0 {
		s.Backlog.InFlight--
	}
	s.DispatchesCompleted++
	if lines == 0 {
		s.EmptyBatches++
	}
	s.LinesPublished += uint64(lines)
	now := time.Now()
	s.LastDispatchAt = now.UTC()

	snapshot := s.throughputWindow.AddAndSnapshot(now, lines)
	s.Throughput = ThroughputMetrics{
		DispatchesPerSecond: snapshot.CurrentRPS,
		LinesPerSecond:      snapshot.LinesPerSecond,
		WindowSeconds:       snapshot.WindowSeconds,
		DispatchesInWindow:  uint64(snapshot.Count),
	}

	if s.resourceSampler != nil {
		s.Resource = s.resourceSampler.Snapshot()
	}
}

func (s *DispatchStats) onFault() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Backlog.InFlight > 0 {
		s.Backlog.InFlight--
	}
	s.DispatchesFaulted++
}

func (s *DispatchStats) onRejected(err error) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.BatchesRejected++
	if err != nil {
		s.LastRejection = err.Error()
	}
}

// Snapshot returns a copy that is safe to read without locking.
func (s *DispatchStats) Snapshot() DispatchStats {
	if s == nil {
		return DispatchStats{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return DispatchStats{
		DispatchesStarted:   s.DispatchesStarted,
		DispatchesCompleted: s.DispatchesCompleted,
		EmptyBatches:        s.EmptyBatches,
		BatchesRejected:     s.BatchesRejected,
		DispatchesFaulted:   s.DispatchesFaulted,
		LinesPublished:      s.LinesPublished,
		TotalDecodeTime:     s.TotalDecodeTime,
		LastDispatchAt:      s.LastDispatchAt,
		LastRejection:       s.LastRejection,
		Latency:             s.Latency,
		Throughput:          s.Throughput,
		Resource:            s.Resource,
		Backlog:             s.Backlog,
	}
}

func (s *DispatchStats) MarshalJSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type Alias DispatchStats
	return jsoncodec.Marshal((*Alias)(s))
}

// enqueueLagMillis reads the producer timestamp stamped by PublishBatch.
func enqueueLagMillis(md message.Metadata) int64 {
	if md == nil {
		return -1
	}
	raw := md.Get(metadatapkg.KeyEnqueuedAt)
	if raw == "" {
		return -1
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return -1
	}
	lag := time.Since(ts).Milliseconds()
	if lag < 0 {
		return 0
	}
	return lag
}

type latencyWindow struct {
	samples []int64
	next    int
	filled  int
	last    int64
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = latencySampleSize
	}
	return &latencyWindow{samples: make([]int64, size)}
}

func (lw *latencyWindow) Add(d time.Duration) {
	if lw == nil || len(lw.samples) == 0 {
		return
	}
	lw.samples[lw.next] = int64(d)
	lw.last = int64(d)
	lw.next = (lw.next + 1) % len(lw.samples)
	if lw.filled < len(lw.samples) {
		lw.filled++
	}
}

func (lw *latencyWindow) Snapshot() LatencyMetrics {
	var metrics LatencyMetrics
	if lw == nil {
		return metrics
	}
	metrics.LastNs = lw.last
	if lw.filled == 0 {
		return metrics
	}
	samples := make([]int64, lw.filled)
	for i := 0; i < lw.filled; i++ {
		idx := lw.next - lw.filled + i
		if idx < 0 {
			idx += len(lw.samples)
		}
		samples[i] = lw.samples[idx]
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	var sum int64
	for _, v := range samples {
		sum += v
	}
	metrics.SampleSize = lw.filled
	metrics.AverageNs = sum / int64(len(samples))
	metrics.P50Ns = percentile(samples, 0.50)
	metrics.P95Ns = percentile(samples, 0.95)
	metrics.P99Ns = percentile(samples, 0.99)
	return metrics
}

func percentile(samples []int64, quantile float64) int64 {
	if len(samples) == 0 {
		return 0
	}
	if quantile <= 0 {
		return samples[0]
	}
	if quantile >= 1 {
		return samples[len(samples)-1]
	}
	pos := quantile * float64(len(samples)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return samples[lower]
	}
	frac := pos - float64(lower)
	return samples[lower] + int64(float64(samples[upper]-samples[lower])*frac)
}

type throughputSample struct {
	at    time.Time
	lines int
}

type throughputWindow struct {
	horizon time.Duration
	samples []throughputSample
}

type throughputSnapshot struct {
	Count          int
	WindowSeconds  float64
	CurrentRPS     float64
	LinesPerSecond float64
}

func newThroughputWindow(horizon time.Duration) *throughputWindow {
	return &throughputWindow{
		horizon: horizon,
		samples: make([]throughputSample, 0, 64),
	}
}

func (tw *throughputWindow) AddAndSnapshot(now time.Time, lines int) throughputSnapshot {
	if tw == nil {
		return throughputSnapshot{}
	}
	tw.samples = append(tw.samples, throughputSample{at: now, lines: lines})
	tw.evict(now)
	return tw.snapshot(now)
}

func (tw *throughputWindow) evict(now time.Time) {
	cutoff := now.Add(-tw.horizon)
	idx := 0
	for idx < len(tw.samples) && tw.samples[idx].at.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		copy(tw.samples, tw.samples[idx:])
		tw.samples = tw.samples[:len(tw.samples)-idx]
	}
}

func (tw *throughputWindow) snapshot(now time.Time) throughputSnapshot {
	if len(tw.samples) == 0 {
		return throughputSnapshot{}
	}
	span := now.Sub(tw.samples[0].at)
	if span <= 0 {
		span = time.Nanosecond
	}
	lines := 0
	for _, s := range tw.samples {
		lines += s.lines
	}
	count := len(tw.samples)
	return throughputSnapshot{
		Count:          count,
		WindowSeconds:  span.Seconds(),
		CurrentRPS:     float64(count) / span.Seconds(),
		LinesPerSecond: float64(lines) / span.Seconds(),
	}
}
