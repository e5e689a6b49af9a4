// Package collector restores global line order for results that arrive from
// concurrent dispatches in any order.
package collector

import (
	"container/heap"
	"context"
	"errors"
	"sync"

	errspkg "github.com/drblury/transflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/transflow/internal/runtime/logging"
)

// Emitter receives lines in ascending line-number order. The collector calls
// it under its own lock, so implementations need no locking.
type Emitter interface {
	Emit(lineNum int, text string) error
	Close() error
}

// Flusher is implemented by emitters that buffer output. The collector
// flushes after every contiguous run it emits, so emitted lines survive a
// process exit.
type Flusher interface {
	Flush() error
}

// Option configures a Collector.
type Option func(*Collector)

// WithFirstLine sets the line number expected first. Defaults to 0.
func WithFirstLine(line int) Option {
	return func(c *Collector) {
		c.next = line
	}
}

func WithLogger(log loggingpkg.ServiceLogger) Option {
	return func(c *Collector) {
		c.logger = loggingpkg.OrDiscard(log)
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Collector) {
		c.metrics = m
	}
}

// Collector buffers lines that arrive ahead of the next expected line number
// and emits every contiguous run as soon as it is complete. It is safe for
// concurrent use.
type Collector struct {
	mu      sync.Mutex
	emitter Emitter
	logger  loggingpkg.ServiceLogger
	metrics *Metrics

	next     int
	pending  lineHeap
	buffered map[int]struct{}
	closed   bool
	err      error

	emitted    uint64
	duplicates uint64
	dropped    uint64
}

// Stats is a point-in-time view of a Collector.
type Stats struct {
	NextLine   int    `json:"next_line"`
	Pending    int    `json:"pending"`
	Emitted    uint64 `json:"emitted"`
	Duplicates uint64 `json:"duplicates"`
	Dropped    uint64 `json:"dropped"`
	Closed     bool   `json:"closed"`
	LastError  string `json:"last_error,omitempty"`
}

// New returns a Collector that emits to emitter.
func New(emitter Emitter, opts ...Option) (*Collector, error) {
	if emitter == nil {
		return nil, errspkg.ErrEmitterRequired
	}
	c := &Collector{
		emitter:  emitter,
		logger:   loggingpkg.Discard(),
		buffered: make(map[int]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Write accepts one rendered line. Lines below the next expected number or
// already buffered are dropped as duplicates.
func (c *Collector) Write(lineNum int, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		c.dropped++
		c.recordErrLocked(errspkg.ErrCollectorClosed)
		c.logger.Error("Line written after close", errspkg.ErrCollectorClosed, loggingpkg.LogFields{"line_num": lineNum})
		c.metrics.dropped()
		return
	}

	if _, dup := c.buffered[lineNum]; dup || lineNum < c.next {
		c.duplicates++
		c.logger.Error("Duplicate line dropped", errspkg.ErrLineAlreadyWritten, loggingpkg.LogFields{
			"line_num":  lineNum,
			"next_line": c.next,
		})
		c.metrics.duplicate()
		return
	}

	heap.Push(&c.pending, bufferedLine{lineNum: lineNum, text: text})
	c.buffered[lineNum] = struct{}{}

	drained := 0
	for c.pending.Len() > 0 && c.pending[0].lineNum == c.next {
		line := heap.Pop(&c.pending).(bufferedLine)
		delete(c.buffered, line.lineNum)
		c.emitLocked(line)
		c.next++
		drained++
	}
	if drained > 0 {
		c.flushLocked()
	}
	c.metrics.setPending(c.pending.Len())
}

func (c *Collector) flushLocked() {
	f, ok := c.emitter.(Flusher)
	if !ok || c.err != nil {
		return
	}
	if err := f.Flush(); err != nil {
		c.recordErrLocked(err)
		c.logger.Error("Failed to flush output", err, loggingpkg.LogFields{"next_line": c.next})
		c.metrics.emitError()
	}
}

func (c *Collector) emitLocked(line bufferedLine) {
	if c.err != nil {
		c.dropped++
		c.metrics.dropped()
		return
	}
	if err := c.emitter.Emit(line.lineNum, line.text); err != nil {
		c.recordErrLocked(err)
		c.dropped++
		c.logger.Error("Failed to emit line", err, loggingpkg.LogFields{"line_num": line.lineNum})
		c.metrics.emitError()
		return
	}
	c.emitted++
	c.metrics.emittedLine()
}

func (c *Collector) recordErrLocked(err error) {
	if c.err == nil {
		c.err = err
	}
}

// Close emits every still-buffered line in ascending order, skipping over
// the line numbers that never arrived, then closes the emitter. It returns
// the first error recorded during the collector's lifetime. Further calls
// return the same error.
func (c *Collector) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.err
	}
	c.closed = true

	missing := 0
	flushed := 0
	for c.pending.Len() > 0 {
		if err := ctx.Err(); err != nil {
			c.recordErrLocked(err)
			c.dropped += uint64(c.pending.Len())
			break
		}
		line := heap.Pop(&c.pending).(bufferedLine)
		delete(c.buffered, line.lineNum)
		missing += line.lineNum - c.next
		c.emitLocked(line)
		c.next = line.lineNum + 1
		flushed++
	}
	if missing > 0 {
		c.logger.Info("Output has gaps; missing lines were skipped", loggingpkg.LogFields{
			"missing_lines": missing,
			"flushed_lines": flushed,
		})
	}
	c.pending = nil
	c.metrics.setPending(0)

	if err := c.emitter.Close(); err != nil {
		c.recordErrLocked(err)
	}
	return c.err
}

// Err returns the first recorded error without closing.
func (c *Collector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Pending returns the number of buffered lines waiting for a predecessor.
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.Len()
}

// NextLine returns the line number the collector waits for.
func (c *Collector) NextLine() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		NextLine:   c.next,
		Pending:    c.pending.Len(),
		Emitted:    c.emitted,
		Duplicates: c.duplicates,
		Dropped:    c.dropped,
		Closed:     c.closed,
	}
	if c.err != nil {
		s.LastError = c.err.Error()
	}
	return s
}

// IsClosed reports whether err came from writing to a closed collector.
func IsClosed(err error) bool {
	return errors.Is(err, errspkg.ErrCollectorClosed)
}

type bufferedLine struct {
	lineNum int
	text    string
}

// lineHeap is a min-heap on line number.
type lineHeap []bufferedLine

func (h lineHeap) Len() int           { return len(h) }
func (h lineHeap) Less(i, j int) bool { return h[i].lineNum < h[j].lineNum }
func (h lineHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *lineHeap) Push(x any) {
	*h = append(*h, x.(bufferedLine))
}

func (h *lineHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
