package runtime

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	loggingpkg "github.com/drblury/transflow/internal/runtime/logging"
	"github.com/drblury/transflow/internal/runtime/model"
)

type loggedEntry struct {
	Level  string
	Msg    string
	Err    error
	Fields loggingpkg.LogFields
}

type logRecorder struct {
	mu      sync.Mutex
	entries []loggedEntry
}

// capturingLogger records every entry, including those of loggers derived
// through With.
type capturingLogger struct {
	rec    *logRecorder
	fields loggingpkg.LogFields
}

func newCapturingLogger() *capturingLogger {
	return &capturingLogger{rec: &logRecorder{}}
}

func (l *capturingLogger) recorder() *logRecorder {
	if l.rec == nil {
		l.rec = &logRecorder{}
	}
	return l.rec
}

func (l *capturingLogger) log(level, msg string, err error, fields loggingpkg.LogFields) {
	merged := loggingpkg.LogFields{}
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	rec := l.recorder()
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.entries = append(rec.entries, loggedEntry{Level: level, Msg: msg, Err: err, Fields: merged})
}

func (l *capturingLogger) With(fields loggingpkg.LogFields) loggingpkg.ServiceLogger {
	merged := loggingpkg.LogFields{}
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &capturingLogger{rec: l.recorder(), fields: merged}
}

func (l *capturingLogger) Debug(msg string, fields loggingpkg.LogFields) {
	l.log("debug", msg, nil, fields)
}

func (l *capturingLogger) Info(msg string, fields loggingpkg.LogFields) {
	l.log("info", msg, nil, fields)
}

func (l *capturingLogger) Error(msg string, err error, fields loggingpkg.LogFields) {
	l.log("error", msg, err, fields)
}

func (l *capturingLogger) Trace(msg string, fields loggingpkg.LogFields) {
	l.log("trace", msg, nil, fields)
}

func (l *capturingLogger) Entries() []loggedEntry {
	rec := l.recorder()
	rec.mu.Lock()
	defer rec.mu.Unlock()
	clone := make([]loggedEntry, len(rec.entries))
	copy(clone, rec.entries)
	return clone
}

func (l *capturingLogger) ErrorEntries() []loggedEntry {
	var out []loggedEntry
	for _, e := range l.Entries() {
		if e.Level == "error" {
			out = append(out, e)
		}
	}
	return out
}

// exitRecorder stands in for os.Exit. It records the code and ends the
// calling goroutine, so the caller observably never returns.
type exitRecorder struct {
	mu    sync.Mutex
	codes []int
}

func (r *exitRecorder) Exit(code int) {
	r.mu.Lock()
	r.codes = append(r.codes, code)
	r.mu.Unlock()
	runtime.Goexit()
}

func (r *exitRecorder) Codes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.codes...)
}

// runGuarded runs fn on its own goroutine and reports whether fn returned
// normally rather than being ended by the exit recorder.
func runGuarded(t *testing.T, fn func()) bool {
	t.Helper()
	done := make(chan bool, 1)
	go func() {
		returned := false
		defer func() { done <- returned }()
		fn()
		returned = true
	}()
	select {
	case returned := <-done:
		return returned
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch did not finish")
		return false
	}
}

type recordingCollector struct {
	mu    sync.Mutex
	lines []model.RenderedLine
}

func (c *recordingCollector) Write(lineNum int, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, model.RenderedLine{LineNum: lineNum, Text: text})
}

func (c *recordingCollector) Lines() []model.RenderedLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.RenderedLine(nil), c.lines...)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// upperSearch returns one upper-cased hypothesis per sentence.
func upperSearch() model.Search {
	return model.SearchFunc(func(_ context.Context, batch model.SentenceBatch) (model.Histories, error) {
		out := make(model.Histories, len(batch))
		for i, s := range batch {
			out[i] = model.History{LineNum: s.LineNum, Hypotheses: []model.Hypothesis{{Text: strings.ToUpper(s.Text)}}}
		}
		return out, nil
	})
}

var bestTextPrinter = model.PrinterFunc(func(h model.History) string {
	best, _ := h.Best()
	return best.Text
})

type testPublisher struct {
	mu       sync.Mutex
	messages map[string][]*message.Message
	err      error
	closed   bool
}

func (p *testPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if p.messages == nil {
		p.messages = make(map[string][]*message.Message)
	}
	p.messages[topic] = append(p.messages[topic], messages...)
	return nil
}

func (p *testPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *testPublisher) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *testPublisher) Messages(topic string) []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*message.Message(nil), p.messages[topic]...)
}

type testSubscriber struct {
	err    error
	closed atomic.Bool
}

func (s *testSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (s *testSubscriber) Close() error {
	s.closed.Store(true)
	return nil
}

// recordingTracer hands out valid spans and remembers them.
type recordingTracer struct {
	noop.Tracer
	mu    sync.Mutex
	spans []*recordingSpan
}

func (t *recordingTracer) Start(ctx context.Context, name string, _ ...trace.SpanStartOption) (context.Context, trace.Span) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := byte(len(t.spans) + 1)
	span := &recordingSpan{
		name: name,
		sc: trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    trace.TraceID{1},
			SpanID:     trace.SpanID{n},
			TraceFlags: trace.FlagsSampled,
		}),
	}
	t.spans = append(t.spans, span)
	return trace.ContextWithSpan(ctx, span), span
}

func (t *recordingTracer) Spans() []*recordingSpan {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*recordingSpan(nil), t.spans...)
}

type recordingSpan struct {
	noop.Span
	name        string
	sc          trace.SpanContext
	code        codes.Code
	description string
	errs        []error
	ended       bool
}

func (s *recordingSpan) SpanContext() trace.SpanContext { return s.sc }

func (s *recordingSpan) IsRecording() bool { return !s.ended }

func (s *recordingSpan) SetStatus(code codes.Code, description string) {
	s.code = code
	s.description = description
}

func (s *recordingSpan) RecordError(err error, _ ...trace.EventOption) {
	s.errs = append(s.errs, err)
}

func (s *recordingSpan) End(...trace.SpanEndOption) { s.ended = true }
