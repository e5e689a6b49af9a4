package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/transflow/internal/runtime/errors"
	"github.com/drblury/transflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/transflow/internal/runtime/logging"
	"github.com/drblury/transflow/internal/runtime/model"
)

// ExitCodeDecodeFault is the process status after a fatal decode fault. It
// matches a SIGABRT termination so supervisors treat it as a crash.
const ExitCodeDecodeFault = 134

const tracerName = "github.com/drblury/transflow/dispatch"

var osExit = os.Exit

// DispatchState is the lifecycle of a single dispatch.
type DispatchState int

const (
	StatePending DispatchState = iota
	StateDecoding
	StatePublishing
	StateDone
	StateFatal
)

func (s DispatchState) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateDecoding:
		return "DECODING"
	case StatePublishing:
		return "PUBLISHING"
	case StateDone:
		return "DONE"
	case StateFatal:
		return "FATAL"
	default:
		return fmt.Sprintf("DispatchState(%d)", int(s))
	}
}

// DispatcherDependencies wires a Dispatcher. Search, Printer and Collector are
// required; everything else has a default.
type DispatcherDependencies struct {
	Search    model.Search
	Printer   model.Printer
	Collector model.OutputCollector

	Logger     loggingpkg.ServiceLogger
	Hooks      DispatchHooks
	Metrics    *DispatchMetrics
	Stats      *DispatchStats
	Classifier FaultClassifier
	Tracer     trace.Tracer

	// Diagnostics receives one plain line per fatal fault. Defaults to os.Stderr.
	Diagnostics io.Writer
	// Exit terminates the process. Defaults to os.Exit.
	Exit func(code int)
}

// Dispatcher runs batches through the engine and publishes the rendered
// results. It holds no per-dispatch state, so one Dispatcher serves any
// number of concurrent Dispatch calls.
type Dispatcher struct {
	search    model.Search
	printer   model.Printer
	collector model.OutputCollector

	logger      loggingpkg.ServiceLogger
	hooks       DispatchHooks
	metrics     *DispatchMetrics
	stats       *DispatchStats
	classifier  FaultClassifier
	tracer      trace.Tracer
	diagnostics io.Writer
	exit        func(code int)
	resources   *resourceTracker
}

// NewDispatcher validates deps and returns a ready Dispatcher.
func NewDispatcher(deps DispatcherDependencies) (*Dispatcher, error) {
	var errs []error
	if deps.Search == nil {
		errs = append(errs, errspkg.ErrSearchRequired)
	}
	if deps.Printer == nil {
		errs = append(errs, errspkg.ErrPrinterRequired)
	}
	if deps.Collector == nil {
		errs = append(errs, errspkg.ErrCollectorRequired)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	d := &Dispatcher{
		search:      deps.Search,
		printer:     deps.Printer,
		collector:   deps.Collector,
		logger:      loggingpkg.OrDiscard(deps.Logger),
		hooks:       deps.Hooks,
		metrics:     deps.Metrics,
		stats:       deps.Stats,
		classifier:  deps.Classifier,
		tracer:      deps.Tracer,
		diagnostics: deps.Diagnostics,
		exit:        deps.Exit,
		resources:   newResourceTracker(),
	}
	if d.classifier == nil {
		d.classifier = DefaultFaultClassifier
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer(tracerName)
	}
	if d.diagnostics == nil {
		d.diagnostics = os.Stderr
	}
	if d.exit == nil {
		d.exit = osExit
	}
	return d, nil
}

// dispatchRun is the per-call state. It never leaves the calling goroutine.
type dispatchRun struct {
	id        string
	ctx       context.Context
	batch     model.SentenceBatch
	startedAt time.Time
	state     DispatchState
	published int
	lagMillis int64
	spans     []trace.Span
}

func (d *Dispatcher) newRun(ctx context.Context, batch model.SentenceBatch) *dispatchRun {
	return &dispatchRun{
		id:        ids.New(),
		ctx:       ctx,
		batch:     batch,
		startedAt: time.Now(),
		state:     StatePending,
		lagMillis: -1,
	}
}

func (r *dispatchRun) hookContext() DispatchContext {
	return DispatchContext{
		DispatchID:     r.id,
		Context:        r.ctx,
		FirstLine:      r.batch.FirstLine(),
		LastLine:       r.batch.LastLine(),
		BatchSize:      len(r.batch),
		State:          r.state,
		StartedAt:      r.startedAt,
		Duration:       time.Since(r.startedAt),
		LinesPublished: r.published,
	}
}

func (r *dispatchRun) logFields() loggingpkg.LogFields {
	return loggingpkg.LogFields{
		"dispatch_id": r.id,
		"first_line":  r.batch.FirstLine(),
		"last_line":   r.batch.LastLine(),
		"batch_size":  len(r.batch),
	}
}

func (r *dispatchRun) startSpan(tracer trace.Tracer, name string) trace.Span {
	ctx, span := tracer.Start(r.ctx, name, trace.WithAttributes(
		attribute.String("transflow.dispatch_id", r.id),
		attribute.Int("transflow.batch_size", len(r.batch)),
		attribute.Int("transflow.first_line", r.batch.FirstLine()),
		attribute.Int("transflow.last_line", r.batch.LastLine()),
	))
	r.ctx = ctx
	r.spans = append(r.spans, span)
	return span
}

func (d *Dispatcher) transition(run *dispatchRun, to DispatchState) {
	from := run.state
	run.state = to
	d.hooks.transition(run.hookContext(), from, to)
}

// Dispatch decodes batch, renders every history in batch order and writes
// each line to the collector. A decode fault terminates the process, so
// Dispatch only returns once every line was handed over.
//
// ctx is never used to abort the dispatch; only its values are passed on.
func (d *Dispatcher) Dispatch(ctx context.Context, batch model.SentenceBatch) {
	d.dispatch(ctx, batch, -1)
}

func (d *Dispatcher) dispatch(ctx context.Context, batch model.SentenceBatch, lagMillis int64) {
	run := d.newRun(context.WithoutCancel(ctx), batch)
	run.lagMillis = lagMillis
	span := run.startSpan(d.tracer, "transflow.Dispatch")
	defer span.End()

	d.begin(run)
	histories := d.decode(run)
	if run.state == StateFatal {
		// Only reachable when the exit hook returns.
		return
	}

	d.transition(run, StatePublishing)
	for _, history := range histories {
		d.collector.Write(history.LineNum, d.printer.Render(history))
		run.published++
	}
	d.transition(run, StateDone)

	span.SetAttributes(attribute.Int("transflow.lines_published", run.published))
	d.stats.onDone(run.published)
	d.metrics.dispatchDone(run.published)
	d.hooks.done(run.hookContext())
	d.logger.Debug("Dispatch done", run.logFields())
}

// Decode runs batch through the engine and returns histories that are
// position-aligned with it. Any engine fault terminates the process; Decode
// never returns an error or a partial result.
func (d *Dispatcher) Decode(ctx context.Context, batch model.SentenceBatch) model.Histories {
	return d.decode(d.newRun(context.WithoutCancel(ctx), batch))
}

// reject records an input message that never became a batch.
func (d *Dispatcher) reject(ctx context.Context, err error) {
	d.stats.onRejected(err)
	d.metrics.rejected()
	d.hooks.rejected(DispatchContext{Context: ctx, FirstLine: -1, LastLine: -1}, err)
}

func (d *Dispatcher) begin(run *dispatchRun) {
	d.stats.onStart(run.lagMillis)
	d.metrics.dispatchStarted(len(run.batch))
	d.hooks.start(run.hookContext())
	d.logger.Debug("Dispatch started", run.logFields())
}

func (d *Dispatcher) decode(run *dispatchRun) model.Histories {
	d.transition(run, StateDecoding)
	if len(run.batch) == 0 {
		d.stats.onDecoded(0)
		return model.Histories{}
	}

	span := run.startSpan(d.tracer, "transflow.Decode")
	started := time.Now()
	histories, fault := d.invoke(run.ctx, run.batch)
	if fault != nil {
		d.abort(run, fault)
		return nil
	}
	elapsed := time.Since(started)
	span.End()
	run.spans = run.spans[:len(run.spans)-1]

	d.stats.onDecoded(elapsed)
	d.metrics.decoded(elapsed)
	return histories
}

// invoke calls the engine and converts both returned errors and panics into
// a Fault. Histories that break positional alignment are a runtime fault.
func (d *Dispatcher) invoke(ctx context.Context, batch model.SentenceBatch) (histories model.Histories, fault *Fault) {
	defer func() {
		if r := recover(); r != nil {
			histories = nil
			fault = newFault(r, d.classifier)
		}
	}()

	histories, err := d.search.Process(ctx, batch)
	if err != nil {
		return nil, newFault(err, d.classifier)
	}
	if err := histories.CheckAligned(batch); err != nil {
		return nil, newFault(err, d.classifier)
	}
	return histories, nil
}

// abort reports fault and terminates the process. It does not return when
// exit is os.Exit. Hooks run last and cannot keep the process alive.
func (d *Dispatcher) abort(run *dispatchRun, fault *Fault) {
	defer d.exit(ExitCodeDecodeFault)

	from := run.state
	run.state = StateFatal

	fields := run.logFields()
	fields["fault_category"] = string(fault.Category)
	fields["description"] = fault.Description
	if fault.Category == FaultMemory {
		usage := d.resources.Snapshot()
		fields["heap_alloc_bytes"] = usage.HeapAllocBytes
		fields["heap_sys_bytes"] = usage.HeapSysBytes
		fields["goroutines"] = usage.Goroutines
	}
	d.logger.Error("Fatal decode fault, terminating", fault, fields)
	fmt.Fprintf(d.diagnostics, "transflow: fatal %s (%s) during decode of lines %d-%d [dispatch %s]: %s\n",
		fault.Category.Label(), fault.Category, run.batch.FirstLine(), run.batch.LastLine(), run.id, fault.Description)

	d.stats.onFault()
	d.metrics.fault(fault.Category)

	for i := len(run.spans) - 1; i >= 0; i-- {
		span := run.spans[i]
		span.RecordError(fault, trace.WithAttributes(attribute.String("transflow.fault_category", string(fault.Category))))
		span.SetStatus(codes.Error, fault.Description)
		span.End()
	}
	run.spans = nil

	hookCtx := run.hookContext()
	d.guardHook(run, "OnTransition", func() { d.hooks.transition(hookCtx, from, StateFatal) })
	d.guardHook(run, "OnFault", func() { d.hooks.fault(hookCtx, fault) })
}

// guardHook runs a hook on the fatal path and logs a panic instead of
// propagating it.
func (d *Dispatcher) guardHook(run *dispatchRun, name string, hook func()) {
	defer func() {
		if r := recover(); r != nil {
			fields := run.logFields()
			fields["hook"] = name
			d.logger.Error("Dispatch hook panicked during fatal fault", fmt.Errorf("%v", r), fields)
		}
	}()
	hook()
}
