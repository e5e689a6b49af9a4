package runtime

import (
	"context"
	"time"

	loggingpkg "github.com/drblury/transflow/internal/runtime/logging"
)

// DispatchContext describes one dispatch to hooks.
type DispatchContext struct {
	// DispatchID is the ULID assigned to this dispatch.
	DispatchID string
	// Context carries the caller's trace and correlation values.
	Context context.Context
	// FirstLine and LastLine bound the batch; both are -1 for an empty batch.
	FirstLine int
	LastLine  int
	BatchSize int
	// State is the dispatch state at the time the hook runs.
	State     DispatchState
	StartedAt time.Time
	// Duration is set for OnDispatchDone and OnFault.
	Duration time.Duration
	// LinesPublished counts lines handed to the collector so far.
	LinesPublished int
}

// DispatchHooks are optional lifecycle callbacks. Nil hooks are skipped.
// Hooks run on the dispatching goroutine and must not block for long.
type DispatchHooks struct {
	// OnDispatchStart runs before the engine is called.
	OnDispatchStart func(ctx DispatchContext)

	// OnTransition runs on every state change.
	OnTransition func(ctx DispatchContext, from, to DispatchState)

	// OnDispatchDone runs after the last line was handed to the collector.
	OnDispatchDone func(ctx DispatchContext)

	// OnFault runs after the fault was logged and before the process exits.
	// It cannot prevent the exit; a panic here, or in OnTransition on the way
	// to StateFatal, is logged and swallowed.
	OnFault func(ctx DispatchContext, fault *Fault)

	// OnRejected runs when an input message could not be turned into a batch.
	// No dispatch takes place, so only Context is set.
	OnRejected func(ctx DispatchContext, err error)
}

// Merge combines two hook sets. Hooks from other run after those of h.
func (h DispatchHooks) Merge(other DispatchHooks) DispatchHooks {
	return DispatchHooks{
		OnDispatchStart: chainContextHooks(h.OnDispatchStart, other.OnDispatchStart),
		OnTransition:    chainTransitionHooks(h.OnTransition, other.OnTransition),
		OnDispatchDone:  chainContextHooks(h.OnDispatchDone, other.OnDispatchDone),
		OnFault:         chainFaultHooks(h.OnFault, other.OnFault),
		OnRejected:      chainRejectedHooks(h.OnRejected, other.OnRejected),
	}
}

func chainContextHooks(a, b func(DispatchContext)) func(DispatchContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DispatchContext) {
		a(ctx)
		b(ctx)
	}
}

func chainTransitionHooks(a, b func(DispatchContext, DispatchState, DispatchState)) func(DispatchContext, DispatchState, DispatchState) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DispatchContext, from, to DispatchState) {
		a(ctx, from, to)
		b(ctx, from, to)
	}
}

func chainFaultHooks(a, b func(DispatchContext, *Fault)) func(DispatchContext, *Fault) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DispatchContext, fault *Fault) {
		a(ctx, fault)
		b(ctx, fault)
	}
}

func chainRejectedHooks(a, b func(DispatchContext, error)) func(DispatchContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DispatchContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

func (h DispatchHooks) start(ctx DispatchContext) {
	if h.OnDispatchStart != nil {
		h.OnDispatchStart(ctx)
	}
}

func (h DispatchHooks) transition(ctx DispatchContext, from, to DispatchState) {
	if h.OnTransition != nil {
		h.OnTransition(ctx, from, to)
	}
}

func (h DispatchHooks) done(ctx DispatchContext) {
	if h.OnDispatchDone != nil {
		h.OnDispatchDone(ctx)
	}
}

func (h DispatchHooks) fault(ctx DispatchContext, fault *Fault) {
	if h.OnFault != nil {
		h.OnFault(ctx, fault)
	}
}

func (h DispatchHooks) rejected(ctx DispatchContext, err error) {
	if h.OnRejected != nil {
		h.OnRejected(ctx, err)
	}
}

// LoggingHooks returns hooks that log dispatch completion and rejected input
// at info level. Faults are always logged by the dispatcher itself.
func LoggingHooks(logger loggingpkg.ServiceLogger) DispatchHooks {
	logger = loggingpkg.OrDiscard(logger)
	return DispatchHooks{
		OnDispatchStart: func(ctx DispatchContext) {
			logger.Debug("Dispatch started", loggingpkg.LogFields{
				"dispatch_id": ctx.DispatchID,
				"first_line":  ctx.FirstLine,
				"batch_size":  ctx.BatchSize,
			})
		},
		OnDispatchDone: func(ctx DispatchContext) {
			logger.Info("Dispatch completed", loggingpkg.LogFields{
				"dispatch_id":     ctx.DispatchID,
				"first_line":      ctx.FirstLine,
				"last_line":       ctx.LastLine,
				"lines_published": ctx.LinesPublished,
				"duration_ms":     ctx.Duration.Milliseconds(),
			})
		},
		OnRejected: func(ctx DispatchContext, err error) {
			logger.Error("Batch rejected", err, nil)
		},
	}
}

// AlertingHooks returns hooks that forward every fault to alertFunc before the
// process exits.
func AlertingHooks(alertFunc func(ctx DispatchContext, fault *Fault)) DispatchHooks {
	return DispatchHooks{
		OnFault: alertFunc,
	}
}
