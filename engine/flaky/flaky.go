// Package flaky wraps an engine and injects a fault on a chosen call. It is
// used to exercise the fatal decode path end to end.
package flaky

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/drblury/transflow/internal/runtime/model"
)

// Kind selects the injected fault.
type Kind string

const (
	Accelerator Kind = "accelerator"
	Memory      Kind = "memory"
	Runtime     Kind = "runtime"
	// Panic panics with a plain string, which is not an error value.
	Panic Kind = "panic"
)

// ParseKind validates a fault name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case Accelerator, Memory, Runtime, Panic:
		return k, nil
	default:
		return "", fmt.Errorf("unknown fault kind %q", s)
	}
}

// Engine delegates to Inner and faults on call number FailOn (1-based).
type Engine struct {
	Inner  model.Search
	Kind   Kind
	FailOn int64

	calls atomic.Int64
}

func New(inner model.Search, kind Kind, failOn int64) *Engine {
	return &Engine{Inner: inner, Kind: kind, FailOn: failOn}
}

// Calls returns how many batches the engine was asked to decode.
func (e *Engine) Calls() int64 {
	return e.calls.Load()
}

func (e *Engine) Process(ctx context.Context, batch model.SentenceBatch) (model.Histories, error) {
	if e.calls.Add(1) != e.FailOn {
		return e.Inner.Process(ctx, batch)
	}
	lines := fmt.Sprintf("lines %d-%d", batch.FirstLine(), batch.LastLine())
	switch e.Kind {
	case Accelerator:
		return nil, &model.AcceleratorFault{Device: "gpu0", Code: 700, Message: "an illegal memory access was encountered (" + lines + ")"}
	case Memory:
		return nil, fmt.Errorf("allocating beam workspace for %s: %w", lines, model.ErrOutOfMemory)
	case Panic:
		panic("injected fault while decoding " + lines)
	default:
		return nil, errors.New("injected runtime error while decoding " + lines)
	}
}
