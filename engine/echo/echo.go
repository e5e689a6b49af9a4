// Package echo is a reference engine that returns every source sentence as
// its own translation. It exists to run the pipeline without a model.
package echo

import (
	"context"
	"strings"

	"github.com/drblury/transflow/internal/runtime/model"
)

// Option configures an Engine.
type Option func(*Engine)

// Upper upper-cases every hypothesis.
func Upper() Option {
	return func(e *Engine) {
		e.transform = strings.ToUpper
	}
}

// Engine implements model.Search.
type Engine struct {
	transform func(string) string
}

func New(opts ...Option) *Engine {
	e := &Engine{transform: func(s string) string { return s }}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Process(_ context.Context, batch model.SentenceBatch) (model.Histories, error) {
	out := make(model.Histories, len(batch))
	for i, s := range batch {
		out[i] = model.History{
			LineNum:    s.LineNum,
			Hypotheses: []model.Hypothesis{{Text: e.transform(s.Text)}},
		}
	}
	return out, nil
}
