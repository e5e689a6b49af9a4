// Package model holds the data shapes that flow through a dispatch: the
// sentences handed to a decoding engine, the histories it returns and the
// rendered lines published to the ordered sink.
package model

import (
	"context"
	"fmt"

	errspkg "github.com/drblury/transflow/internal/runtime/errors"
)

// Sentence is one input line. LineNum is its absolute position in the input
// stream and never changes once assigned.
type Sentence struct {
	LineNum int    `json:"line_num"`
	Text    string `json:"text"`
}

// SentenceBatch is the ordered group of sentences handed to one dispatch.
// Engines must treat it as read-only.
type SentenceBatch []Sentence

// FirstLine returns the line number of the first sentence, or -1 when the
// batch is empty.
func (b SentenceBatch) FirstLine() int {
	if len(b) == 0 {
		return -1
	}
	return b[0].LineNum
}

// LastLine returns the line number of the last sentence, or -1 when the batch
// is empty.
func (b SentenceBatch) LastLine() int {
	if len(b) == 0 {
		return -1
	}
	return b[len(b)-1].LineNum
}

// Hypothesis is one scored candidate translation.
type Hypothesis struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// History is the decoding result for a single sentence. Only printers look
// inside Hypotheses.
type History struct {
	LineNum    int          `json:"line_num"`
	Hypotheses []Hypothesis `json:"hypotheses,omitempty"`
}

// Best returns the first hypothesis. Engines return hypotheses best-first.
func (h History) Best() (Hypothesis, bool) {
	if len(h.Hypotheses) == 0 {
		return Hypothesis{}, false
	}
	return h.Hypotheses[0], true
}

// Histories is the engine output for a batch, position-aligned with it.
type Histories []History

// CheckAligned reports whether h is position-aligned with batch: same length
// and the same line number at every index.
func (h Histories) CheckAligned(batch SentenceBatch) error {
	if len(h) != len(batch) {
		return fmt.Errorf("%w: got %d histories for %d sentences", errspkg.ErrPositionalMismatch, len(h), len(batch))
	}
	for i := range batch {
		if h[i].LineNum != batch[i].LineNum {
			return fmt.Errorf("%w: index %d holds line %d, want %d", errspkg.ErrPositionalMismatch, i, h[i].LineNum, batch[i].LineNum)
		}
	}
	return nil
}

// RenderedLine is the printer output for one history, addressed by line number.
type RenderedLine struct {
	LineNum int    `json:"line_num"`
	Text    string `json:"text"`
}

// Search is the decoding engine. Process blocks until the whole batch is
// decoded. Faults may surface as a returned error or as a panic.
type Search interface {
	Process(ctx context.Context, batch SentenceBatch) (Histories, error)
}

// SearchFunc adapts a function to Search.
type SearchFunc func(ctx context.Context, batch SentenceBatch) (Histories, error)

func (f SearchFunc) Process(ctx context.Context, batch SentenceBatch) (Histories, error) {
	return f(ctx, batch)
}

// Printer renders a history to text. Implementations are pure and total.
type Printer interface {
	Render(history History) string
}

// PrinterFunc adapts a function to Printer.
type PrinterFunc func(history History) string

func (f PrinterFunc) Render(history History) string {
	return f(history)
}

// OutputCollector is the shared ordered sink. Write is safe for concurrent
// use and accepts line numbers in any order.
type OutputCollector interface {
	Write(lineNum int, text string)
}

// OutputCollectorFunc adapts a function to OutputCollector.
type OutputCollectorFunc func(lineNum int, text string)

func (f OutputCollectorFunc) Write(lineNum int, text string) {
	f(lineNum, text)
}
