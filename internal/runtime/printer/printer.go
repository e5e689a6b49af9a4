// Package printer renders decoded histories to output text.
package printer

import (
	"strconv"
	"strings"

	"github.com/drblury/transflow/internal/runtime/model"
)

const nbestSeparator = " ||| "

// Plain renders the best hypothesis, or an empty line when there is none.
type Plain struct{}

func (Plain) Render(history model.History) string {
	best, _ := history.Best()
	return best.Text
}

// NBest renders every hypothesis on its own line as
// "lineNum ||| text ||| score".
type NBest struct{}

func (NBest) Render(history model.History) string {
	var b strings.Builder
	prefix := strconv.Itoa(history.LineNum)
	for i, hyp := range history.Hypotheses {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(prefix)
		b.WriteString(nbestSeparator)
		b.WriteString(hyp.Text)
		b.WriteString(nbestSeparator)
		b.WriteString(strconv.FormatFloat(hyp.Score, 'f', 4, 64))
	}
	return b.String()
}

// New returns NBest when nbest is set and Plain otherwise.
func New(nbest bool) model.Printer {
	if nbest {
		return NBest{}
	}
	return Plain{}
}
