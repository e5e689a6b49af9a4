package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/transflow/internal/runtime/errors"
)

func TestSentenceBatchBounds(t *testing.T) {
	batch := SentenceBatch{{LineNum: 5, Text: "a"}, {LineNum: 6, Text: "b"}}
	assert.Equal(t, 5, batch.FirstLine())
	assert.Equal(t, 6, batch.LastLine())

	var empty SentenceBatch
	assert.Equal(t, -1, empty.FirstLine())
	assert.Equal(t, -1, empty.LastLine())
}

func TestHistoryBest(t *testing.T) {
	best, ok := History{LineNum: 1, Hypotheses: []Hypothesis{{Text: "x", Score: -0.5}, {Text: "y", Score: -1}}}.Best()
	require.True(t, ok)
	assert.Equal(t, "x", best.Text)

	_, ok = History{LineNum: 1}.Best()
	assert.False(t, ok)
}

func TestHistoriesCheckAligned(t *testing.T) {
	batch := SentenceBatch{{LineNum: 5}, {LineNum: 6}}

	tests := []struct {
		name      string
		histories Histories
		wantErr   bool
	}{
		{name: "aligned", histories: Histories{{LineNum: 5}, {LineNum: 6}}},
		{name: "short", histories: Histories{{LineNum: 5}}, wantErr: true},
		{name: "swapped", histories: Histories{{LineNum: 6}, {LineNum: 5}}, wantErr: true},
		{name: "extra", histories: Histories{{LineNum: 5}, {LineNum: 6}, {LineNum: 7}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.histories.CheckAligned(batch)
			if tt.wantErr {
				assert.ErrorIs(t, err, errspkg.ErrPositionalMismatch)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestFuncAdapters(t *testing.T) {
	search := SearchFunc(func(_ context.Context, b SentenceBatch) (Histories, error) {
		return Histories{{LineNum: b[0].LineNum}}, nil
	})
	got, err := search.Process(context.Background(), SentenceBatch{{LineNum: 9}})
	require.NoError(t, err)
	assert.Equal(t, 9, got[0].LineNum)

	printer := PrinterFunc(func(h History) string { return "rendered" })
	assert.Equal(t, "rendered", printer.Render(History{}))

	var gotLine int
	collector := OutputCollectorFunc(func(lineNum int, _ string) { gotLine = lineNum })
	collector.Write(3, "x")
	assert.Equal(t, 3, gotLine)
}

func TestAcceleratorFaultError(t *testing.T) {
	err := error(&AcceleratorFault{Device: "gpu0", Code: 700, Message: "illegal address"})
	assert.Equal(t, "accelerator fault on gpu0 (code 700): illegal address", err.Error())

	var target *AcceleratorFault
	assert.True(t, errors.As(errors.Join(errors.New("ctx"), err), &target))
	assert.Contains(t, (&AcceleratorFault{}).Error(), "unknown device")
	assert.ErrorIs(t, ErrOutOfMemory, errspkg.ErrOutOfMemory)
}

func TestNumberAndSplit(t *testing.T) {
	sentences := Number([]string{"a", "b", "c", "d", "e"}, 10)
	require.Len(t, sentences, 5)
	assert.Equal(t, Sentence{LineNum: 14, Text: "e"}, sentences[4])

	batches := Split(sentences, 2)
	require.Len(t, batches, 3)
	assert.Equal(t, 10, batches[0].FirstLine())
	assert.Equal(t, 14, batches[2].FirstLine())
	assert.Len(t, batches[2], 1)

	assert.Len(t, Split(sentences, 0), 1)
	assert.Nil(t, Split(nil, 3))

	batches[0] = append(batches[0], Sentence{LineNum: 99})
	assert.Equal(t, 12, sentences[2].LineNum)
}
