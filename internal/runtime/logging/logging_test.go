package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillServiceLoggerDelegates(t *testing.T) {
	base := newRecordingWatermillLogger()
	logger := NewWatermillServiceLogger(base)

	logger.Debug("dbg", LogFields{"component": "collector"})
	logger.Info("info", nil)
	logger.Trace("trace", LogFields{"trace": true})
	logger.Error("oops", errors.New("boom"), LogFields{"failed": true})

	child := logger.With(LogFields{"child": "yes"})
	child.Info("child_info", nil)

	require.Len(t, base.entries, 6)
	assert.Equal(t, "debug", base.entries[0].level)
	assert.Equal(t, "collector", base.entries[0].fields["component"])
	assert.Equal(t, "error", base.entries[3].level)
	assert.EqualError(t, base.entries[3].err, "boom")
	assert.Equal(t, "with", base.entries[4].level)
	assert.Equal(t, "yes", base.entries[4].fields["child"])
}

func TestWithEmptyFieldsReturnsSameLogger(t *testing.T) {
	logger := NewWatermillServiceLogger(newRecordingWatermillLogger())
	assert.Same(t, logger, logger.With(nil))
}

func TestConstructorsPanicOnNil(t *testing.T) {
	assert.Panics(t, func() { NewWatermillServiceLogger(nil) })
	assert.Panics(t, func() { NewSlogServiceLogger(nil) })
	assert.Panics(t, func() { NewWatermillAdapter(nil) })
}

func TestSlogServiceLoggerWritesStructuredFields(t *testing.T) {
	buf := &bytes.Buffer{}
	base := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	logger := NewSlogServiceLogger(base)

	logger.Error("decode fault", errors.New("cuda: illegal address"), LogFields{"fault_category": "accelerator"})

	out := buf.String()
	assert.Contains(t, out, "decode fault")
	assert.Contains(t, out, "fault_category=accelerator")
	assert.Contains(t, out, "cuda: illegal address")
}

func TestWatermillAdapterUnwrapsServiceLogger(t *testing.T) {
	base := newRecordingWatermillLogger()
	adapter := NewWatermillAdapter(NewWatermillServiceLogger(base))
	assert.Same(t, base, adapter)
}

func TestWatermillAdapterDelegates(t *testing.T) {
	base := &recordingServiceLogger{}
	adapter := NewWatermillAdapter(base)

	adapter.Debug("dbg", watermill.LogFields{"k": "v"})
	adapter.Info("info", nil)
	adapter.Trace("trace", nil)
	adapter.Error("err", errors.New("boom"), nil)
	adapter.With(watermill.LogFields{"child": "yes"}).Info("child_info", nil)

	require.Len(t, base.entries, 4)
	assert.Equal(t, "v", base.entries[0].fields["k"])
	assert.Nil(t, base.entries[1].fields)
	require.Len(t, base.children, 1)
	assert.Equal(t, "yes", base.children[0].with["child"])
	assert.Len(t, base.children[0].entries, 1)
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Info("dropped", LogFields{"k": "v"})
	logger.With(LogFields{"a": 1}).Error("dropped", errors.New("x"), nil)

	assert.NotNil(t, OrDiscard(nil))
	rec := &recordingServiceLogger{}
	assert.Same(t, rec, OrDiscard(rec))
}

func TestFieldConversions(t *testing.T) {
	assert.Nil(t, toWatermillFields(nil))
	assert.Nil(t, fromWatermillFields(nil))

	wm := toWatermillFields(LogFields{"a": 1})
	assert.Equal(t, 1, wm["a"])
	assert.Equal(t, 1, fromWatermillFields(wm)["a"])
}

func TestSlogLevelMappingIsIdentity(t *testing.T) {
	for from, to := range logLevelMapping {
		assert.Equal(t, from, to, strings.ToLower(from.String()))
	}
}

type watermillEntry struct {
	level  string
	fields watermill.LogFields
	err    error
}

type recordingWatermillLogger struct {
	entries []watermillEntry
	sink    *[]watermillEntry
}

func newRecordingWatermillLogger() *recordingWatermillLogger {
	logger := &recordingWatermillLogger{}
	logger.sink = &logger.entries
	return logger
}

func (r *recordingWatermillLogger) record(entry watermillEntry) {
	*r.sink = append(*r.sink, entry)
}

func (r *recordingWatermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	r.record(watermillEntry{level: "error", fields: fields, err: err})
}

func (r *recordingWatermillLogger) Info(msg string, fields watermill.LogFields) {
	r.record(watermillEntry{level: "info", fields: fields})
}

func (r *recordingWatermillLogger) Debug(msg string, fields watermill.LogFields) {
	r.record(watermillEntry{level: "debug", fields: fields})
}

func (r *recordingWatermillLogger) Trace(msg string, fields watermill.LogFields) {
	r.record(watermillEntry{level: "trace", fields: fields})
}

func (r *recordingWatermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	child := &recordingWatermillLogger{sink: r.sink}
	child.record(watermillEntry{level: "with", fields: fields})
	return child
}

type loggedEntry struct {
	level  string
	msg    string
	fields LogFields
	err    error
}

type recordingServiceLogger struct {
	with     LogFields
	entries  []loggedEntry
	children []*recordingServiceLogger
}

func (r *recordingServiceLogger) With(fields LogFields) ServiceLogger {
	child := &recordingServiceLogger{with: fields}
	r.children = append(r.children, child)
	return child
}

func (r *recordingServiceLogger) Debug(msg string, fields LogFields) {
	r.entries = append(r.entries, loggedEntry{level: "debug", msg: msg, fields: fields})
}

func (r *recordingServiceLogger) Info(msg string, fields LogFields) {
	r.entries = append(r.entries, loggedEntry{level: "info", msg: msg, fields: fields})
}

func (r *recordingServiceLogger) Error(msg string, err error, fields LogFields) {
	r.entries = append(r.entries, loggedEntry{level: "error", msg: msg, fields: fields, err: err})
}

func (r *recordingServiceLogger) Trace(msg string, fields LogFields) {
	r.entries = append(r.entries, loggedEntry{level: "trace", msg: msg, fields: fields})
}
