package collector

import (
	"bufio"
	"errors"
	"io"
	"os"
)

// EmitterFunc adapts a function to Emitter. Close is a no-op.
type EmitterFunc func(lineNum int, text string) error

func (f EmitterFunc) Emit(lineNum int, text string) error { return f(lineNum, text) }

func (f EmitterFunc) Close() error { return nil }

// WriterEmitter writes each line followed by a newline. Output is buffered
// until Flush or Close; a Collector flushes after every contiguous run.
type WriterEmitter struct {
	w      *bufio.Writer
	closer io.Closer
}

// NewWriterEmitter writes to w. w is flushed but never closed.
func NewWriterEmitter(w io.Writer) *WriterEmitter {
	return &WriterEmitter{w: bufio.NewWriter(w)}
}

// NewFileEmitter creates or truncates path and closes it on Close.
func NewFileEmitter(path string) (*WriterEmitter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &WriterEmitter{w: bufio.NewWriter(f), closer: f}, nil
}

func (e *WriterEmitter) Emit(_ int, text string) error {
	if _, err := e.w.WriteString(text); err != nil {
		return err
	}
	return e.w.WriteByte('\n')
}

func (e *WriterEmitter) Flush() error {
	return e.w.Flush()
}

func (e *WriterEmitter) Close() error {
	err := e.w.Flush()
	if e.closer != nil {
		err = errors.Join(err, e.closer.Close())
	}
	return err
}

// MultiEmitter fans every line out to all emitters. Every emitter sees every
// line even when another one fails.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(lineNum int, text string) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(lineNum, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Flush flushes every member that implements Flusher.
func (m MultiEmitter) Flush() error {
	var errs []error
	for _, e := range m {
		f, ok := e.(Flusher)
		if !ok {
			continue
		}
		if err := f.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiEmitter) Close() error {
	var errs []error
	for _, e := range m {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
