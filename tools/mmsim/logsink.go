package main

import (
	"bytes"

	"github.com/sirupsen/logrus"
)

// logWriter is an io.Writer that emits each complete line written to it as
// a log entry. Partial lines are held until their newline arrives.
type logWriter struct {
	entry *logrus.Entry
	buf   []byte
}

func newLogWriter(entry *logrus.Entry) *logWriter {
	return &logWriter{entry: entry}
}

// Write implements io.Writer.
func (w *logWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.entry.Info(string(w.buf[:i]))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

// Flush emits any buffered partial line.
func (w *logWriter) Flush() {
	if len(w.buf) != 0 {
		w.entry.Info(string(w.buf))
		w.buf = w.buf[:0]
	}
}
