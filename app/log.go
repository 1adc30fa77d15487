package app

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"

	"hwkern/hal"
)

// lineWriter forwards complete lines to a hal.Logger.
type lineWriter struct {
	mu  sync.Mutex
	out hal.Logger
	buf []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.out.WriteLineBytes(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) == 0 {
		w.buf = nil
	}
	return len(p), nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", s, err)
	}
	return l, nil
}

// newLogger returns a text logger writing to out.
func newLogger(out hal.Logger, level string) (*slog.Logger, error) {
	l, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	h := slog.NewTextHandler(&lineWriter{out: out}, &slog.HandlerOptions{Level: l})
	return slog.New(h), nil
}
