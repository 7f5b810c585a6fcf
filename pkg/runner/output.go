package runner

import (
	"bytes"
	"io"
	"sync"
)

// syncWriter serializes writes from concurrent workers.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// prefixWriter tags every complete line with the worker label.
type prefixWriter struct {
	w      io.Writer
	prefix []byte
	buf    bytes.Buffer
}

func newPrefixWriter(w io.Writer, label string) *prefixWriter {
	return &prefixWriter{w: w, prefix: []byte("[" + label + "] ")}
}

func (p *prefixWriter) Write(b []byte) (int, error) {
	p.buf.Write(b)
	for {
		line, err := p.buf.ReadBytes('\n')
		if err != nil {
			// Keep the partial line for the next write
			p.buf.Write(line)
			return len(b), nil
		}
		if _, err := p.w.Write(append(append([]byte{}, p.prefix...), line...)); err != nil {
			return len(b), err
		}
	}
}

// Flush writes a trailing partial line.
func (p *prefixWriter) Flush() error {
	if p.buf.Len() == 0 {
		return nil
	}
	line := append(append([]byte{}, p.prefix...), p.buf.Bytes()...)
	p.buf.Reset()
	_, err := p.w.Write(append(line, '\n'))
	return err
}

func flush(writers ...io.Writer) {
	for _, w := range writers {
		if f, ok := w.(interface{ Flush() error }); ok {
			_ = f.Flush()
		}
	}
}
