package hal

import (
	"bytes"
	"io"
	"sync"
)

// ansiClear homes the cursor and erases the screen of the host terminal.
const ansiClear = "\x1b[2J\x1b[H"

// hostSerial is the console port of the host board. The far end is a
// terminal, so a form feed written by the kernel console is sent as an ANSI
// clear.
type hostSerial struct {
	mu sync.Mutex
	r  io.Reader
	w  io.Writer
}

func (s *hostSerial) Read(p []byte) (int, error) {
	if s.r == nil {
		return 0, ErrNotImplemented
	}
	return s.r.Read(p)
}

// Write returns the number of bytes of p consumed.
func (s *hostSerial) Write(p []byte) (int, error) {
	if s.w == nil {
		return 0, ErrNotImplemented
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\f')
		if i < 0 {
			m, err := s.w.Write(p)
			return n + m, err
		}
		if i > 0 {
			m, err := s.w.Write(p[:i])
			n += m
			if err != nil {
				return n, err
			}
		}
		if _, err := io.WriteString(s.w, ansiClear); err != nil {
			return n, err
		}
		n++
		p = p[i+1:]
	}
	return n, nil
}
