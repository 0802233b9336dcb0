package hw

import (
	"fmt"
	"io"
	"sync"
)

// Serial is a transmit line backed by a writer, e.g. a tty or stdout.
type Serial struct {
	mu sync.Mutex
	w  io.Writer
}

// NewSerial creates a transmit line writing to w.
func NewSerial(w io.Writer) *Serial {
	return &Serial{w: w}
}

// Transmit writes payload in full.
func (s *Serial) Transmit(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(payload); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}
