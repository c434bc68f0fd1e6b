package runner

import (
	"fmt"
	"sync"
)

// Standalone is a Session for callers without a websocket connection:
// the CLI's one-shot run and the stdio tool binary.
type Standalone struct {
	id string

	mu      sync.Mutex
	proc    Proc
	cleanup func()
}

func NewStandalone(id string) *Standalone {
	return &Standalone{id: id}
}

func (s *Standalone) ID() string { return s.id }

func (s *Standalone) Attach(p Proc, cleanup func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proc = p
	s.cleanup = cleanup
}

func (s *Standalone) Detach(p Proc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == p {
		s.proc = nil
		s.cleanup = nil
	}
}

// Write forwards data to the attached process's stdin.
func (s *Standalone) Write(data string) error {
	s.mu.Lock()
	p := s.proc
	s.mu.Unlock()
	if p == nil {
		return fmt.Errorf("no process running")
	}
	return p.Write(data)
}

// Close kills the attached process and runs the registered cleanup.
func (s *Standalone) Close() {
	s.mu.Lock()
	p := s.proc
	cleanup := s.cleanup
	s.proc = nil
	s.cleanup = nil
	s.mu.Unlock()

	if p != nil {
		p.Kill()
	}
	if cleanup != nil {
		cleanup()
	}
}
