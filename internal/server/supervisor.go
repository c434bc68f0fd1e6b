package server

import (
	"fmt"
	"log"
	"sync"

	"github.com/michaelbrown/runbox/internal/runner"
)

// Session is the live state of one connected client: the process slot an
// execution attaches to, and the cleanup registered by whichever runner
// is active. Implements runner.Session.
type Session struct {
	id     string
	userID string

	mu      sync.Mutex
	proc    runner.Proc
	cleanup func()
	closed  bool
}

func (s *Session) ID() string { return s.id }

// UserID identifies whose file tree and terminal sandbox this session
// uses.
func (s *Session) UserID() string { return s.userID }

// Attach registers the running process and its cleanup. A process still
// occupying the slot is killed first; one execution per session at a
// time.
func (s *Session) Attach(p runner.Proc, cleanup func()) {
	s.mu.Lock()
	prev := s.proc
	prevCleanup := s.cleanup
	s.proc = p
	s.cleanup = cleanup
	closed := s.closed
	s.mu.Unlock()

	if prev != nil {
		log.Printf("session %s: replacing active process", s.id)
		prev.Kill()
		if prevCleanup != nil {
			prevCleanup()
		}
	}
	if closed {
		// Lost the race with teardown; don't leave the process running.
		p.Kill()
		if cleanup != nil {
			cleanup()
		}
	}
}

// Detach empties the process slot, but only while it still holds p. A
// runner whose process was replaced by a newer execution detaches late;
// that stale call must not wipe the replacement's registration.
func (s *Session) Detach(p runner.Proc) {
	s.mu.Lock()
	if s.proc == p {
		s.proc = nil
	}
	s.mu.Unlock()
}

// Forward writes client input to the attached process's stdin.
func (s *Session) Forward(data string) error {
	s.mu.Lock()
	p := s.proc
	s.mu.Unlock()
	if p == nil {
		return fmt.Errorf("no process running")
	}
	return p.Write(data)
}

// Kill terminates the attached process, if any. The runner observes the
// exit and emits completion as usual.
func (s *Session) Kill() {
	s.mu.Lock()
	p := s.proc
	s.mu.Unlock()
	if p != nil {
		if err := p.Kill(); err != nil {
			log.Printf("session %s: kill: %v", s.id, err)
		}
	}
}

// Close tears the session down: kill whatever is attached and run the
// registered cleanup. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
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

// Supervisor tracks every connected session.
type Supervisor struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSupervisor() *Supervisor {
	return &Supervisor{
		sessions: make(map[string]*Session),
	}
}

// Get returns a session if it exists.
func (sv *Supervisor) Get(sessionID string) (*Session, bool) {
	sv.mu.RLock()
	defer sv.mu.RUnlock()
	s, ok := sv.sessions[sessionID]
	return s, ok
}

// GetOrCreate returns the session for an id, creating it on first use.
func (sv *Supervisor) GetOrCreate(sessionID, userID string) *Session {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	if s, ok := sv.sessions[sessionID]; ok {
		return s
	}
	s := &Session{id: sessionID, userID: userID}
	sv.sessions[sessionID] = s
	return s
}

// Remove tears down and forgets a session.
func (sv *Supervisor) Remove(sessionID string) {
	sv.mu.Lock()
	s, ok := sv.sessions[sessionID]
	delete(sv.sessions, sessionID)
	sv.mu.Unlock()

	if ok {
		s.Close()
	}
}

// CloseAll tears down every session. Used on server shutdown.
func (sv *Supervisor) CloseAll() {
	sv.mu.Lock()
	all := make([]*Session, 0, len(sv.sessions))
	for id, s := range sv.sessions {
		all = append(all, s)
		delete(sv.sessions, id)
	}
	sv.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
}
