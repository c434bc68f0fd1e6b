package server

import (
	"sync"
	"testing"
)

type fakeProc struct {
	mu     sync.Mutex
	writes []string
	killed int
}

func (p *fakeProc) Write(data string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = append(p.writes, data)
	return nil
}

func (p *fakeProc) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killed++
	return nil
}

func (p *fakeProc) killCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

func TestSupervisorGetOrCreate(t *testing.T) {
	sv := NewSupervisor()
	defer sv.CloseAll()

	s1 := sv.GetOrCreate("sess-1", "user-1")
	s2 := sv.GetOrCreate("sess-1", "user-1")
	if s1 != s2 {
		t.Error("expected same Session instance on second call")
	}
	if s1.ID() != "sess-1" || s1.UserID() != "user-1" {
		t.Errorf("session identity = %s/%s", s1.ID(), s1.UserID())
	}
}

func TestSessionForward(t *testing.T) {
	sv := NewSupervisor()
	defer sv.CloseAll()
	s := sv.GetOrCreate("sess-1", "user-1")

	if err := s.Forward("early"); err == nil {
		t.Error("Forward with no process should fail")
	}

	p := &fakeProc{}
	s.Attach(p, nil)

	if err := s.Forward("hello"); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if len(p.writes) != 1 || p.writes[0] != "hello" {
		t.Errorf("writes = %v", p.writes)
	}

	s.Detach(p)
	if err := s.Forward("late"); err == nil {
		t.Error("Forward after detach should fail")
	}
}

func TestSessionStaleDetachKeepsReplacement(t *testing.T) {
	sv := NewSupervisor()
	defer sv.CloseAll()
	s := sv.GetOrCreate("sess-1", "user-1")

	first := &fakeProc{}
	s.Attach(first, nil)

	second := &fakeProc{}
	s.Attach(second, nil)

	// The first execution's goroutine observes its kill and detaches
	// after the replacement attached. That must not clear the slot.
	s.Detach(first)

	if err := s.Forward("input"); err != nil {
		t.Fatalf("Forward after stale detach: %v", err)
	}
	second.mu.Lock()
	writes := append([]string(nil), second.writes...)
	second.mu.Unlock()
	if len(writes) != 1 || writes[0] != "input" {
		t.Errorf("second process writes = %v, want [input]", writes)
	}

	s.Detach(second)
	if err := s.Forward("late"); err == nil {
		t.Error("Forward after owning detach should fail")
	}
}

func TestSessionAttachReplacesProcess(t *testing.T) {
	sv := NewSupervisor()
	defer sv.CloseAll()
	s := sv.GetOrCreate("sess-1", "user-1")

	first := &fakeProc{}
	var firstCleaned int
	s.Attach(first, func() { firstCleaned++ })

	second := &fakeProc{}
	s.Attach(second, nil)

	if first.killCount() == 0 {
		t.Error("first process not killed on replacement")
	}
	if firstCleaned != 1 {
		t.Errorf("first cleanup ran %d times, want 1", firstCleaned)
	}
	if second.killCount() != 0 {
		t.Error("second process should still be running")
	}
}

func TestSessionCloseRunsCleanupOnce(t *testing.T) {
	sv := NewSupervisor()
	s := sv.GetOrCreate("sess-1", "user-1")

	p := &fakeProc{}
	var cleaned int
	s.Attach(p, func() { cleaned++ })

	s.Close()
	s.Close()

	if p.killCount() == 0 {
		t.Error("process not killed on close")
	}
	if cleaned != 1 {
		t.Errorf("cleanup ran %d times, want exactly 1", cleaned)
	}
}

func TestSessionAttachAfterClose(t *testing.T) {
	sv := NewSupervisor()
	s := sv.GetOrCreate("sess-1", "user-1")
	s.Close()

	p := &fakeProc{}
	var cleaned int
	s.Attach(p, func() { cleaned++ })

	if p.killCount() == 0 {
		t.Error("process attached to a closed session must be killed")
	}
	if cleaned != 1 {
		t.Errorf("cleanup ran %d times, want 1", cleaned)
	}
}

func TestSupervisorRemove(t *testing.T) {
	sv := NewSupervisor()
	s := sv.GetOrCreate("sess-1", "user-1")

	p := &fakeProc{}
	s.Attach(p, nil)

	sv.Remove("sess-1")

	if _, ok := sv.Get("sess-1"); ok {
		t.Error("session still present after Remove")
	}
	if p.killCount() == 0 {
		t.Error("process not killed on Remove")
	}

	// Removing twice is harmless.
	sv.Remove("sess-1")
}

func TestSupervisorCloseAll(t *testing.T) {
	sv := NewSupervisor()

	procs := make([]*fakeProc, 3)
	for i, id := range []string{"a", "b", "c"} {
		s := sv.GetOrCreate(id, id)
		procs[i] = &fakeProc{}
		s.Attach(procs[i], nil)
	}

	sv.CloseAll()

	for i, p := range procs {
		if p.killCount() == 0 {
			t.Errorf("process %d not killed by CloseAll", i)
		}
	}
	if _, ok := sv.Get("a"); ok {
		t.Error("sessions remain after CloseAll")
	}
}
