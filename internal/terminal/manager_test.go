package terminal

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// recorder collects events for a single session and signals when a
// command finishes (busy=false status).
type recorder struct {
	mu     sync.Mutex
	events []Event
	idle   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{idle: make(chan struct{}, 16)}
}

func (r *recorder) emit(sessionID string, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	if ev.Type == EventStatus && !ev.Busy {
		r.idle <- struct{}{}
	}
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) output() string {
	var b strings.Builder
	for _, ev := range r.all() {
		if ev.Type == EventOutput {
			b.WriteString(ev.Data)
		}
	}
	return b.String()
}

func (r *recorder) lastCwd() string {
	cwd := ""
	for _, ev := range r.all() {
		if ev.Type == EventCwd {
			cwd = ev.Data
		}
	}
	return cwd
}

func (r *recorder) waitIdle(t *testing.T) {
	t.Helper()
	select {
	case <-r.idle:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for command to finish")
	}
}

func newTestManager(t *testing.T) (*Manager, *recorder) {
	t.Helper()
	r := newRecorder()
	m := NewManager(r.emit)
	if err := m.Init("s1", t.TempDir()); err != nil {
		t.Fatal(err)
	}
	return m, r
}

func TestInitEmitsRootCwd(t *testing.T) {
	_, r := newTestManager(t)
	if got := r.lastCwd(); got != "~" {
		t.Errorf("cwd after init = %q, want ~", got)
	}
}

func TestRunCommandStreamsOutput(t *testing.T) {
	m, r := newTestManager(t)

	m.RunCommand("s1", "echo shell says hi")
	r.waitIdle(t)

	if out := r.output(); !strings.Contains(out, "shell says hi") {
		t.Errorf("output = %q, want command output", out)
	}

	// Busy status must have toggled on before toggling off.
	var sawBusy bool
	for _, ev := range r.all() {
		if ev.Type == EventStatus && ev.Busy {
			sawBusy = true
		}
	}
	if !sawBusy {
		t.Error("never saw busy status")
	}
}

func TestRunCommandStderr(t *testing.T) {
	m, r := newTestManager(t)

	m.RunCommand("s1", "echo oops >&2")
	r.waitIdle(t)

	if out := r.output(); !strings.Contains(out, "oops") {
		t.Errorf("output = %q, want stderr relayed", out)
	}
}

func TestCdRoundTrip(t *testing.T) {
	m, r := newTestManager(t)

	m.RunCommand("s1", "mkdir sub")
	r.waitIdle(t)

	m.HandleInput("s1", "cd sub")
	if got := r.lastCwd(); got != "~/sub" {
		t.Errorf("cwd after cd sub = %q, want ~/sub", got)
	}

	m.HandleInput("s1", "cd ..")
	if got := r.lastCwd(); got != "~" {
		t.Errorf("cwd after cd .. = %q, want ~", got)
	}
}

func TestCdEscapeDenied(t *testing.T) {
	m, r := newTestManager(t)

	m.HandleInput("s1", "cd ../../../etc")

	if out := r.output(); !strings.Contains(out, "access denied") {
		t.Errorf("output = %q, want access denied", out)
	}
	if got := r.lastCwd(); got != "~" {
		t.Errorf("cwd changed to %q after denied cd", got)
	}

	// Relative commands must still run at the root.
	m.RunCommand("s1", "pwd")
	r.waitIdle(t)
	cwd, ok := m.Cwd("s1")
	if !ok {
		t.Fatal("session lost")
	}
	if !strings.Contains(r.output(), filepath.Base(cwd)) {
		t.Errorf("pwd output %q does not mention cwd %q", r.output(), cwd)
	}
}

func TestCdAbsoluteOutsideDenied(t *testing.T) {
	m, r := newTestManager(t)

	m.HandleInput("s1", "cd /etc")
	if out := r.output(); !strings.Contains(out, "access denied") {
		t.Errorf("output = %q, want access denied", out)
	}
}

func TestCdSymlinkEscapeDenied(t *testing.T) {
	outside := t.TempDir()
	root := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(root, "escape")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	r := newRecorder()
	m := NewManager(r.emit)
	if err := m.Init("s1", root); err != nil {
		t.Fatal(err)
	}

	// The link lives under the root, so a lexical check alone would let
	// it through.
	m.HandleInput("s1", "cd escape")

	if out := r.output(); !strings.Contains(out, "access denied") {
		t.Errorf("output = %q, want access denied", out)
	}
	if got := r.lastCwd(); got != "~" {
		t.Errorf("cwd changed to %q after denied cd", got)
	}
	cwd, ok := m.Cwd("s1")
	if !ok {
		t.Fatal("session lost")
	}
	if strings.HasPrefix(cwd, outside) {
		t.Errorf("cwd %q escaped into %q", cwd, outside)
	}
}

func TestCdNonexistent(t *testing.T) {
	m, r := newTestManager(t)

	m.HandleInput("s1", "cd nope")
	if out := r.output(); !strings.Contains(out, "no such directory") {
		t.Errorf("output = %q, want no such directory", out)
	}
	if got := r.lastCwd(); got != "~" {
		t.Errorf("cwd changed to %q after failed cd", got)
	}
}

func TestCdNoArgsReturnsToRoot(t *testing.T) {
	m, r := newTestManager(t)

	m.RunCommand("s1", "mkdir deep")
	r.waitIdle(t)
	m.HandleInput("s1", "cd deep")
	m.HandleInput("s1", "cd")

	if got := r.lastCwd(); got != "~" {
		t.Errorf("cwd after bare cd = %q, want ~", got)
	}
}

func TestClearEmitsAnsiSequence(t *testing.T) {
	m, r := newTestManager(t)

	m.HandleInput("s1", "clear")
	if out := r.output(); !strings.Contains(out, clearScreen) {
		t.Errorf("output = %q, want clear sequence", out)
	}
}

func TestCommandRunsInCwd(t *testing.T) {
	m, r := newTestManager(t)

	m.RunCommand("s1", "mkdir work")
	r.waitIdle(t)
	m.HandleInput("s1", "cd work")

	m.RunCommand("s1", "touch made-here")
	r.waitIdle(t)

	cwd, _ := m.Cwd("s1")
	if _, err := os.Stat(filepath.Join(cwd, "made-here")); err != nil {
		t.Errorf("file not created in cwd: %v", err)
	}
}

func TestInputForwardedToRunningCommand(t *testing.T) {
	m, r := newTestManager(t)

	m.RunCommand("s1", "read line; echo reply:$line")

	// Give the command a moment to reach the read.
	deadline := time.Now().Add(5 * time.Second)
	for !m.Busy("s1") {
		if time.Now().After(deadline) {
			t.Fatal("command never became busy")
		}
		time.Sleep(10 * time.Millisecond)
	}
	m.HandleInput("s1", "hello\n")
	r.waitIdle(t)

	if out := r.output(); !strings.Contains(out, "reply:hello") {
		t.Errorf("output = %q, want forwarded stdin echoed", out)
	}
}

func TestSpawnFailureReported(t *testing.T) {
	r := newRecorder()
	m := NewManager(r.emit)
	m.Shell = "/nonexistent/shell"
	if err := m.Init("s1", t.TempDir()); err != nil {
		t.Fatal(err)
	}

	m.RunCommand("s1", "echo hi")
	r.waitIdle(t)

	if out := r.output(); !strings.Contains(out, "Error") {
		t.Errorf("output = %q, want spawn error", out)
	}
	if m.Busy("s1") {
		t.Error("session stuck busy after spawn failure")
	}
}

func TestCloseKillsRunningCommand(t *testing.T) {
	m, _ := newTestManager(t)

	m.RunCommand("s1", "sleep 60")
	deadline := time.Now().Add(5 * time.Second)
	for !m.Busy("s1") {
		if time.Now().After(deadline) {
			t.Fatal("command never became busy")
		}
		time.Sleep(10 * time.Millisecond)
	}

	m.Close("s1")
	if _, ok := m.Cwd("s1"); ok {
		t.Error("session still present after Close")
	}
}

func TestUnknownSessionIgnored(t *testing.T) {
	r := newRecorder()
	m := NewManager(r.emit)

	m.HandleInput("ghost", "echo hi")
	m.RunCommand("ghost", "echo hi")

	if len(r.all()) != 0 {
		t.Errorf("events = %v, want none for unknown session", r.all())
	}
}
