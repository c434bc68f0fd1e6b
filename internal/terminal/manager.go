// Package terminal manages sandboxed shell sessions. Each session gets a
// working directory confined to its project root; commands run through
// the host shell with piped stdio and their output is streamed back as
// events.
package terminal

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// Event types sent to the session's client.
const (
	EventOutput = "terminal:output"
	EventCwd    = "terminal:cwd"
	EventStatus = "terminal:status"
)

// Event is one terminal message for a session.
type Event struct {
	Type string
	Data string
	Busy bool
}

// Emitter delivers a terminal event to a session's client.
type Emitter func(sessionID string, ev Event)

const clearScreen = "\x1b[2J\x1b[H"

// Manager tracks the shell state of every active session.
type Manager struct {
	emit Emitter

	// Shell overrides the command interpreter. Defaults to sh.
	Shell string

	mu       sync.Mutex
	sessions map[string]*shellState
}

// shellState is one session's terminal. cwd always stays under root.
type shellState struct {
	root string

	mu    sync.Mutex
	cwd   string
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

func NewManager(emit Emitter) *Manager {
	return &Manager{
		emit:     emit,
		sessions: make(map[string]*shellState),
	}
}

func (m *Manager) shell() string {
	if m.Shell != "" {
		return m.Shell
	}
	return "sh"
}

// Init creates (or resets) the terminal for a session, rooted at root.
// The root directory is created if missing.
func (m *Manager) Init(sessionID, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving terminal root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("creating terminal root: %w", err)
	}
	// Containment checks compare resolved paths, so the root must be
	// resolved too.
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return fmt.Errorf("resolving terminal root: %w", err)
	}

	st := &shellState{root: abs, cwd: abs}

	m.mu.Lock()
	if old := m.sessions[sessionID]; old != nil {
		old.kill()
	}
	m.sessions[sessionID] = st
	m.mu.Unlock()

	m.emit(sessionID, Event{Type: EventCwd, Data: st.display()})
	return nil
}

func (m *Manager) get(sessionID string) *shellState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionID]
}

// HandleInput is the single entry point for terminal keystrokes. While a
// command is running, input goes verbatim to its stdin; otherwise the
// input is a command line to interpret.
func (m *Manager) HandleInput(sessionID, input string) {
	st := m.get(sessionID)
	if st == nil {
		log.Printf("terminal input for unknown session %s", sessionID)
		return
	}

	if st.forward(input) {
		return
	}
	m.runCommand(sessionID, st, input)
}

// RunCommand executes one command line in the session's terminal. Part of
// the execute path for terminal requests; shares all state with
// HandleInput.
func (m *Manager) RunCommand(sessionID, command string) {
	st := m.get(sessionID)
	if st == nil {
		log.Printf("terminal command for unknown session %s", sessionID)
		return
	}
	if st.forward(command + "\n") {
		return
	}
	m.runCommand(sessionID, st, command)
}

func (m *Manager) runCommand(sessionID string, st *shellState, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		m.emit(sessionID, Event{Type: EventCwd, Data: st.display()})
		return
	}

	switch fields := strings.Fields(line); fields[0] {
	case "cd":
		m.changeDir(sessionID, st, fields[1:])
		return
	case "clear", "cls":
		m.emit(sessionID, Event{Type: EventOutput, Data: clearScreen})
		return
	}

	st.mu.Lock()
	cmd := exec.Command(m.shell(), "-c", line)
	cmd.Dir = st.cwd
	stdin, err := cmd.StdinPipe()
	if err == nil {
		var stdout, stderr io.ReadCloser
		stdout, err = cmd.StdoutPipe()
		if err == nil {
			stderr, err = cmd.StderrPipe()
			if err == nil {
				err = cmd.Start()
			}
		}
		if err == nil {
			st.cmd = cmd
			st.stdin = stdin
			st.mu.Unlock()

			m.emit(sessionID, Event{Type: EventStatus, Busy: true})

			var wg sync.WaitGroup
			wg.Add(2)
			go m.relay(sessionID, stdout, &wg)
			go m.relay(sessionID, stderr, &wg)

			go func() {
				wg.Wait()
				cmd.Wait()

				st.mu.Lock()
				st.cmd = nil
				st.stdin = nil
				st.mu.Unlock()

				m.emit(sessionID, Event{Type: EventStatus, Busy: false})
				m.emit(sessionID, Event{Type: EventCwd, Data: st.display()})
			}()
			return
		}
	}
	st.mu.Unlock()
	m.emit(sessionID, Event{Type: EventOutput, Data: fmt.Sprintf("Error: %v\r\n", err)})
	m.emit(sessionID, Event{Type: EventStatus, Busy: false})
}

func (m *Manager) relay(sessionID string, r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			m.emit(sessionID, Event{Type: EventOutput, Data: string(buf[:n])})
		}
		if err != nil {
			return
		}
	}
}

// changeDir handles the cd built-in. The resolved target must stay under
// the session root.
func (m *Manager) changeDir(sessionID string, st *shellState, args []string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	target := st.root
	if len(args) > 0 {
		if filepath.IsAbs(args[0]) {
			target = filepath.Clean(args[0])
		} else {
			target = filepath.Join(st.cwd, args[0])
		}
	}

	if !within(st.root, target) {
		m.emit(sessionID, Event{Type: EventOutput, Data: fmt.Sprintf("cd: access denied: %s\r\n", strings.Join(args, " "))})
		return
	}

	// A lexically contained path can still point outside the root
	// through a symlink, so re-check against the resolved path.
	resolved, err := filepath.EvalSymlinks(target)
	if err != nil {
		m.emit(sessionID, Event{Type: EventOutput, Data: fmt.Sprintf("cd: no such directory: %s\r\n", strings.Join(args, " "))})
		return
	}
	if !within(st.root, resolved) {
		m.emit(sessionID, Event{Type: EventOutput, Data: fmt.Sprintf("cd: access denied: %s\r\n", strings.Join(args, " "))})
		return
	}

	info, err := os.Stat(resolved)
	if err != nil || !info.IsDir() {
		m.emit(sessionID, Event{Type: EventOutput, Data: fmt.Sprintf("cd: no such directory: %s\r\n", strings.Join(args, " "))})
		return
	}

	st.cwd = resolved
	m.emit(sessionID, Event{Type: EventCwd, Data: st.displayLocked()})
}

// within reports whether path is root or a descendant of it.
func within(root, path string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(os.PathSeparator))
}

// forward writes input to the running command's stdin. Returns false when
// no command is running.
func (st *shellState) forward(input string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.stdin == nil {
		return false
	}
	if _, err := io.WriteString(st.stdin, input); err != nil {
		log.Printf("terminal stdin write: %v", err)
	}
	return true
}

func (st *shellState) kill() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.cmd != nil && st.cmd.Process != nil {
		st.cmd.Process.Kill()
	}
}

// display renders the cwd relative to the root, home-style.
func (st *shellState) display() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.displayLocked()
}

func (st *shellState) displayLocked() string {
	rel, err := filepath.Rel(st.root, st.cwd)
	if err != nil || rel == "." {
		return "~"
	}
	return "~/" + filepath.ToSlash(rel)
}

// Cwd returns the session's absolute working directory, for spawning
// processes that should start where the user is.
func (m *Manager) Cwd(sessionID string) (string, bool) {
	st := m.get(sessionID)
	if st == nil {
		return "", false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.cwd, true
}

// Busy reports whether the session currently has a running command.
func (m *Manager) Busy(sessionID string) bool {
	st := m.get(sessionID)
	if st == nil {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.cmd != nil
}

// Close tears down a session's terminal, killing any running command.
func (m *Manager) Close(sessionID string) {
	m.mu.Lock()
	st := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if st != nil {
		st.kill()
	}
}

// CloseAll tears down every terminal. Used on server shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	states := make([]*shellState, 0, len(m.sessions))
	for id, st := range m.sessions {
		states = append(states, st)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, st := range states {
		st.kill()
	}
}
