package runner

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"

	"github.com/michaelbrown/runbox/internal/language"
	"github.com/michaelbrown/runbox/internal/nodebundle"
	"github.com/michaelbrown/runbox/internal/pkgcache"
	"github.com/michaelbrown/runbox/internal/workspace"
)

// Local runs code directly on the host inside a pseudo-terminal, so
// programs that read stdin work interactively. Isolation is the caller's
// responsibility; this runner trusts its input.
type Local struct {
	WorkspaceRoot string
	Python        *pkgcache.PythonCache
	Java          *pkgcache.JavaCache

	// Shell wraps the expanded command so compound templates (a && b)
	// work. Overridable in tests.
	Shell string

	// InstallTimeout bounds the dependency preprocess step so a hung
	// installer cannot stall a run before the process spawns. Zero means
	// the default of two minutes.
	InstallTimeout time.Duration
}

func (l *Local) shell() string {
	if l.Shell != "" {
		return l.Shell
	}
	return "bash"
}

func (l *Local) installTimeout() time.Duration {
	if l.InstallTimeout > 0 {
		return l.InstallTimeout
	}
	return 2 * time.Minute
}

// Run executes code for the given language descriptor and streams output
// to emit. It emits exactly one execution_complete on every path. The
// spawned process is attached to sess until it exits, so session input is
// forwarded to its stdin.
func (l *Local) Run(ctx context.Context, sess Session, desc *language.Descriptor, code, fileName string, emit Emitter) {
	sanitized := workspace.Sanitize(code)
	if fileName == "" {
		fileName = desc.File
	}

	// Installers run under a deadline of their own; expiry cancels the
	// spawned pip/npm/mvn and surfaces through the warning path.
	installCtx, cancelInstall := context.WithTimeout(ctx, l.installTimeout())
	codeToExecute, bundle, extraEnv := l.preprocess(installCtx, desc, sanitized, fileName, emit)
	cancelInstall()

	ws, err := workspace.Create(l.WorkspaceRoot, sess.ID(), fileName, codeToExecute)
	if err != nil {
		output(emit, fmt.Sprintf("Error: %v\n", err))
		bundle.Cleanup()
		complete(emit, nil)
		return
	}

	command := language.ExpandCommand(desc.Local, desc.File, fileName)
	command = l.resolveProgram(command, desc)

	output(emit, fmt.Sprintf("Executing %s (interactive mode)...\n", fileName))

	cleanupOnce := sync.Once{}
	cleanup := func() {
		cleanupOnce.Do(func() {
			go func() {
				ws.Remove()
				bundle.Cleanup()
			}()
		})
	}

	cmd := exec.Command(l.shell())
	cmd.Dir = ws.Dir
	cmd.Env = mergeEnv(os.Environ(), desc.Env, extraEnv)

	f, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: 80, Rows: 30})
	if err != nil {
		output(emit, fmt.Sprintf("Error: failed to start shell: %v\n", err))
		cleanup()
		complete(emit, nil)
		return
	}

	proc := &ptyProc{f: f, cmd: cmd}
	sess.Attach(proc, func() {
		proc.Kill()
		cleanup()
	})

	// The shell exits when the command does, which is what drives the
	// completion event.
	fmt.Fprintf(f, "%s; exit $?\r", command)

	timeout := desc.Timeout()
	timer := time.AfterFunc(timeout, func() {
		output(emit, fmt.Sprintf("\nExecution timed out after %s\n", timeout))
		proc.Kill()
	})

	go func() {
		defer timer.Stop()

		l.stream(f, emit)

		err := cmd.Wait()
		f.Close()

		exitCode := 0
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else if err != nil {
			exitCode = -1
		}

		sess.Detach(proc)
		complete(emit, &exitCode)
		cleanup()
	}()
}

// stream relays PTY output chunks in order, applying the cosmetic
// filters. A read error means the PTY closed (creack/pty surfaces EIO on
// Linux once the child exits).
func (l *Local) stream(f *os.File, emit Emitter) {
	buf := make([]byte, 4096)
	first := true
	for {
		n, err := f.Read(buf)
		if n > 0 {
			chunk := StripTitleSequences(string(buf[:n]))
			if first {
				chunk = StripBanner(chunk)
				first = false
			}
			if chunk != "" {
				output(emit, chunk)
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("pty read ended: %v", err)
			}
			return
		}
	}
}

// preprocess runs the language-specific dependency steps. Each is
// independently failable and reported as a warning; execution proceeds
// best effort with whatever succeeded.
func (l *Local) preprocess(ctx context.Context, desc *language.Descriptor, code, fileName string, emit Emitter) (string, *nodebundle.Result, map[string]string) {
	extraEnv := map[string]string{}
	bundle := &nodebundle.Result{Code: code}

	switch desc.Name {
	case "javascript":
		if strings.Contains(code, "require(") {
			res, err := nodebundle.Bundle(ctx, code, fileName)
			if err != nil {
				output(emit, fmt.Sprintf("Warning: bundling failed: %v\n", err))
			} else {
				bundle = res
			}
		}

	case "python":
		if l.Python != nil {
			pkgs := pkgcache.Detect(code, "python")
			if err := l.Python.Ensure(ctx, pkgs); err != nil {
				output(emit, fmt.Sprintf("Warning: package install: %v\n", err))
			}
			if len(pkgs) > 0 {
				extraEnv["PYTHONPATH"] = l.Python.Dir()
			}
		}

	case "java":
		if l.Java != nil {
			pkgs := pkgcache.Detect(code, "java")
			classpath, err := l.Java.Ensure(ctx, pkgs)
			if err != nil {
				output(emit, fmt.Sprintf("Warning: dependency download: %v\n", err))
			}
			if classpath != "" {
				extraEnv["CLASSPATH"] = classpath + string(os.PathListSeparator) + "."
			}
		}
	}

	return bundle.Code, bundle, extraEnv
}

// resolveProgram swaps the template's program for the descriptor's
// alternate when the primary binary is missing from PATH (python3 vs
// python, pwsh vs powershell). One retry only, resolved before spawn
// because the command runs inside a shell.
func (l *Local) resolveProgram(command string, desc *language.Descriptor) string {
	program := desc.Program()
	if program == "" || desc.AltProgram == "" {
		return command
	}
	if _, err := exec.LookPath(program); err == nil {
		return command
	}
	if _, err := exec.LookPath(desc.AltProgram); err != nil {
		return command
	}
	return desc.AltProgram + strings.TrimPrefix(command, program)
}

func mergeEnv(base []string, overlays ...map[string]string) []string {
	out := append([]string(nil), base...)
	for _, overlay := range overlays {
		for k, v := range overlay {
			out = append(out, k+"="+v)
		}
	}
	return out
}

// ptyProc adapts a PTY-backed process to the session's attached-process
// slot.
type ptyProc struct {
	f   *os.File
	cmd *exec.Cmd

	mu     sync.Mutex
	killed bool
}

// Write forwards session input verbatim to the process's stdin.
func (p *ptyProc) Write(data string) error {
	_, err := p.f.WriteString(data)
	return err
}

// Kill terminates the process. Idempotent; Wait in the run goroutine
// reaps it.
func (p *ptyProc) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.killed {
		return nil
	}
	p.killed = true
	if p.cmd.Process != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}
