package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/michaelbrown/runbox/internal/language"
	"github.com/michaelbrown/runbox/internal/pkgcache"
)

func bashDescriptor() *language.Descriptor {
	return &language.Descriptor{
		Name:       "bash",
		File:       "script.sh",
		Local:      "bash script.sh",
		TimeoutSec: 10,
	}
}

func requireBash(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
}

func waitComplete(t *testing.T, c *collector) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(15 * time.Second):
		t.Fatal("timed out waiting for execution_complete")
	}
}

func TestLocalRunStreamsOutput(t *testing.T) {
	requireBash(t)

	l := &Local{WorkspaceRoot: t.TempDir()}
	sess := &fakeSession{id: "s1"}
	c := newCollector()

	l.Run(context.Background(), sess, bashDescriptor(), "echo hello from runbox", "script.sh", c.emit)
	waitComplete(t, c)

	if out := c.combinedOutput(); !strings.Contains(out, "hello from runbox") {
		t.Errorf("output = %q, want program output", out)
	}
	if c.completions() != 1 {
		t.Errorf("completions = %d, want exactly 1", c.completions())
	}
	if sess.attached() != nil {
		t.Error("process still attached after completion")
	}
}

func TestLocalRunOutputOrdering(t *testing.T) {
	requireBash(t)

	var script strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&script, "echo seq-%d\nsleep 0.01\n", i)
	}

	l := &Local{WorkspaceRoot: t.TempDir()}
	c := newCollector()

	l.Run(context.Background(), &fakeSession{id: "s2"}, bashDescriptor(), script.String(), "script.sh", c.emit)
	waitComplete(t, c)

	out := c.combinedOutput()
	last := -1
	for i := 0; i < 10; i++ {
		idx := strings.Index(out, fmt.Sprintf("seq-%d", i))
		if idx < 0 {
			t.Fatalf("output missing seq-%d: %q", i, out)
		}
		if idx < last {
			t.Fatalf("seq-%d arrived out of order", i)
		}
		last = idx
	}
}

func TestLocalRunFileNameSubstitution(t *testing.T) {
	requireBash(t)

	l := &Local{WorkspaceRoot: t.TempDir()}
	c := newCollector()

	// The descriptor template names script.sh; the caller saved their
	// code as task.sh. The expanded command must run the caller's file.
	l.Run(context.Background(), &fakeSession{id: "s3"}, bashDescriptor(), "echo ran renamed file", "task.sh", c.emit)
	waitComplete(t, c)

	if out := c.combinedOutput(); !strings.Contains(out, "ran renamed file") {
		t.Errorf("output = %q, want output from renamed file", out)
	}
}

func TestLocalRunForwardsInput(t *testing.T) {
	requireBash(t)

	l := &Local{WorkspaceRoot: t.TempDir()}
	sess := &fakeSession{id: "s4"}
	c := newCollector()

	l.Run(context.Background(), sess, bashDescriptor(), "read line\necho got:$line", "script.sh", c.emit)

	// Wait for the process to attach, then feed its stdin.
	deadline := time.Now().Add(5 * time.Second)
	for sess.attached() == nil {
		if time.Now().After(deadline) {
			t.Fatal("process never attached")
		}
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(200 * time.Millisecond)
	if err := sess.attached().Write("ping\r"); err != nil {
		t.Fatal(err)
	}

	waitComplete(t, c)

	if out := c.combinedOutput(); !strings.Contains(out, "got:ping") {
		t.Errorf("output = %q, want echoed stdin", out)
	}
}

func TestLocalRunExitCodeReported(t *testing.T) {
	requireBash(t)

	l := &Local{WorkspaceRoot: t.TempDir()}
	c := newCollector()

	l.Run(context.Background(), &fakeSession{id: "s5"}, bashDescriptor(), "exit 3", "script.sh", c.emit)
	waitComplete(t, c)

	events := c.all()
	last := events[len(events)-1]
	if last.Type != EventComplete {
		t.Fatalf("final event = %+v, want completion", last)
	}
	if last.ExitCode == nil || *last.ExitCode != 3 {
		t.Errorf("exit code = %v, want 3", last.ExitCode)
	}
}

func TestLocalRunTimeoutKillsProcess(t *testing.T) {
	requireBash(t)

	desc := bashDescriptor()
	desc.TimeoutSec = 1

	l := &Local{WorkspaceRoot: t.TempDir()}
	sess := &fakeSession{id: "s6"}
	c := newCollector()

	start := time.Now()
	l.Run(context.Background(), sess, desc, "sleep 60", "script.sh", c.emit)
	waitComplete(t, c)

	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("run took %s, timeout did not fire", elapsed)
	}
	if out := c.combinedOutput(); !strings.Contains(out, "timed out") {
		t.Errorf("output = %q, want timeout message", out)
	}
	if c.completions() != 1 {
		t.Errorf("completions = %d, want exactly 1", c.completions())
	}
}

func TestLocalRunInstallFailureWarnsAndCompletes(t *testing.T) {
	requireBash(t)

	// A regular file where the lib directory should be makes Ensure fail
	// before pip is ever invoked.
	libPath := filepath.Join(t.TempDir(), "libs")
	if err := os.WriteFile(libPath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := &Local{
		WorkspaceRoot:  t.TempDir(),
		Python:         pkgcache.NewPythonCache(libPath),
		InstallTimeout: 5 * time.Second,
	}
	desc := &language.Descriptor{
		Name:       "python",
		File:       "main.py",
		Local:      "echo preprocess-done",
		TimeoutSec: 10,
	}
	c := newCollector()

	l.Run(context.Background(), &fakeSession{id: "s8"}, desc, "import numpy\n", "main.py", c.emit)
	waitComplete(t, c)

	out := c.combinedOutput()
	if !strings.Contains(out, "Warning: package install") {
		t.Errorf("output = %q, want install warning", out)
	}
	if !strings.Contains(out, "preprocess-done") {
		t.Errorf("output = %q, want execution to proceed past the warning", out)
	}
	if c.completions() != 1 {
		t.Errorf("completions = %d, want exactly 1", c.completions())
	}
}

func TestLocalRunRemovesWorkspace(t *testing.T) {
	requireBash(t)

	root := t.TempDir()
	l := &Local{WorkspaceRoot: root}
	c := newCollector()

	l.Run(context.Background(), &fakeSession{id: "s7"}, bashDescriptor(), "echo done", "script.sh", c.emit)
	waitComplete(t, c)

	// Removal is asynchronous; poll briefly.
	deadline := time.Now().Add(5 * time.Second)
	for {
		entries, err := os.ReadDir(root)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("workspace not removed: %v", entries)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
