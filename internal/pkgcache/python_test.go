package pkgcache

import (
	"context"
	"testing"
	"time"
)

func TestPythonEnsureHonorsContextDeadline(t *testing.T) {
	c := NewPythonCache(t.TempDir())
	// Stand-in for a pip that never returns: it only exits when the
	// context does, as exec.CommandContext would.
	c.install = func(ctx context.Context, dir string, pkgs []string) error {
		<-ctx.Done()
		return ctx.Err()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := c.Ensure(ctx, []string{"numpy"})
	if err == nil {
		t.Fatal("Ensure should fail once the context expires")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Ensure blocked %s past an expired context", elapsed)
	}

	// A failed install must not be recorded as present.
	m := newManifest(c.dir)
	missing, merr := m.missing([]string{"numpy"})
	if merr != nil {
		t.Fatal(merr)
	}
	if len(missing) != 1 {
		t.Errorf("missing = %v, want the failed package still missing", missing)
	}
}

func TestPythonEnsureNoPackagesIsFree(t *testing.T) {
	c := NewPythonCache(t.TempDir())
	c.install = func(ctx context.Context, dir string, pkgs []string) error {
		t.Error("install invoked with no packages requested")
		return nil
	}
	if err := c.Ensure(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
}
