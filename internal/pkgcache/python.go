package pkgcache

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"sync"
)

// installFunc runs the actual package-manager command. Swappable in tests.
type installFunc func(ctx context.Context, dir string, pkgs []string) error

// PythonCache installs pip packages into a persistent target directory
// shared by all sessions. The directory is injected into child processes
// as PYTHONPATH.
type PythonCache struct {
	dir     string
	mu      sync.Mutex
	install installFunc
}

// NewPythonCache returns a cache rooted at dir (created on first use).
func NewPythonCache(dir string) *PythonCache {
	return &PythonCache{dir: dir, install: pipInstall}
}

// Dir returns the library directory to put on PYTHONPATH.
func (c *PythonCache) Dir() string { return c.dir }

// Ensure installs any of pkgs not already present. The manifest check
// makes repeat requests free; the mutex serializes installs within this
// process so pip never races itself on the shared target.
func (c *PythonCache) Ensure(ctx context.Context, pkgs []string) error {
	if len(pkgs) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating python lib dir: %w", err)
	}

	m := newManifest(c.dir)
	missing, err := m.missing(pkgs)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}

	log.Printf("pkgcache: installing python packages: %v", missing)
	if err := c.install(ctx, c.dir, missing); err != nil {
		return err
	}
	return m.record(missing)
}

func pipInstall(ctx context.Context, dir string, pkgs []string) error {
	python := "python3"
	if _, err := exec.LookPath(python); err != nil {
		python = "python"
	}

	args := append([]string{"-m", "pip", "install", "--target", dir}, pkgs...)
	cmd := exec.CommandContext(ctx, python, args...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pip install failed: %v: %s", err, tail(out.String(), 400))
	}
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
