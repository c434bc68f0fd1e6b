// Package workspace materializes per-execution scratch directories.
package workspace

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Workspace is an ephemeral directory holding one materialized source file.
type Workspace struct {
	Dir      string
	FilePath string
}

// Sanitize strips embedded NUL bytes from source text before it touches
// the filesystem.
func Sanitize(code string) string {
	return strings.ReplaceAll(code, "\x00", "")
}

// Create makes a uniquely named directory under root and writes the
// sanitized source into it as fileName. The name is keyed by session id
// and a high-resolution timestamp so concurrent executions never collide.
func Create(root, sessionID, fileName, code string) (*Workspace, error) {
	if fileName == "" || fileName != filepath.Base(fileName) {
		return nil, fmt.Errorf("invalid file name: %q", fileName)
	}
	if root == "" {
		root = os.TempDir()
	}

	dir := filepath.Join(root, fmt.Sprintf("runbox_%s_%d", sessionID, time.Now().UnixNano()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}

	path := filepath.Join(dir, fileName)
	if err := os.WriteFile(path, []byte(Sanitize(code)), 0o644); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("writing source file: %w", err)
	}

	return &Workspace{Dir: dir, FilePath: path}, nil
}

// Remove deletes the workspace directory. Best effort: failures are
// logged, never surfaced to clients.
func (w *Workspace) Remove() {
	if w == nil || w.Dir == "" {
		return
	}
	if err := os.RemoveAll(w.Dir); err != nil {
		log.Printf("workspace cleanup error for %s: %v", w.Dir, err)
	}
}
