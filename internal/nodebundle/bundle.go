// Package nodebundle bundles javascript user code with its npm
// dependencies into a single self-contained script, so node can run it
// from a bare workspace without a node_modules tree.
package nodebundle

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/michaelbrown/runbox/internal/pkgcache"
)

// Result of a bundling attempt. When Bundled is false, Code is the
// original source unchanged.
type Result struct {
	Bundled bool
	Code    string
	TempDir string
}

// Bundle detects required npm packages, installs them into a throwaway
// directory and bundles everything with esbuild. Callers must Cleanup the
// TempDir after the run finishes.
func Bundle(ctx context.Context, code, fileName string) (*Result, error) {
	packages := pkgcache.Detect(code, "javascript")
	if len(packages) == 0 {
		return &Result{Code: code}, nil
	}

	tempDir, err := os.MkdirTemp("", fmt.Sprintf("runbox_bundle_%d_", time.Now().UnixNano()))
	if err != nil {
		return nil, fmt.Errorf("creating bundle dir: %w", err)
	}

	res, err := bundleIn(ctx, tempDir, code, fileName, packages)
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, err
	}
	return res, nil
}

func bundleIn(ctx context.Context, tempDir, code, fileName string, packages []string) (*Result, error) {
	entry := filepath.Join(tempDir, fileName)
	if err := os.WriteFile(entry, []byte(code), 0o644); err != nil {
		return nil, fmt.Errorf("writing entry file: %w", err)
	}

	pkgJSON := []byte(`{"name": "runbox-user-code", "version": "1.0.0", "type": "commonjs"}`)
	if err := os.WriteFile(filepath.Join(tempDir, "package.json"), pkgJSON, 0o644); err != nil {
		return nil, fmt.Errorf("writing package.json: %w", err)
	}

	install := append([]string{"install", "--no-save", "--legacy-peer-deps"}, packages...)
	if err := run(ctx, tempDir, "npm", install...); err != nil {
		return nil, err
	}

	outFile := filepath.Join(tempDir, "bundle.js")
	if err := run(ctx, tempDir, esbuildCommand(),
		fileName, "--bundle", "--platform=node", "--format=cjs", "--outfile="+outFile); err != nil {
		return nil, err
	}

	bundled, err := os.ReadFile(outFile)
	if err != nil {
		return nil, fmt.Errorf("reading bundle: %w", err)
	}

	return &Result{Bundled: true, Code: string(bundled), TempDir: tempDir}, nil
}

// esbuildCommand prefers a standalone esbuild binary and falls back to
// the copy npm installs under node_modules/.bin via npx.
func esbuildCommand() string {
	if _, err := exec.LookPath("esbuild"); err == nil {
		return "esbuild"
	}
	return "npx"
}

func run(ctx context.Context, dir, name string, args ...string) error {
	if name == "npx" {
		args = append([]string{"esbuild"}, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		msg := out.String()
		if len(msg) > 400 {
			msg = "..." + msg[len(msg)-400:]
		}
		return fmt.Errorf("%s failed: %v: %s", name, err, msg)
	}
	return nil
}

// Cleanup removes a bundle temp dir. Best effort.
func (r *Result) Cleanup() {
	if r == nil || r.TempDir == "" {
		return
	}
	if err := os.RemoveAll(r.TempDir); err != nil {
		log.Printf("bundle cleanup error for %s: %v", r.TempDir, err)
	}
}
