package pkgcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const manifestFile = "manifest.json"

// manifest records which packages a cache directory already holds, so a
// package is installed at most once across executions. Writes merge the
// on-disk set with the new entries: two sessions discovering the same
// missing package concurrently both converge on the union, and package
// managers treat a re-install of a present package as a no-op anyway.
type manifest struct {
	path string
}

func newManifest(dir string) *manifest {
	return &manifest{path: filepath.Join(dir, manifestFile)}
}

func (m *manifest) load() (map[string]bool, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var pkgs []string
	if err := json.Unmarshal(data, &pkgs); err != nil {
		// A corrupt manifest just means packages get reinstalled once.
		return map[string]bool{}, nil
	}

	set := make(map[string]bool, len(pkgs))
	for _, p := range pkgs {
		set[p] = true
	}
	return set, nil
}

// record merges pkgs into the on-disk set.
func (m *manifest) record(pkgs []string) error {
	set, err := m.load()
	if err != nil {
		return err
	}
	for _, p := range pkgs {
		set[p] = true
	}

	merged := make([]string, 0, len(set))
	for p := range set {
		merged = append(merged, p)
	}
	sort.Strings(merged)

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0o644)
}

// missing returns the subset of pkgs not yet recorded.
func (m *manifest) missing(pkgs []string) ([]string, error) {
	set, err := m.load()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, p := range pkgs {
		if !set[p] {
			out = append(out, p)
		}
	}
	return out, nil
}
