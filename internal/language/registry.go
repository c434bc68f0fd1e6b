// Package language holds the static registry of supported languages and
// the command-template expansion used to run caller-named files.
package language

import (
	_ "embed"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed languages.yaml
var builtinYAML []byte

// Terminal is the sentinel language id for raw shell commands. It never
// resolves to a Descriptor; the router sends it to the terminal manager.
const Terminal = "terminal"

// PistonTarget identifies a language on the remote execution API.
type PistonTarget struct {
	Language string `yaml:"language"`
	Version  string `yaml:"version"`
}

// Descriptor is the immutable per-language execution metadata.
type Descriptor struct {
	Name       string            `yaml:"-"`
	Image      string            `yaml:"image"`
	File       string            `yaml:"file"`
	Local      string            `yaml:"local"`
	AltProgram string            `yaml:"alt_program"`
	Env        map[string]string `yaml:"env"`
	Piston     *PistonTarget     `yaml:"piston"`
	TimeoutSec int               `yaml:"timeout_seconds"`
}

// Timeout returns the execution budget for this language.
func (d *Descriptor) Timeout() time.Duration {
	if d.TimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(d.TimeoutSec) * time.Second
}

// Program returns the first token of the local command template.
func (d *Descriptor) Program() string {
	fields := strings.Fields(d.Local)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Registry maps language ids to descriptors. Loaded once at startup.
type Registry struct {
	langs map[string]*Descriptor
}

// Load parses the embedded descriptor set.
func Load() (*Registry, error) {
	return parse(builtinYAML)
}

func parse(data []byte) (*Registry, error) {
	var raw map[string]*Descriptor
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing language registry: %w", err)
	}

	for name, d := range raw {
		if d == nil {
			return nil, fmt.Errorf("language %q: empty descriptor", name)
		}
		d.Name = name
		if d.File == "" {
			return nil, fmt.Errorf("language %q: missing file name", name)
		}
		if d.Local == "" {
			return nil, fmt.Errorf("language %q: missing local command", name)
		}
	}

	return &Registry{langs: raw}, nil
}

// Lookup resolves a language id to its descriptor.
func (r *Registry) Lookup(id string) (*Descriptor, error) {
	d, ok := r.langs[id]
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", id)
	}
	return d, nil
}

// LookupByExtension resolves a file extension (with or without the
// leading dot) to a descriptor, matching each language's canonical file
// name.
func (r *Registry) LookupByExtension(ext string) (*Descriptor, error) {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return nil, fmt.Errorf("no file extension to infer a language from")
	}
	for _, name := range r.Names() {
		d := r.langs[name]
		if strings.TrimPrefix(filepath.Ext(d.File), ".") == ext {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no language for extension .%s", ext)
}

// Names returns all registered language ids, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.langs))
	for name := range r.langs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
