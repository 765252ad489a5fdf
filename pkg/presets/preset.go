// Package presets describes how a project is started under supervisor.
//
// A preset is named "<language>:<subset>" (for example "java:gradle") and
// contributes the program command and environment of the rendered supervisor
// config. The set of presets is closed: every variant is registered here.
package presets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Preset is one way of running a deployed project.
type Preset interface {
	// Name returns the "<language>:<subset>" identifier.
	Name() string

	// RunCommand returns the supervisor program command.
	RunCommand() string

	// Environment returns the supervisor environment string
	// (KEY="value" pairs separated by commas), possibly empty.
	Environment() string

	// Verify checks that the local project at dir can be run by this preset.
	Verify(dir string) error
}

var registry = map[string]Preset{}

func register(p Preset) {
	registry[p.Name()] = p
}

func init() {
	register(javaGradle{})
	register(nodeNpm{})
	register(shellScript{})
}

// Lookup returns the preset registered under name.
func Lookup(name string) (Preset, error) {
	p, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return p, nil
}

// Exists reports whether name is a registered preset.
func Exists(name string) bool {
	_, ok := registry[name]
	return ok
}

// Names returns every registered preset name, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// requireAny fails unless at least one of the candidate files exists in dir.
func requireAny(preset, dir string, candidates ...string) error {
	for _, name := range candidates {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return nil
		}
	}
	return fmt.Errorf("preset %s expects one of %s in %s", preset, strings.Join(candidates, ", "), dir)
}
