// Package vault is the trusted half of the pipeline. It owns the secret
// variable tables and exposes exactly two operations across the trust
// boundary: listing names and performing substitution. The table types are
// unexported and no accessor returns raw values, so code outside this
// package physically cannot reach the secret table.
package vault

import (
	"fmt"
	"sort"
	"sync"

	"github.com/joho/godotenv"
)

// source is one named variable table, loaded from a KEY=value file or
// supplied directly. Values never leave the package.
type source struct {
	name   string
	path   string
	values map[string]string
}

// Environment is an ordered collection of named variable sources, one of
// which is active. It is process-wide and shared-read; mutation (loading,
// activation, reload) is serialized by the internal mutex.
type Environment struct {
	mu      sync.RWMutex
	sources []*source
	active  int // index into sources, -1 when none
}

// NewEnvironment creates an environment with no sources and nothing active.
func NewEnvironment() *Environment {
	return &Environment{active: -1}
}

// LoadFile parses a newline-delimited KEY=value file into a named source.
// The first loaded source becomes active. Loading an existing name
// replaces that source's table in place.
func (e *Environment) LoadFile(name, path string) error {
	values, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("load environment %q: %w", name, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.sources {
		if s.name == name {
			s.values = values
			s.path = path
			return nil
		}
	}
	e.sources = append(e.sources, &source{name: name, path: path, values: values})
	if e.active < 0 {
		e.active = len(e.sources) - 1
	}
	return nil
}

// AddSource installs a table directly. Intended for hosts that hold
// variables in memory (and for tests); the map is copied.
func (e *Environment) AddSource(name string, values map[string]string) {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.sources {
		if s.name == name {
			s.values = copied
			return
		}
	}
	e.sources = append(e.sources, &source{name: name, values: copied})
	if e.active < 0 {
		e.active = len(e.sources) - 1
	}
}

// Activate switches the active source by name.
func (e *Environment) Activate(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.sources {
		if s.name == name {
			e.active = i
			return nil
		}
	}
	return fmt.Errorf("no environment source named %q", name)
}

// ActiveName returns the name of the active source, or "" when none.
func (e *Environment) ActiveName() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.active < 0 {
		return ""
	}
	return e.sources[e.active].name
}

// SourceNames returns the names of all loaded sources in load order.
func (e *Environment) SourceNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, len(e.sources))
	for i, s := range e.sources {
		names[i] = s.name
	}
	return names
}

// Names returns the sorted variable names of the active source. This is
// the only shape of the table that crosses the trust boundary.
func (e *Environment) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.active < 0 {
		return nil
	}
	names := make([]string, 0, len(e.sources[e.active].values))
	for k := range e.sources[e.active].values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// lookup resolves a name against the active source. An explicit empty
// value (a KEY= line) counts as resolved: the author stated the value is
// empty. Only absent names are unresolved.
func (e *Environment) lookup(name string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.active < 0 {
		return "", false
	}
	v, ok := e.sources[e.active].values[name]
	return v, ok
}

// hasTable reports whether an active source with a non-empty table exists.
// The secure-substitution stage treats an absent or empty table as fatal.
func (e *Environment) hasTable() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active >= 0 && len(e.sources[e.active].values) > 0
}

// activePath returns the file path backing the active source, when any.
func (e *Environment) activePath() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.active < 0 {
		return ""
	}
	return e.sources[e.active].path
}
