package vault

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// processEnvPrefix maps VOIDEN_VAR_FOO to the process variable FOO.
const processEnvPrefix = "VOIDEN_VAR_"

// ProcessStore holds process-scoped variables, addressed by the
// {{process.*}} template namespace. Like the environment tables, values
// are unexported and only names cross the trust boundary.
type ProcessStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewProcessStore creates an empty store.
func NewProcessStore() *ProcessStore {
	return &ProcessStore{values: make(map[string]string)}
}

// LoadProcessStore reads process variables from a YAML file, then overlays
// VOIDEN_VAR_* environment variables. A missing file yields a store backed
// by environment variables alone.
func LoadProcessStore(path string) (*ProcessStore, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load process variables: %w", err)
		}
	}
	if err := k.Load(env.Provider(processEnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(s, processEnvPrefix)
	}), nil); err != nil {
		return nil, fmt.Errorf("load process environment overlay: %w", err)
	}

	s := NewProcessStore()
	for key := range k.All() {
		s.values[key] = k.String(key)
	}
	return s, nil
}

// Set stores one variable. Used by hosts that compute process values.
func (s *ProcessStore) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}

// Names returns the sorted variable names.
func (s *ProcessStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.values))
	for k := range s.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (s *ProcessStore) lookup(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}
