// Package factory is a generic registry instantiating pluggable
// modules from configuration. A module is named by a type string and
// carries a raw settings map that the registered constructor decodes
// into its own config struct.
package factory

import (
	"fmt"
	"sync"

	"github.com/mitchellh/mapstructure"
)

// ModuleConfig names a module type and its raw settings.
type ModuleConfig struct {
	Type string         `json:"type"`
	Conf map[string]any `json:"conf"`
}

// Constructor builds an implementation of T from raw settings.
type Constructor[T any] func(map[string]any) (T, error)

// Registry holds constructors keyed by module type.
type Registry[T any] struct {
	mu           sync.RWMutex
	constructors map[string]Constructor[T]
}

func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{constructors: make(map[string]Constructor[T])}
}

// Register adds a constructor under name. Registering a name twice or
// registering nil is an error.
func (r *Registry[T]) Register(name string, c Constructor[T]) error {
	if c == nil {
		return fmt.Errorf("nil constructor for %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.constructors[name]; ok {
		return fmt.Errorf("constructor %q already registered", name)
	}
	r.constructors[name] = c
	return nil
}

// Create instantiates the module described by cfg.
func (r *Registry[T]) Create(cfg ModuleConfig) (T, error) {
	r.mu.RLock()
	c, ok := r.constructors[cfg.Type]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("unknown module type %q", cfg.Type)
	}
	return c(cfg.Conf)
}

// Types lists the registered module types.
func (r *Registry[T]) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		out = append(out, name)
	}
	return out
}

// Decode fills a typed config struct from a raw settings map, honoring
// json tags.
func Decode(data map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "json", Result: out})
	if err != nil {
		return err
	}
	return dec.Decode(data)
}
