package tools

import (
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"

	"github.com/crystaldolphin/toolsmith/internal/schema"
)

// Entry binds a descriptor to its executable capability.
type Entry struct {
	Descriptor schema.ToolDescriptor
	Tool       schema.Tool
}

// Registry holds the live set of named tools.
// Writers are serialized; readers proceed concurrently.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry // normalized name → entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// NormalizeName is the key used for all name comparisons.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds a tool. It never overwrites: an existing name yields
// ErrRegistryConflict and the caller must Unregister first.
func (r *Registry) Register(desc schema.ToolDescriptor, tool schema.Tool) error {
	key := NormalizeName(desc.Name)
	if key == "" {
		return fmt.Errorf("register: empty tool name")
	}
	if tool == nil {
		return fmt.Errorf("register %q: nil tool", desc.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[key]; exists {
		return fmt.Errorf("%w: %q", ErrRegistryConflict, desc.Name)
	}
	r.entries[key] = Entry{Descriptor: desc.Clone(), Tool: tool}
	return nil
}

// Unregister removes a tool and returns what was removed. Invocations that
// already hold the Entry keep running.
func (r *Registry) Unregister(name string) (Entry, error) {
	key := NormalizeName(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}
	delete(r.entries, key)
	return e, nil
}

// Lookup returns the entry registered under name.
func (r *Registry) Lookup(name string) (Entry, error) {
	r.mu.RLock()
	e, ok := r.entries[NormalizeName(name)]
	r.mu.RUnlock()

	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}
	e.Descriptor = e.Descriptor.Clone()
	return e, nil
}

// Contains reports whether name is currently registered.
func (r *Registry) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[NormalizeName(name)]
	return ok
}

// Len returns the number of live tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// List snapshots the registry and returns a sequence over the snapshot,
// sorted by name. The sequence can be ranged over any number of times and
// never observes registrations made after List returned.
func (r *Registry) List() iter.Seq[schema.ToolDescriptor] {
	r.mu.RLock()
	snapshot := make([]schema.ToolDescriptor, 0, len(r.entries))
	for _, e := range r.entries {
		snapshot = append(snapshot, e.Descriptor)
	}
	r.mu.RUnlock()

	slices.SortFunc(snapshot, func(a, b schema.ToolDescriptor) int {
		return strings.Compare(NormalizeName(a.Name), NormalizeName(b.Name))
	})

	return func(yield func(schema.ToolDescriptor) bool) {
		for _, d := range snapshot {
			if !yield(d.Clone()) {
				return
			}
		}
	}
}
