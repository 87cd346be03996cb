package schema

import (
	"fmt"
	"sync"

	"github.com/loamdb/loam"
)

// Registry is the catalog of model descriptors for one application. It is
// constructed explicitly, populated at process start, and sealed before
// any query, DDL or migration work begins.
type Registry struct {
	mu      sync.RWMutex
	sealed  bool
	models  []*ModelDescriptor
	byName  map[string]*ModelDescriptor
	byTable map[string]*ModelDescriptor
}

// NewRegistry returns an empty, unsealed registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]*ModelDescriptor),
		byTable: make(map[string]*ModelDescriptor),
	}
}

// Register adds a model to the registry. It fails with ErrRegistrySealed
// after Seal, and with ErrDuplicateModel when the table name is taken.
func (r *Registry) Register(m *ModelDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("register %q: %w", m.Name(), loam.ErrRegistrySealed)
	}
	if _, ok := r.byTable[m.Table()]; ok {
		return fmt.Errorf("register %q (table %q): %w", m.Name(), m.Table(), loam.ErrDuplicateModel)
	}
	if _, ok := r.byName[m.Name()]; ok {
		return fmt.Errorf("register %q: %w", m.Name(), loam.ErrDuplicateModel)
	}
	r.models = append(r.models, m)
	r.byName[m.Name()] = m
	r.byTable[m.Table()] = m
	return nil
}

// Seal freezes the registry. Foreign-key references are resolved here:
// every TypeForeignKey field must name a registered model. Sealing twice
// is an error.
func (r *Registry) Seal() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return loam.ErrRegistrySealed
	}
	for _, m := range r.models {
		for i := range m.fields {
			f := &m.fields[i]
			if f.Type != TypeForeignKey {
				continue
			}
			target, ok := r.byName[f.Ref]
			if !ok {
				return fmt.Errorf("seal: model %q field %q references unknown model %q", m.Name(), f.Name, f.Ref)
			}
			f.RefTable = target.Table()
		}
	}
	r.sealed = true
	return nil
}

// Sealed reports whether the registry has been sealed.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Model returns the descriptor registered under the given model name.
func (r *Registry) Model(name string) (*ModelDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byName[name]
	return m, ok
}

// ModelByTable returns the descriptor registered for the given table.
func (r *Registry) ModelByTable(table string) (*ModelDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byTable[table]
	return m, ok
}

// Models returns all descriptors in registration order. The returned
// slice is a copy; the descriptors are shared and immutable.
func (r *Registry) Models() []*ModelDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ModelDescriptor, len(r.models))
	copy(out, r.models)
	return out
}
