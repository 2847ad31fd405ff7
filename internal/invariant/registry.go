package invariant

import (
	"fmt"
	"sync"

	"github.com/tjfontaine/llm-reliability/internal/domain"
)

// Registry maps invariant ids to instances. It is mutated rarely (at
// startup and admin time) and read on every validation, so reads take
// a shared lock and writes an exclusive one. The registry owns the
// registered instances for its lifetime.
type Registry struct {
	mu         sync.RWMutex
	invariants map[string]Invariant
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		invariants: make(map[string]Invariant),
	}
}

// Register adds an invariant, rejecting duplicate ids and invalid
// configurations.
func (r *Registry) Register(inv Invariant) error {
	id := inv.Metadata().ID
	if id == "" {
		return fmt.Errorf("%w: invariant id must not be empty", domain.ErrInvalidArgument)
	}
	if err := inv.Config().Validate(); err != nil {
		return fmt.Errorf("invariant %s: %w", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.invariants[id]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateInvariant, id)
	}
	r.invariants[id] = inv
	return nil
}

// Unregister removes an invariant by id. Removing an absent id is a
// no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.invariants, id)
}

// Get looks up an invariant by id.
func (r *Registry) Get(id string) (Invariant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.invariants[id]
	return inv, ok
}

// ByCategory returns all invariants in a category.
func (r *Registry) ByCategory(category Category) []Invariant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Invariant
	for _, inv := range r.invariants {
		if inv.Metadata().Category == category {
			out = append(out, inv)
		}
	}
	return out
}

// All returns every registered invariant.
func (r *Registry) All() []Invariant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Invariant, 0, len(r.invariants))
	for _, inv := range r.invariants {
		out = append(out, inv)
	}
	return out
}

// Enabled returns the invariants whose configuration enables them.
func (r *Registry) Enabled() []Invariant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Invariant
	for _, inv := range r.invariants {
		if inv.Config().Enabled {
			out = append(out, inv)
		}
	}
	return out
}

// Len is the number of registered invariants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.invariants)
}
