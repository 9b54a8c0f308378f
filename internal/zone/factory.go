package zone

import (
	"fmt"
	"sort"
	"sync"

	"github.com/xiaot623/gogo/kernel/internal/domain"
)

// Factory builds a zone kernel from its manifest config.
type Factory func(config map[string]string) (Kernel, error)

// Factories maps manifest entrypoints to zone factories.
type Factories struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// DefaultFactories is populated by zone packages in init.
var DefaultFactories = NewFactories()

// NewFactories creates an empty factory registry.
func NewFactories() *Factories {
	return &Factories{factories: make(map[string]Factory)}
}

// Register adds a factory for entrypoint.
func (f *Factories) Register(entrypoint string, factory Factory) error {
	if entrypoint == "" {
		return fmt.Errorf("%w: entrypoint is required", domain.ErrValidation)
	}
	if factory == nil {
		return fmt.Errorf("%w: factory is required", domain.ErrValidation)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.factories[entrypoint]; exists {
		return fmt.Errorf("%w: zone factory %s", domain.ErrDuplicateRegistration, entrypoint)
	}
	f.factories[entrypoint] = factory
	return nil
}

// Lookup returns the factory registered for entrypoint.
func (f *Factories) Lookup(entrypoint string) (Factory, error) {
	f.mu.RLock()
	factory := f.factories[entrypoint]
	f.mu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("%w: no zone factory registered for %s", domain.ErrNotFound, entrypoint)
	}
	return factory, nil
}

// Entrypoints lists registered entrypoints in order.
func (f *Factories) Entrypoints() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.factories))
	for k := range f.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Register adds a factory to DefaultFactories.
func Register(entrypoint string, factory Factory) error {
	return DefaultFactories.Register(entrypoint, factory)
}

// MustRegister adds a factory to DefaultFactories or panics.
func MustRegister(entrypoint string, factory Factory) {
	if err := Register(entrypoint, factory); err != nil {
		panic(err)
	}
}
