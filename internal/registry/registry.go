// Package registry holds versioned agent and algorithm registrations.
package registry

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/xiaot623/gogo/kernel/internal/capability"
	"github.com/xiaot623/gogo/kernel/internal/domain"
)

// Ordering decides which version Resolve picks when none is given.
type Ordering string

const (
	// OrderLexical picks the greatest version by plain string comparison,
	// so "2.0.0" beats "10.0.0".
	OrderLexical Ordering = "lexical"
	// OrderSemver compares semantic versions. Versions that do not parse
	// fall back to string comparison.
	OrderSemver Ordering = "semver"
)

// Option configures a registry.
type Option func(*options)

type options struct {
	ordering Ordering
}

// WithOrdering selects the version ordering.
func WithOrdering(o Ordering) Option {
	return func(opts *options) {
		if o != "" {
			opts.ordering = o
		}
	}
}

// WithSemverOrdering resolves the latest version by semantic version.
func WithSemverOrdering() Option {
	return WithOrdering(OrderSemver)
}

// Described is implemented by every registrable capability.
type Described interface {
	Describe() domain.CapabilityDescriptor
}

// Entry is a registered descriptor and its implementation.
type Entry[T Described] struct {
	Descriptor domain.CapabilityDescriptor
	Impl       T
}

// Registry stores implementations keyed by (type id, version).
type Registry[T Described] struct {
	kind     domain.CapabilityKind
	ordering Ordering

	mu      sync.RWMutex
	entries map[string]map[string]Entry[T]
}

// New creates an empty registry for capabilities of kind.
func New[T Described](kind domain.CapabilityKind, opts ...Option) *Registry[T] {
	o := options{ordering: OrderLexical}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry[T]{
		kind:     kind,
		ordering: o.ordering,
		entries:  make(map[string]map[string]Entry[T]),
	}
}

// Register adds impl under desc. A repeated (type id, version) fails with
// domain.ErrDuplicateRegistration.
func (r *Registry[T]) Register(desc domain.CapabilityDescriptor, impl T) error {
	desc.Kind = r.kind
	desc = desc.Normalized()
	if err := desc.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	versions := r.entries[desc.TypeID]
	if versions == nil {
		versions = make(map[string]Entry[T])
		r.entries[desc.TypeID] = versions
	}
	if _, exists := versions[desc.Version]; exists {
		return fmt.Errorf("%w: %s %s@%s", domain.ErrDuplicateRegistration, r.kind, desc.TypeID, desc.Version)
	}
	versions[desc.Version] = Entry[T]{Descriptor: desc, Impl: impl}
	return nil
}

// Add registers impl under its own descriptor.
func (r *Registry[T]) Add(impl T) error {
	return r.Register(impl.Describe(), impl)
}

// Resolve looks up id at version. An empty version selects the latest
// registered version under the registry's ordering.
func (r *Registry[T]) Resolve(id, version string) (Entry[T], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := r.entries[id]
	if version != "" {
		e, ok := versions[version]
		if !ok {
			return Entry[T]{}, fmt.Errorf("%w: %s %s@%s", domain.ErrNotFound, r.kind, id, version)
		}
		return e.detached(), nil
	}
	if len(versions) == 0 {
		return Entry[T]{}, fmt.Errorf("%w: %s %s", domain.ErrNotFound, r.kind, id)
	}
	var best string
	first := true
	for v := range versions {
		if first || r.less(best, v) {
			best = v
			first = false
		}
	}
	return versions[best].detached(), nil
}

// List returns descriptors sorted by type id and version. A non-empty
// zone keeps only capabilities of that zone.
func (r *Registry[T]) List(zone string) []domain.CapabilityDescriptor {
	r.mu.RLock()
	out := make([]domain.CapabilityDescriptor, 0)
	for _, versions := range r.entries {
		for _, e := range versions {
			if zone != "" && e.Descriptor.ZoneID != zone {
				continue
			}
			out = append(out, e.detached().Descriptor)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].TypeID != out[j].TypeID {
			return out[i].TypeID < out[j].TypeID
		}
		return out[i].Version < out[j].Version
	})
	return out
}

// detached returns a copy of e whose descriptor slices do not alias the
// registered ones.
func (e Entry[T]) detached() Entry[T] {
	e.Descriptor.Capabilities = slices.Clone(e.Descriptor.Capabilities)
	e.Descriptor.RequiredAlgorithms = slices.Clone(e.Descriptor.RequiredAlgorithms)
	return e
}

// Ordering returns the version ordering in use.
func (r *Registry[T]) Ordering() Ordering {
	return r.ordering
}

func (r *Registry[T]) less(a, b string) bool {
	if r.ordering == OrderSemver {
		va, errA := semver.NewVersion(a)
		vb, errB := semver.NewVersion(b)
		if errA == nil && errB == nil {
			return va.LessThan(vb)
		}
	}
	return a < b
}

// Agents is the agent registry: descriptors plus factories.
type Agents = Registry[capability.AgentFactory]

// Algorithms is the algorithm registry.
type Algorithms = Registry[capability.Algorithm]

// NewAgents creates an empty agent registry.
func NewAgents(opts ...Option) *Agents {
	return New[capability.AgentFactory](domain.CapabilityKindAgent, opts...)
}

// NewAlgorithms creates an empty algorithm registry.
func NewAlgorithms(opts ...Option) *Algorithms {
	return New[capability.Algorithm](domain.CapabilityKindAlgorithm, opts...)
}
