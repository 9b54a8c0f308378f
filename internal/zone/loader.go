package zone

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/kernel/internal/domain"
)

// Loader instantiates the enabled zones of a manifest, each exactly once.
type Loader struct {
	refs      []domain.ZoneKernelRef
	factories *Factories
	logger    *zap.Logger

	mu     sync.Mutex
	loaded map[string]Kernel
}

// NewLoader creates a loader over refs. A nil factories uses
// DefaultFactories.
func NewLoader(refs []domain.ZoneKernelRef, factories *Factories, logger *zap.Logger) *Loader {
	if factories == nil {
		factories = DefaultFactories
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		refs:      refs,
		factories: factories,
		logger:    logger,
		loaded:    make(map[string]Kernel),
	}
}

// Discover returns the enabled zone entries in manifest order.
func (l *Loader) Discover() []domain.ZoneKernelRef {
	out := make([]domain.ZoneKernelRef, 0, len(l.refs))
	for _, r := range l.refs {
		if r.IsEnabled() {
			out = append(out, r)
		}
	}
	return out
}

// Load returns the kernel for zoneID, instantiating it on first use.
func (l *Loader) Load(zoneID string) (Kernel, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if k, ok := l.loaded[zoneID]; ok {
		return k, nil
	}

	var ref *domain.ZoneKernelRef
	for _, r := range l.Discover() {
		if r.ZoneID == zoneID {
			r := r
			ref = &r
			break
		}
	}
	if ref == nil {
		return nil, fmt.Errorf("%w: zone %s not found or not enabled in manifest", domain.ErrNotFound, zoneID)
	}

	factory, err := l.factories.Lookup(ref.Entrypoint)
	if err != nil {
		return nil, err
	}
	config := make(map[string]string, len(ref.Config)+1)
	for k, v := range ref.Config {
		config[k] = v
	}
	if _, ok := config["version"]; !ok && ref.Version != "" {
		config["version"] = ref.Version
	}
	k, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create zone %s from %s: %w", zoneID, ref.Entrypoint, err)
	}
	if k == nil {
		return nil, fmt.Errorf("%w: entrypoint %s returned no zone kernel", domain.ErrValidation, ref.Entrypoint)
	}
	if got := k.ZoneID(); got != zoneID {
		return nil, fmt.Errorf("%w: loaded kernel zone_id mismatch: expected %s, got %s", domain.ErrValidation, zoneID, got)
	}

	l.loaded[zoneID] = k
	l.logger.Info("zone loaded",
		zap.String("zone_id", zoneID),
		zap.String("entrypoint", ref.Entrypoint),
		zap.String("kernel_version", k.KernelVersion()))
	return k, nil
}

// BootstrapAll loads every enabled zone and returns zone id -> kernel.
func (l *Loader) BootstrapAll() (map[string]Kernel, error) {
	for _, r := range l.Discover() {
		if _, err := l.Load(r.ZoneID); err != nil {
			return nil, err
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]Kernel, len(l.loaded))
	for id, k := range l.loaded {
		out[id] = k
	}
	return out, nil
}
