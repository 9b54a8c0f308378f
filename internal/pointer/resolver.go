package pointer

import (
	"context"
	"errors"

	"github.com/xiaot623/gogo/kernel/internal/domain"
)

// Resolver picks the first candidate key that has an active target.
type Resolver struct {
	store Store
}

// NewResolver creates a resolver over store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve walks candidates in order. ok is false when none is set.
func (r *Resolver) Resolve(ctx context.Context, tenantID, decisionContextID string, candidates []string) (*domain.Pointer, bool, error) {
	for _, key := range candidates {
		p, err := r.store.GetActive(ctx, tenantID, decisionContextID, key)
		if err == nil {
			return p, true, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, false, err
		}
	}
	return nil, false, nil
}

// Candidates builds the canonical lookup order for coreKey: application
// override, custom namespace, zone default, core default. Empty layers are
// skipped.
func Candidates(coreKey, zoneID, customNS, appNS string) []string {
	keys := make([]string, 0, 4)
	if appNS != "" {
		keys = append(keys, "app/"+appNS+"/"+coreKey)
	}
	if customNS != "" {
		keys = append(keys, "custom/"+customNS+"/"+coreKey)
	}
	if zoneID != "" {
		keys = append(keys, "zone/"+zoneID+"/"+coreKey)
	}
	return append(keys, "core/"+coreKey)
}
