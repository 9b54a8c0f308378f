// Package pointer holds the active-pointer contract and the precedence
// resolver built on it.
package pointer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xiaot623/gogo/kernel/internal/domain"
)

// Store maps (tenant, decision context, key) to the active artifact.
// SetActive is an upsert: the last write per key wins.
type Store interface {
	SetActive(ctx context.Context, tenantID, decisionContextID, key string, ref domain.ArtifactRef, updatedAt time.Time) error
	// GetActive fails with domain.ErrNotFound when the key is unset.
	GetActive(ctx context.Context, tenantID, decisionContextID, key string) (*domain.Pointer, error)
	// ListActive returns pointers whose key starts with prefix, sorted by key.
	ListActive(ctx context.Context, tenantID, decisionContextID, prefix string) ([]domain.Pointer, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu       sync.RWMutex
	pointers map[string]domain.Pointer
}

// NewMemoryStore creates an empty in-memory pointer store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pointers: make(map[string]domain.Pointer)}
}

func scopeKey(tenantID, decisionContextID, key string) string {
	return tenantID + "\x00" + decisionContextID + "\x00" + key
}

func (s *MemoryStore) SetActive(ctx context.Context, tenantID, decisionContextID, key string, ref domain.ArtifactRef, updatedAt time.Time) error {
	if key == "" {
		return fmt.Errorf("%w: pointer key is required", domain.ErrValidation)
	}
	if err := ref.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pointers[scopeKey(tenantID, decisionContextID, key)] = domain.Pointer{
		TenantID:          tenantID,
		DecisionContextID: decisionContextID,
		Key:               key,
		Ref:               ref,
		UpdatedAt:         updatedAt,
	}
	return nil
}

func (s *MemoryStore) GetActive(ctx context.Context, tenantID, decisionContextID, key string) (*domain.Pointer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pointers[scopeKey(tenantID, decisionContextID, key)]
	if !ok {
		return nil, fmt.Errorf("%w: pointer %s", domain.ErrNotFound, key)
	}
	return &p, nil
}

func (s *MemoryStore) ListActive(ctx context.Context, tenantID, decisionContextID, prefix string) ([]domain.Pointer, error) {
	s.mu.RLock()
	out := make([]domain.Pointer, 0)
	for _, p := range s.pointers {
		if p.TenantID == tenantID && p.DecisionContextID == decisionContextID && strings.HasPrefix(p.Key, prefix) {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
