package artifact

import (
	"context"
	"sort"
	"sync"

	"github.com/xiaot623/gogo/kernel/internal/domain"
)

type memoryEntry struct {
	ref  domain.ArtifactRef
	data []byte
	seq  uint64
}

// MemoryStore is an in-process Store, used in tests and ephemeral kernels.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	seq     uint64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Put(ctx context.Context, ref domain.ArtifactRef, env *domain.ArtifactEnvelope) error {
	data, err := encode(ref, env)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[ref.Key()]; ok {
		return sameContent(ref, existing.data, data)
	}
	s.seq++
	s.entries[ref.Key()] = memoryEntry{ref: ref, data: data, seq: s.seq}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, ref domain.ArtifactRef) (*domain.ArtifactEnvelope, error) {
	s.mu.RLock()
	entry, ok := s.entries[ref.Key()]
	s.mu.RUnlock()
	if !ok {
		return nil, notFound(ref)
	}
	return decode(entry.data)
}

func (s *MemoryStore) Exists(ctx context.Context, ref domain.ArtifactRef) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[ref.Key()]
	return ok, nil
}

func (s *MemoryStore) List(ctx context.Context, kind string, limit int) ([]domain.ArtifactRef, error) {
	s.mu.RLock()
	matches := make([]memoryEntry, 0)
	for _, e := range s.entries {
		if e.ref.Kind == kind {
			matches = append(matches, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].seq > matches[j].seq })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	refs := make([]domain.ArtifactRef, len(matches))
	for i, e := range matches {
		refs[i] = e.ref
	}
	return refs, nil
}
