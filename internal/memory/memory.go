// Package memory is the namespaced key-value memory agents read and write
// through scripts.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xiaot623/gogo/kernel/internal/domain"
)

// Store is namespaced key-value memory with optional expiry and an
// append-only log per namespace.
type Store interface {
	// Read fails with domain.ErrNotFound when the key is absent or expired.
	Read(ctx context.Context, namespace, key string) (any, error)
	// Write stores value; ttl <= 0 means no expiry.
	Write(ctx context.Context, namespace, key string, value any, ttl time.Duration) error
	AppendLog(ctx context.Context, namespace string, record map[string]any) error
	// Logs returns up to limit records of namespace, oldest first.
	Logs(ctx context.Context, namespace string, limit int) ([]map[string]any, error)
}

func validate(namespace, key string) error {
	if namespace == "" || key == "" {
		return fmt.Errorf("%w: memory namespace and key are required", domain.ErrValidation)
	}
	return nil
}

type entry struct {
	value     any
	expiresAt time.Time
}

// InMemory is a process-local Store.
type InMemory struct {
	mu   sync.Mutex
	kv   map[string]entry
	logs map[string][]map[string]any
	now  func() time.Time
}

// NewInMemory creates an empty process-local store.
func NewInMemory() *InMemory {
	return &InMemory{kv: map[string]entry{}, logs: map[string][]map[string]any{}, now: time.Now}
}

func (m *InMemory) Read(ctx context.Context, namespace, key string) (any, error) {
	if err := validate(namespace, key); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := namespace + "\x00" + key
	e, ok := m.kv[k]
	if !ok {
		return nil, fmt.Errorf("%w: memory %s/%s", domain.ErrNotFound, namespace, key)
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.kv, k)
		return nil, fmt.Errorf("%w: memory %s/%s expired", domain.ErrNotFound, namespace, key)
	}
	return e.value, nil
}

func (m *InMemory) Write(ctx context.Context, namespace, key string, value any, ttl time.Duration) error {
	if err := validate(namespace, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.kv[namespace+"\x00"+key] = e
	return nil
}

func (m *InMemory) AppendLog(ctx context.Context, namespace string, record map[string]any) error {
	if namespace == "" {
		return fmt.Errorf("%w: memory namespace is required", domain.ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[namespace] = append(m.logs[namespace], record)
	return nil
}

func (m *InMemory) Logs(ctx context.Context, namespace string, limit int) ([]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	logs := m.logs[namespace]
	if limit > 0 && len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}
	return append([]map[string]any(nil), logs...), nil
}
