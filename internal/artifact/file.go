package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xiaot623/gogo/kernel/internal/domain"
)

// FileStore keeps one canonical JSON file per artifact under
// <baseDir>/<kind>/<artifact_id>.json.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates a file-backed store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure artifact dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) path(ref domain.ArtifactRef) string {
	return filepath.Join(s.baseDir, ref.Kind, ref.ArtifactID+".json")
}

func (s *FileStore) Put(ctx context.Context, ref domain.ArtifactRef, env *domain.ArtifactEnvelope) error {
	data, err := encode(ref, env)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(ref)
	existing, err := os.ReadFile(path)
	if err == nil {
		return sameContent(ref, existing, data)
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read artifact %s: %w", ref.Key(), err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to ensure kind dir: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to commit artifact: %w", err)
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, ref domain.ArtifactRef) (*domain.ArtifactEnvelope, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := os.ReadFile(s.path(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(ref)
		}
		return nil, fmt.Errorf("failed to read artifact %s: %w", ref.Key(), err)
	}
	return decode(data)
}

func (s *FileStore) Exists(ctx context.Context, ref domain.ArtifactRef) (bool, error) {
	if err := ref.Validate(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := os.Stat(s.path(ref))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *FileStore) List(ctx context.Context, kind string, limit int) ([]domain.ArtifactRef, error) {
	if kind == "" || strings.ContainsAny(kind, `/\`) || kind == ".." {
		return nil, fmt.Errorf("%w: invalid artifact kind %q", domain.ErrValidation, kind)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(s.baseDir, kind))
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.ArtifactRef{}, nil
		}
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	type item struct {
		id    string
		mtime time.Time
	}
	items := make([]item, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat artifact: %w", err)
		}
		items = append(items, item{id: strings.TrimSuffix(name, ".json"), mtime: info.ModTime()})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].mtime.Equal(items[j].mtime) {
			return items[i].id > items[j].id
		}
		return items[i].mtime.After(items[j].mtime)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	refs := make([]domain.ArtifactRef, len(items))
	for i, it := range items {
		refs[i] = domain.ArtifactRef{Kind: kind, ArtifactID: it.id}
	}
	return refs, nil
}
