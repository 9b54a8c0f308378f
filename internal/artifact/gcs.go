//go:build gcp

package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/xiaot623/gogo/kernel/internal/domain"
)

// GCSStore keeps artifacts as objects <prefix><kind>/<artifact_id>.json in
// a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore creates a GCS-backed store using application default credentials.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: gcs bucket is required", domain.ErrValidation)
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func newGCSStore(ctx context.Context, cfg GCSConfig) (Store, error) {
	return NewGCSStore(ctx, cfg)
}

func (s *GCSStore) object(ref domain.ArtifactRef) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.prefix + ref.Kind + "/" + ref.ArtifactID + ".json")
}

func (s *GCSStore) read(ctx context.Context, ref domain.ArtifactRef) ([]byte, error) {
	r, err := s.object(ref).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, notFound(ref)
		}
		return nil, fmt.Errorf("gcs read failed for %s: %w", ref.Key(), err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (s *GCSStore) Put(ctx context.Context, ref domain.ArtifactRef, env *domain.ArtifactEnvelope) error {
	data, err := encode(ref, env)
	if err != nil {
		return err
	}
	existing, err := s.read(ctx, ref)
	if err == nil {
		return sameContent(ref, existing, data)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	w := s.object(ref).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write failed for %s: %w", ref.Key(), err)
	}
	if err := w.Close(); err != nil {
		var gErr *googleapi.Error
		if errors.As(err, &gErr) && gErr.Code == http.StatusPreconditionFailed {
			existing, rerr := s.read(ctx, ref)
			if rerr != nil {
				return rerr
			}
			return sameContent(ref, existing, data)
		}
		return fmt.Errorf("gcs close failed for %s: %w", ref.Key(), err)
	}
	return nil
}

func (s *GCSStore) Get(ctx context.Context, ref domain.ArtifactRef) (*domain.ArtifactEnvelope, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	data, err := s.read(ctx, ref)
	if err != nil {
		return nil, err
	}
	return decode(data)
}

func (s *GCSStore) Exists(ctx context.Context, ref domain.ArtifactRef) (bool, error) {
	if err := ref.Validate(); err != nil {
		return false, err
	}
	_, err := s.object(ref).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("gcs attrs failed for %s: %w", ref.Key(), err)
}

func (s *GCSStore) List(ctx context.Context, kind string, limit int) ([]domain.ArtifactRef, error) {
	prefix := s.prefix + kind + "/"
	type item struct {
		id      string
		updated time.Time
	}
	var items []item
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs list failed for %s: %w", kind, err)
		}
		name := strings.TrimPrefix(attrs.Name, prefix)
		if strings.Contains(name, "/") || !strings.HasSuffix(name, ".json") {
			continue
		}
		items = append(items, item{id: strings.TrimSuffix(name, ".json"), updated: attrs.Updated})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].updated.Equal(items[j].updated) {
			return items[i].id > items[j].id
		}
		return items[i].updated.After(items[j].updated)
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
