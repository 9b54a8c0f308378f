package artifact

import (
	"context"
	"fmt"
	"path/filepath"
)

// Backend names the artifact storage backend.
type Backend string

const (
	BackendFS     Backend = "fs"
	BackendMemory Backend = "memory"
	BackendS3     Backend = "s3"
	BackendGCS    Backend = "gcs"
)

// GCSConfig holds configuration for the GCS backend.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// Config selects and configures a backend.
type Config struct {
	Backend Backend
	VarDir  string
	S3      S3Config
	GCS     GCSConfig
}

// New creates the store selected by cfg.Backend. The file backend lives
// under <VarDir>/artifacts.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendFS, "":
		return NewFileStore(filepath.Join(cfg.VarDir, "artifacts"))
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendS3:
		if cfg.S3.Region == "" {
			cfg.S3.Region = "us-east-1"
		}
		return NewS3Store(ctx, cfg.S3)
	case BackendGCS:
		return newGCSStore(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unsupported artifact backend: %s", cfg.Backend)
	}
}
