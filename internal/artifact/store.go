// Package artifact provides the content-addressed, immutable artifact store
// and its backends.
package artifact

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xiaot623/gogo/kernel/internal/canonical"
	"github.com/xiaot623/gogo/kernel/internal/domain"
)

// Store persists artifact envelopes. A ref, once written, may only be
// rewritten with byte-identical canonical content.
type Store interface {
	// Put writes env at ref. Identical content is a no-op; different
	// content fails with domain.ErrConflict and leaves the existing one.
	Put(ctx context.Context, ref domain.ArtifactRef, env *domain.ArtifactEnvelope) error
	// Get fails with domain.ErrNotFound when ref is absent.
	Get(ctx context.Context, ref domain.ArtifactRef) (*domain.ArtifactEnvelope, error)
	Exists(ctx context.Context, ref domain.ArtifactRef) (bool, error)
	// List returns refs of kind, most recently written first. limit <= 0
	// means no limit.
	List(ctx context.Context, kind string, limit int) ([]domain.ArtifactRef, error)
}

// Seal computes the integrity record of env over its canonical header and
// payload.
func Seal(env *domain.ArtifactEnvelope) error {
	sum, err := EnvelopeChecksum(env)
	if err != nil {
		return err
	}
	env.Integrity = domain.IntegrityRecord{
		ChecksumAlg: canonical.Algorithm,
		Checksum:    sum,
		Status:      domain.IntegrityPass,
		Errors:      []string{},
	}
	return nil
}

// EnvelopeChecksum returns the checksum of {"header", "payload"}.
func EnvelopeChecksum(env *domain.ArtifactEnvelope) (string, error) {
	return canonical.Checksum(map[string]any{
		"header":  env.Header,
		"payload": env.Payload,
	})
}

// Verify recomputes the checksum of env and compares it with the recorded one.
func Verify(env *domain.ArtifactEnvelope) error {
	sum, err := EnvelopeChecksum(env)
	if err != nil {
		return err
	}
	if sum != env.Integrity.Checksum {
		return fmt.Errorf("%w: checksum mismatch: recorded %s, computed %s", domain.ErrValidation, env.Integrity.Checksum, sum)
	}
	return nil
}

func encode(ref domain.ArtifactRef, env *domain.ArtifactEnvelope) ([]byte, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if env == nil {
		return nil, fmt.Errorf("%w: envelope is required", domain.ErrValidation)
	}
	return canonical.JSON(env)
}

func decode(data []byte) (*domain.ArtifactEnvelope, error) {
	var env domain.ArtifactEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}
	return &env, nil
}

// sameContent decides whether a rewrite of ref is allowed.
func sameContent(ref domain.ArtifactRef, existing, candidate []byte) error {
	if canonical.HashBytes(existing) == canonical.HashBytes(candidate) {
		return nil
	}
	return fmt.Errorf("%w: artifact %s already exists with different content", domain.ErrConflict, ref.Key())
}

func notFound(ref domain.ArtifactRef) error {
	return fmt.Errorf("%w: artifact %s", domain.ErrNotFound, ref.Key())
}
