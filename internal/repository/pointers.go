package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xiaot623/gogo/kernel/internal/domain"
)

// SetActive upserts a pointer.
func (s *SQLiteStore) SetActive(ctx context.Context, tenantID, decisionContextID, key string, ref domain.ArtifactRef, updatedAt time.Time) error {
	if key == "" {
		return fmt.Errorf("%w: pointer key is required", domain.ErrValidation)
	}
	if err := ref.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO active_pointers (tenant_id, decision_context_id, pointer_key, kind, artifact_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, decision_context_id, pointer_key)
		DO UPDATE SET kind = excluded.kind, artifact_id = excluded.artifact_id, updated_at = excluded.updated_at`,
		tenantID, decisionContextID, key, ref.Kind, ref.ArtifactID, updatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to set pointer %s: %w", key, err)
	}
	return nil
}

// GetActive retrieves a pointer.
func (s *SQLiteStore) GetActive(ctx context.Context, tenantID, decisionContextID, key string) (*domain.Pointer, error) {
	p := domain.Pointer{TenantID: tenantID, DecisionContextID: decisionContextID, Key: key}
	var updatedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT kind, artifact_id, updated_at FROM active_pointers WHERE tenant_id = ? AND decision_context_id = ? AND pointer_key = ?`,
		tenantID, decisionContextID, key).Scan(&p.Ref.Kind, &p.Ref.ArtifactID, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: pointer %s", domain.ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	p.UpdatedAt = fromNanos(updatedAt)
	return &p, nil
}

// ListActive lists pointers by key prefix.
func (s *SQLiteStore) ListActive(ctx context.Context, tenantID, decisionContextID, prefix string) ([]domain.Pointer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pointer_key, kind, artifact_id, updated_at FROM active_pointers
		WHERE tenant_id = ? AND decision_context_id = ? AND instr(pointer_key, ?) = 1
		ORDER BY pointer_key ASC`,
		tenantID, decisionContextID, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pointers := make([]domain.Pointer, 0)
	for rows.Next() {
		p := domain.Pointer{TenantID: tenantID, DecisionContextID: decisionContextID}
		var updatedAt int64
		if err := rows.Scan(&p.Key, &p.Ref.Kind, &p.Ref.ArtifactID, &updatedAt); err != nil {
			return nil, err
		}
		p.UpdatedAt = fromNanos(updatedAt)
		pointers = append(pointers, p)
	}
	return pointers, rows.Err()
}
