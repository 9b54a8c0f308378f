package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xiaot623/gogo/kernel/internal/domain"
)

// Read returns a memory value. Expired rows are deleted on read.
func (s *SQLiteStore) Read(ctx context.Context, namespace, key string) (any, error) {
	if namespace == "" || key == "" {
		return nil, fmt.Errorf("%w: memory namespace and key are required", domain.ErrValidation)
	}
	var raw string
	var expiresAt sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM memory_kv WHERE namespace = ? AND key = ?`,
		namespace, key).Scan(&raw, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: memory %s/%s", domain.ErrNotFound, namespace, key)
	}
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid && s.now().UnixNano() >= expiresAt.Int64 {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM memory_kv WHERE namespace = ? AND key = ? AND expires_at = ?`,
			namespace, key, expiresAt.Int64); err != nil {
			return nil, fmt.Errorf("failed to expire memory %s/%s: %w", namespace, key, err)
		}
		return nil, fmt.Errorf("%w: memory %s/%s expired", domain.ErrNotFound, namespace, key)
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("failed to decode memory value: %w", err)
	}
	return v, nil
}

// Write upserts a memory value. ttl <= 0 means no expiry.
func (s *SQLiteStore) Write(ctx context.Context, namespace, key string, value any, ttl time.Duration) error {
	if namespace == "" || key == "" {
		return fmt.Errorf("%w: memory namespace and key are required", domain.ErrValidation)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode memory value: %w", err)
	}
	var expiresAt sql.NullInt64
	if ttl > 0 {
		expiresAt = sql.NullInt64{Int64: s.now().Add(ttl).UnixNano(), Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memory_kv (namespace, key, value, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		namespace, key, string(raw), expiresAt)
	if err != nil {
		return fmt.Errorf("failed to write memory %s/%s: %w", namespace, key, err)
	}
	return nil
}

// AppendLog appends a record to the namespace log.
func (s *SQLiteStore) AppendLog(ctx context.Context, namespace string, record map[string]any) error {
	if namespace == "" {
		return fmt.Errorf("%w: memory namespace is required", domain.ErrValidation)
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode memory log: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memory_logs (namespace, record, created_at) VALUES (?, ?, ?)`,
		namespace, string(raw), s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to append memory log: %w", err)
	}
	return nil
}

// Logs returns the last limit records of a namespace, oldest first.
func (s *SQLiteStore) Logs(ctx context.Context, namespace string, limit int) ([]map[string]any, error) {
	query := `SELECT record FROM (SELECT id, record FROM memory_logs WHERE namespace = ? ORDER BY id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	query += `) ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]map[string]any, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode memory log: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
