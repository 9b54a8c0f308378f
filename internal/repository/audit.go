package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xiaot623/gogo/kernel/internal/domain"
	"github.com/xiaot623/gogo/kernel/internal/tracker"
)

// Append inserts an audit event. The row id doubles as the tiebreaker for
// events created in the same nanosecond.
func (s *SQLiteStore) Append(ctx context.Context, ev *domain.TrackEvent) error {
	if err := tracker.Prepare(ev); err != nil {
		return err
	}
	actor, err := json.Marshal(ev.Actor)
	if err != nil {
		return fmt.Errorf("failed to marshal actor: %w", err)
	}
	refs, err := json.Marshal(ev.Refs)
	if err != nil {
		return fmt.Errorf("failed to marshal refs: %w", err)
	}
	metadata, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events (event_id, created_at, tenant_id, decision_context_id, session_id, epoch_id, run_id, zone_id, actor, event_type, severity, message, refs, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.EventID, ev.CreatedAt.UnixNano(), ev.TenantID, ev.DecisionContextID, ev.SessionID, ev.EpochID, ev.RunID, ev.ZoneID,
		string(actor), string(ev.EventType), string(ev.Severity), ev.Message, string(refs), string(metadata))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: event %s already recorded", domain.ErrConflict, ev.EventID)
		}
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	if seq, err := res.LastInsertId(); err == nil {
		ev.Seq = seq
	}
	return nil
}

// Query returns audit events of a session newest first.
func (s *SQLiteStore) Query(ctx context.Context, sessionID string, limit int, eventType domain.EventType) ([]domain.TrackEvent, error) {
	query := `SELECT seq, event_id, created_at, tenant_id, decision_context_id, session_id, epoch_id, run_id, zone_id, actor, event_type, severity, message, refs, metadata
		FROM audit_events WHERE session_id = ?`
	args := []interface{}{sessionID}

	if eventType != "" {
		query += ` AND event_type = ?`
		args = append(args, string(eventType))
	}

	query += ` ORDER BY created_at DESC, seq DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.TrackEvent, 0)
	for rows.Next() {
		var ev domain.TrackEvent
		var createdAt int64
		var actor, eventTypeStr, severity string
		var refs, metadata sql.NullString
		if err := rows.Scan(&ev.Seq, &ev.EventID, &createdAt, &ev.TenantID, &ev.DecisionContextID, &ev.SessionID, &ev.EpochID,
			&ev.RunID, &ev.ZoneID, &actor, &eventTypeStr, &severity, &ev.Message, &refs, &metadata); err != nil {
			return nil, err
		}
		ev.CreatedAt = fromNanos(createdAt)
		ev.EventType = domain.EventType(eventTypeStr)
		ev.Severity = domain.Severity(severity)
		if err := json.Unmarshal([]byte(actor), &ev.Actor); err != nil {
			return nil, fmt.Errorf("failed to decode actor of %s: %w", ev.EventID, err)
		}
		if refs.Valid && refs.String != "" {
			if err := json.Unmarshal([]byte(refs.String), &ev.Refs); err != nil {
				return nil, fmt.Errorf("failed to decode refs of %s: %w", ev.EventID, err)
			}
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &ev.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata of %s: %w", ev.EventID, err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
