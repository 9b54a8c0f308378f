package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/xiaot623/gogo/kernel/internal/domain"
)

// CreateSession creates a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, tenant_id, decision_context_id, mode, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		session.SessionID, session.TenantID, session.DecisionContextID, string(session.Mode), string(session.Status), session.CreatedAt.UnixNano())
	return err
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	var mode, status string
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, tenant_id, decision_context_id, mode, status, created_at FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&session.SessionID, &session.TenantID, &session.DecisionContextID, &mode, &status, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, err
	}
	session.Mode = domain.SessionMode(mode)
	session.Status = domain.SessionStatus(status)
	session.CreatedAt = fromNanos(createdAt)
	return &session, nil
}

// ListSessions lists sessions of a tenant, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, tenantID string, limit int) ([]domain.Session, error) {
	query := `SELECT session_id, tenant_id, decision_context_id, mode, status, created_at FROM sessions WHERE tenant_id = ? ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]domain.Session, 0)
	for rows.Next() {
		var session domain.Session
		var mode, status string
		var createdAt int64
		if err := rows.Scan(&session.SessionID, &session.TenantID, &session.DecisionContextID, &mode, &status, &createdAt); err != nil {
			return nil, err
		}
		session.Mode = domain.SessionMode(mode)
		session.Status = domain.SessionStatus(status)
		session.CreatedAt = fromNanos(createdAt)
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// CloseSession moves a session from active to closed. Closing a closed
// session is a no-op.
func (s *SQLiteStore) CloseSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ? WHERE session_id = ?`,
		string(domain.SessionStatusClosed), sessionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
	}
	return nil
}

// NextEpoch appends an epoch to a session with the next sequence number.
func (s *SQLiteStore) NextEpoch(ctx context.Context, epoch *domain.Epoch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM sessions WHERE session_id = ?`, epoch.SessionID).Scan(&status)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: session %s", domain.ErrNotFound, epoch.SessionID)
	}
	if err != nil {
		return err
	}
	if domain.SessionStatus(status) != domain.SessionStatusActive {
		return fmt.Errorf("%w: session %s is %s", domain.ErrValidation, epoch.SessionID, status)
	}

	var maxSeq sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(sequence_no) FROM epochs WHERE session_id = ?`, epoch.SessionID).Scan(&maxSeq); err != nil {
		return err
	}
	epoch.SequenceNo = int(maxSeq.Int64) + 1

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO epochs (epoch_id, session_id, sequence_no, trigger_name, created_at, derived_from_epoch_id) VALUES (?, ?, ?, ?, ?, ?)`,
		epoch.EpochID, epoch.SessionID, epoch.SequenceNo, epoch.Trigger, epoch.CreatedAt.UnixNano(), nullString(epoch.DerivedFromEpochID)); err != nil {
		return err
	}
	return tx.Commit()
}

// GetEpoch retrieves an epoch by ID.
func (s *SQLiteStore) GetEpoch(ctx context.Context, epochID string) (*domain.Epoch, error) {
	var epoch domain.Epoch
	var createdAt int64
	var derived sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT epoch_id, session_id, sequence_no, trigger_name, created_at, derived_from_epoch_id FROM epochs WHERE epoch_id = ?`,
		epochID).Scan(&epoch.EpochID, &epoch.SessionID, &epoch.SequenceNo, &epoch.Trigger, &createdAt, &derived)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: epoch %s", domain.ErrNotFound, epochID)
	}
	if err != nil {
		return nil, err
	}
	epoch.CreatedAt = fromNanos(createdAt)
	epoch.DerivedFromEpochID = derived.String
	return &epoch, nil
}

// ListEpochs lists epochs of a session in sequence order.
func (s *SQLiteStore) ListEpochs(ctx context.Context, sessionID string) ([]domain.Epoch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT epoch_id, session_id, sequence_no, trigger_name, created_at, derived_from_epoch_id FROM epochs WHERE session_id = ? ORDER BY sequence_no ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	epochs := make([]domain.Epoch, 0)
	for rows.Next() {
		var epoch domain.Epoch
		var createdAt int64
		var derived sql.NullString
		if err := rows.Scan(&epoch.EpochID, &epoch.SessionID, &epoch.SequenceNo, &epoch.Trigger, &createdAt, &derived); err != nil {
			return nil, err
		}
		epoch.CreatedAt = fromNanos(createdAt)
		epoch.DerivedFromEpochID = derived.String
		epochs = append(epochs, epoch)
	}
	return epochs, rows.Err()
}

// CreateRun creates a new run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, session_id, epoch_id, zone_id, run_mode, created_at, kernel_version, trace_id, correlation_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.SessionID, run.EpochID, run.ZoneID, string(run.RunMode), run.CreatedAt.UnixNano(), run.KernelVersion, run.TraceID, run.CorrelationID)
	return err
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	var run domain.Run
	var runMode string
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, session_id, epoch_id, zone_id, run_mode, created_at, kernel_version, trace_id, correlation_id FROM runs WHERE run_id = ?`,
		runID).Scan(&run.RunID, &run.SessionID, &run.EpochID, &run.ZoneID, &runMode, &createdAt, &run.KernelVersion, &run.TraceID, &run.CorrelationID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: run %s", domain.ErrNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	run.RunMode = domain.RunMode(runMode)
	run.CreatedAt = fromNanos(createdAt)
	return &run, nil
}

// ListRuns lists runs of a session, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, sessionID string, limit int) ([]domain.Run, error) {
	query := `SELECT run_id, session_id, epoch_id, zone_id, run_mode, created_at, kernel_version, trace_id, correlation_id FROM runs WHERE session_id = ? ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]domain.Run, 0)
	for rows.Next() {
		var run domain.Run
		var runMode string
		var createdAt int64
		if err := rows.Scan(&run.RunID, &run.SessionID, &run.EpochID, &run.ZoneID, &runMode, &createdAt, &run.KernelVersion, &run.TraceID, &run.CorrelationID); err != nil {
			return nil, err
		}
		run.RunMode = domain.RunMode(runMode)
		run.CreatedAt = fromNanos(createdAt)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
