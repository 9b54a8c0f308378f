package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/kernel/internal/domain"
	"github.com/xiaot623/gogo/kernel/internal/metrics"
)

// SessionRequest opens a session for a tenant and decision context.
type SessionRequest struct {
	TenantID          string             `json:"tenant_id"`
	DecisionContextID string             `json:"decision_context_id"`
	Mode              domain.SessionMode `json:"mode,omitempty"`
	Trigger           string             `json:"trigger,omitempty"`
	Actor             *domain.Actor      `json:"actor,omitempty"`
}

// SetupSession creates a session and its first epoch.
func (s *Service) SetupSession(ctx context.Context, req SessionRequest) (*domain.Session, *domain.Epoch, error) {
	if req.TenantID == "" || req.DecisionContextID == "" {
		return nil, nil, fmt.Errorf("%w: tenant_id and decision_context_id are required", domain.ErrValidation)
	}
	mode := req.Mode
	if mode == "" {
		mode = domain.SessionModeLive
	}
	if mode != domain.SessionModeLive && mode != domain.SessionModeWhatIf {
		return nil, nil, fmt.Errorf("%w: unknown session mode %q", domain.ErrValidation, mode)
	}
	trigger := req.Trigger
	if trigger == "" {
		trigger = "session_start"
	}

	now := time.Now().UTC()
	session := &domain.Session{
		SessionID:         domain.NewID("s"),
		TenantID:          req.TenantID,
		DecisionContextID: req.DecisionContextID,
		Mode:              mode,
		Status:            domain.SessionStatusActive,
		CreatedAt:         now,
	}
	if err := s.living.CreateSession(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}
	epoch := &domain.Epoch{
		EpochID:   domain.NewID("e"),
		SessionID: session.SessionID,
		Trigger:   trigger,
		CreatedAt: now,
	}
	if err := s.living.NextEpoch(ctx, epoch); err != nil {
		return nil, nil, fmt.Errorf("failed to create epoch: %w", err)
	}

	ec := sessionExec(session, epoch, req.Actor)
	ev := ec.Event(domain.EventTypeSessionCreated, domain.SeverityInfo, "session created")
	ev.Refs["session_id"] = session.SessionID
	ev.Refs["epoch_id"] = epoch.EpochID
	ev.Metadata["mode"] = string(mode)
	ev.Metadata["trigger"] = trigger
	if err := s.appendEvent(ctx, ev); err != nil {
		return nil, nil, err
	}
	s.observe.Emit(string(domain.EventTypeSessionCreated), map[string]any{
		"session_id": session.SessionID,
		"tenant_id":  session.TenantID,
		"epoch_id":   epoch.EpochID,
	})
	s.logger.Info("session created",
		zap.String("session_id", session.SessionID),
		zap.String("tenant_id", session.TenantID),
		zap.String("mode", string(mode)))
	return session, epoch, nil
}

// GetSession returns a session; domain.ErrNotFound when absent.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.living.GetSession(ctx, sessionID)
}

// ListSessions returns sessions of a tenant, newest first.
func (s *Service) ListSessions(ctx context.Context, tenantID string, limit int) ([]domain.Session, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant_id is required", domain.ErrValidation)
	}
	return s.living.ListSessions(ctx, tenantID, limit)
}

// CloseSession closes a session. Later epochs are refused.
func (s *Service) CloseSession(ctx context.Context, sessionID string, actor *domain.Actor) (*domain.Session, error) {
	session, err := s.living.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.SessionStatusClosed {
		return session, nil
	}
	if err := s.living.CloseSession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("failed to close session: %w", err)
	}
	session.Status = domain.SessionStatusClosed

	ev := sessionExec(session, nil, actor).Event(domain.EventTypeSessionClosed, domain.SeverityInfo, "session closed")
	ev.Refs["session_id"] = sessionID
	if err := s.appendEvent(ctx, ev); err != nil {
		return nil, err
	}
	s.observe.Emit(string(domain.EventTypeSessionClosed), map[string]any{"session_id": sessionID})
	return session, nil
}

// NextEpoch opens the next epoch of an active session.
func (s *Service) NextEpoch(ctx context.Context, sessionID, trigger, derivedFrom string) (*domain.Epoch, error) {
	if trigger == "" {
		trigger = "manual"
	}
	epoch := &domain.Epoch{
		EpochID:            domain.NewID("e"),
		SessionID:          sessionID,
		Trigger:            trigger,
		CreatedAt:          time.Now().UTC(),
		DerivedFromEpochID: derivedFrom,
	}
	if err := s.living.NextEpoch(ctx, epoch); err != nil {
		return nil, err
	}
	return epoch, nil
}

// ListEpochs returns the epochs of a session in sequence order.
func (s *Service) ListEpochs(ctx context.Context, sessionID string) ([]domain.Epoch, error) {
	if _, err := s.living.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.living.ListEpochs(ctx, sessionID)
}

// ListRuns returns the runs of a session, newest first.
func (s *Service) ListRuns(ctx context.Context, sessionID string, limit int) ([]domain.Run, error) {
	return s.living.ListRuns(ctx, sessionID, limit)
}

// GetRun returns a run; domain.ErrNotFound when absent.
func (s *Service) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	return s.living.GetRun(ctx, runID)
}

// Events returns audit events of a session, newest first.
func (s *Service) Events(ctx context.Context, sessionID string, limit int, eventType domain.EventType) ([]domain.TrackEvent, error) {
	return s.log.Query(ctx, sessionID, limit, eventType)
}

// ExecContextFor scopes an execution to the latest epoch of an active
// session. A nil actor means the kernel itself.
func (s *Service) ExecContextFor(ctx context.Context, sessionID string, actor *domain.Actor, allowExternal bool) (domain.ExecContext, error) {
	session, err := s.living.GetSession(ctx, sessionID)
	if err != nil {
		return domain.ExecContext{}, err
	}
	if session.Status != domain.SessionStatusActive {
		return domain.ExecContext{}, fmt.Errorf("%w: session %s is %s", domain.ErrValidation, sessionID, session.Status)
	}
	epochs, err := s.living.ListEpochs(ctx, sessionID)
	if err != nil {
		return domain.ExecContext{}, err
	}
	var latest *domain.Epoch
	if len(epochs) > 0 {
		latest = &epochs[len(epochs)-1]
	}
	ec := sessionExec(session, latest, actor)
	ec.AllowExternal = allowExternal
	return ec, nil
}

func sessionExec(session *domain.Session, epoch *domain.Epoch, actor *domain.Actor) domain.ExecContext {
	ec := domain.ExecContext{
		TenantID:          session.TenantID,
		DecisionContextID: session.DecisionContextID,
		SessionID:         session.SessionID,
		Actor:             domain.SystemActor,
	}
	if epoch != nil {
		ec.EpochID = epoch.EpochID
		ec.EpochSeq = epoch.SequenceNo
	}
	if actor != nil && actor.ID != "" {
		ec.Actor = *actor
	}
	return ec
}

func (s *Service) appendEvent(ctx context.Context, ev *domain.TrackEvent) error {
	err := s.log.Append(ctx, ev)
	metrics.RecordAuditEvent(string(ev.EventType), err == nil)
	if err != nil {
		s.logger.Error("audit append failed", zap.String("event_type", string(ev.EventType)), zap.Error(err))
		return fmt.Errorf("failed to record %s: %w", ev.EventType, err)
	}
	return nil
}
