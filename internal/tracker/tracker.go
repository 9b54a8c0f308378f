// Package tracker defines the append-only decision audit log.
package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xiaot623/gogo/kernel/internal/domain"
)

// Log is the append-only audit trail. There is no update or delete.
type Log interface {
	// Append persists ev. Errors must reach the caller: a lost audit
	// record is a correctness failure.
	Append(ctx context.Context, ev *domain.TrackEvent) error
	// Query returns events of a session newest first. An empty eventType
	// matches every type; limit <= 0 means no limit.
	Query(ctx context.Context, sessionID string, limit int, eventType domain.EventType) ([]domain.TrackEvent, error)
}

// Prepare fills defaults and validates ev before it is persisted.
func Prepare(ev *domain.TrackEvent) error {
	if ev == nil {
		return fmt.Errorf("%w: event is required", domain.ErrValidation)
	}
	if ev.EventType == "" {
		return fmt.Errorf("%w: event_type is required", domain.ErrValidation)
	}
	if ev.EventID == "" {
		ev.EventID = domain.NewID("ev")
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if ev.Severity == "" {
		ev.Severity = domain.SeverityInfo
	}
	return nil
}

// MemoryLog is an in-process Log.
type MemoryLog struct {
	mu     sync.RWMutex
	events []domain.TrackEvent
	ids    map[string]struct{}
}

// NewMemoryLog creates an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{ids: make(map[string]struct{})}
}

func (l *MemoryLog) Append(ctx context.Context, ev *domain.TrackEvent) error {
	if err := Prepare(ev); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.ids[ev.EventID]; dup {
		return fmt.Errorf("%w: event %s already recorded", domain.ErrConflict, ev.EventID)
	}
	ev.Seq = int64(len(l.events) + 1)
	l.ids[ev.EventID] = struct{}{}
	l.events = append(l.events, *ev)
	return nil
}

func (l *MemoryLog) Query(ctx context.Context, sessionID string, limit int, eventType domain.EventType) ([]domain.TrackEvent, error) {
	l.mu.RLock()
	out := make([]domain.TrackEvent, 0)
	for _, ev := range l.events {
		if ev.SessionID != sessionID {
			continue
		}
		if eventType != "" && ev.EventType != eventType {
			continue
		}
		out = append(out, ev)
	}
	l.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Seq > out[j].Seq
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
