// Package observe is the in-process live notification fan-out. Nothing
// here is persisted or replayable; the tracker is the record.
package observe

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Handler receives a notification. Returned errors and panics are
// swallowed by the stream.
type Handler func(eventType string, payload map[string]any) error

type subscription struct {
	id uint64
	h  Handler
}

// Stream delivers notifications to subscribers synchronously. Emit never
// fails and never holds the lock while a handler runs.
type Stream struct {
	mu     sync.Mutex
	subs   []subscription
	nextID uint64
	logger *zap.Logger
}

// NewStream creates a stream. A nil logger disables drop logging.
func NewStream(logger *zap.Logger) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stream{logger: logger}
}

// Subscribe registers h and returns a function that removes it.
func (s *Stream) Subscribe(h Handler) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription{id: id, h: h})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Emit notifies every current subscriber.
func (s *Stream) Emit(eventType string, payload map[string]any) {
	s.mu.Lock()
	snapshot := make([]subscription, len(s.subs))
	copy(snapshot, s.subs)
	s.mu.Unlock()

	for _, sub := range snapshot {
		s.deliver(sub, eventType, payload)
	}
}

func (s *Stream) deliver(sub subscription, eventType string, payload map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("observer panicked",
				zap.Uint64("subscription", sub.id),
				zap.String("event_type", eventType),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	if err := sub.h(eventType, payload); err != nil {
		s.logger.Debug("observer failed",
			zap.Uint64("subscription", sub.id),
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}

// Len returns the number of subscribers.
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
