package domain

import (
	"slices"
	"time"
)

// Actor identifies who performed an action.
type Actor struct {
	Type        ActorType `json:"type"`
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name,omitempty"`
	Roles       []string  `json:"roles,omitempty"`
}

// HasRole reports whether the actor holds role, either explicitly or by id.
func (a Actor) HasRole(role string) bool {
	return a.ID == role || slices.Contains(a.Roles, role)
}

// SystemActor is the actor used for kernel-originated events.
var SystemActor = Actor{Type: ActorTypeSystem, ID: "kernel", DisplayName: "kernel"}

// TrackEvent is an append-only audit record.
type TrackEvent struct {
	EventID           string         `json:"event_id"`
	Seq               int64          `json:"seq,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	TenantID          string         `json:"tenant_id"`
	DecisionContextID string         `json:"decision_context_id"`
	SessionID         string         `json:"session_id"`
	EpochID           string         `json:"epoch_id,omitempty"`
	RunID             string         `json:"run_id,omitempty"`
	ZoneID            string         `json:"zone_id,omitempty"`
	Actor             Actor          `json:"actor"`
	EventType         EventType      `json:"event_type"`
	Severity          Severity       `json:"severity"`
	Message           string         `json:"message"`
	Refs              map[string]any `json:"refs,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}
