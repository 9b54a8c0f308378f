package domain

import "time"

// Tenant is the top-level isolation boundary.
type Tenant struct {
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// DecisionContext groups decisions about one subject inside a tenant.
type DecisionContext struct {
	DecisionContextID string    `json:"decision_context_id"`
	TenantID          string    `json:"tenant_id"`
	Name              string    `json:"name"`
	CreatedAt         time.Time `json:"created_at"`
}

// Session groups epochs. Only its status changes after creation.
type Session struct {
	SessionID         string        `json:"session_id"`
	TenantID          string        `json:"tenant_id"`
	DecisionContextID string        `json:"decision_context_id"`
	Mode              SessionMode   `json:"mode"`
	Status            SessionStatus `json:"status"`
	CreatedAt         time.Time     `json:"created_at"`
}

// Epoch is a logical iteration within a session.
type Epoch struct {
	EpochID            string    `json:"epoch_id"`
	SessionID          string    `json:"session_id"`
	SequenceNo         int       `json:"sequence_no"`
	Trigger            string    `json:"trigger"`
	CreatedAt          time.Time `json:"created_at"`
	DerivedFromEpochID string    `json:"derived_from_epoch_id,omitempty"`
}

// Run is one execution within an epoch.
type Run struct {
	RunID         string    `json:"run_id"`
	SessionID     string    `json:"session_id"`
	EpochID       string    `json:"epoch_id"`
	ZoneID        string    `json:"zone_id"`
	RunMode       RunMode   `json:"run_mode"`
	CreatedAt     time.Time `json:"created_at"`
	KernelVersion string    `json:"kernel_version"`
	TraceID       string    `json:"trace_id"`
	CorrelationID string    `json:"correlation_id"`
}

// ExecContext is the identity scope every gated operation runs under.
type ExecContext struct {
	TenantID          string `json:"tenant_id"`
	DecisionContextID string `json:"decision_context_id"`
	SessionID         string `json:"session_id"`
	EpochID           string `json:"epoch_id,omitempty"`
	EpochSeq          int    `json:"epoch_seq,omitempty"`
	RunID             string `json:"run_id,omitempty"`
	ZoneID            string `json:"zone_id,omitempty"`
	Actor             Actor  `json:"actor"`
	TraceID           string `json:"trace_id,omitempty"`
	CorrelationID     string `json:"correlation_id,omitempty"`

	// AllowExternal lets the policy guard admit external_untrusted
	// capabilities. Governance ignores it.
	AllowExternal bool `json:"allow_external"`
	Debug         bool `json:"debug,omitempty"`
}

// WithRun returns a copy of ec scoped to run.
func (ec ExecContext) WithRun(run *Run) ExecContext {
	ec.RunID = run.RunID
	ec.ZoneID = run.ZoneID
	ec.EpochID = run.EpochID
	ec.TraceID = run.TraceID
	ec.CorrelationID = run.CorrelationID
	return ec
}

// WithActor returns a copy of ec acting as a.
func (ec ExecContext) WithActor(a Actor) ExecContext {
	ec.Actor = a
	return ec
}

// Event returns a TrackEvent pre-filled with the identity chain of ec.
func (ec ExecContext) Event(eventType EventType, severity Severity, message string) *TrackEvent {
	return &TrackEvent{
		EventID:           NewID("ev"),
		CreatedAt:         time.Now().UTC(),
		TenantID:          ec.TenantID,
		DecisionContextID: ec.DecisionContextID,
		SessionID:         ec.SessionID,
		EpochID:           ec.EpochID,
		RunID:             ec.RunID,
		ZoneID:            ec.ZoneID,
		Actor:             ec.Actor,
		EventType:         eventType,
		Severity:          severity,
		Message:           message,
		Refs:              map[string]any{},
		Metadata:          map[string]any{},
	}
}
