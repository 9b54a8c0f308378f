package domain

// ZoneKernelRef is a manifest entry describing a zone plugin.
type ZoneKernelRef struct {
	ZoneID     string            `json:"zone_id" yaml:"zone_id"`
	Package    string            `json:"package,omitempty" yaml:"package,omitempty"`
	Entrypoint string            `json:"entrypoint" yaml:"entrypoint"`
	Version    string            `json:"version" yaml:"version"`
	Enabled    *bool             `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Config     map[string]string `json:"config,omitempty" yaml:"config,omitempty"`
}

// IsEnabled reports the enabled flag, which defaults to true.
func (z ZoneKernelRef) IsEnabled() bool {
	return z.Enabled == nil || *z.Enabled
}

// ZoneRequest is the input to a zone execution.
type ZoneRequest struct {
	SessionID        string         `json:"session_id"`
	EpochID          string         `json:"epoch_id"`
	RunMode          ZoneRunMode    `json:"run_mode"`
	Inputs           map[string]any `json:"inputs"`
	IntentRef        *ArtifactRef   `json:"intent_ref,omitempty"`
	ScenarioRef      *ArtifactRef   `json:"scenario_ref,omitempty"`
	FederationScope  []string       `json:"federation_scope,omitempty"`
	RequestedOutputs []string       `json:"requested_outputs,omitempty"`
}

// PointerUpdate records a pointer moved during a zone execution.
type PointerUpdate struct {
	PointerKey string      `json:"pointer_key"`
	NewRef     ArtifactRef `json:"new_ref"`
	Reason     string      `json:"reason,omitempty"`
}

// ZoneResult is the outcome of a zone execution.
type ZoneResult struct {
	Status            ZoneStatus      `json:"status"`
	ProducedArtifacts []ArtifactRef   `json:"produced_artifacts,omitempty"`
	UpdatedPointers   []PointerUpdate `json:"updated_pointers,omitempty"`
	ProducedDeltas    []ArtifactRef   `json:"produced_deltas,omitempty"`
	EventsSummary     map[string]any  `json:"events_summary,omitempty"`
	Outputs           map[string]any  `json:"outputs,omitempty"`
	Explain           string          `json:"explain,omitempty"`
	Errors            []string        `json:"errors,omitempty"`
}
