package domain

// ExecutionPlan declares what a capability or zone intends to do. It is
// evaluated by governance and logged regardless of the outcome.
type ExecutionPlan struct {
	ZoneID                string                 `json:"zone_id,omitempty"`
	AgentsToInvoke        []CapabilityDescriptor `json:"agents_to_invoke"`
	Capabilities          []string               `json:"capabilities"`
	AlgorithmsExpected    []string               `json:"algorithms_expected,omitempty"`
	ArtifactKindsProduced []string               `json:"artifact_kinds_to_produce,omitempty"`
	PointerKeysMayUpdate  []string               `json:"pointer_keys_may_update,omitempty"`
	FederationActions     []string               `json:"federation_actions,omitempty"`
	SecurityFlagsInvolved []SecurityFlag         `json:"security_flags_involved,omitempty"`
	Notes                 string                 `json:"notes,omitempty"`
}

// DecisionIntent is the caller's declared purpose for a gated operation.
type DecisionIntent struct {
	IntentID      string        `json:"intent_id"`
	DecisionType  string        `json:"decision_type"`
	DecisionClass DecisionClass `json:"decision_class"`
	Purpose       string        `json:"purpose,omitempty"`
	RiskLevel     string        `json:"risk_level,omitempty"`
	ZonesInvolved []string      `json:"zones_involved,omitempty"`
}
