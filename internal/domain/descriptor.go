package domain

import "fmt"

// CapabilityDescriptor describes an agent or algorithm. It is a value type:
// registries keep their own copy, so a registered descriptor never changes.
type CapabilityDescriptor struct {
	TypeID             string         `json:"type_id"`
	Version            string         `json:"version"`
	Kind               CapabilityKind `json:"kind"`
	ZoneID             string         `json:"zone_id"`
	SecurityFlag       SecurityFlag   `json:"security_flag"`
	DecisionClass      DecisionClass  `json:"decision_class"`
	Capabilities       []string       `json:"capabilities"`
	InputsSchema       map[string]any `json:"inputs_schema,omitempty"`
	OutputsSchema      map[string]any `json:"outputs_schema,omitempty"`
	RequiredAlgorithms []string       `json:"required_algorithms,omitempty"`
	DeterminismLevel   string         `json:"determinism_level,omitempty"`
	CostProfile        string         `json:"cost_profile,omitempty"`
}

// Normalized returns a copy with defaults filled in.
func (d CapabilityDescriptor) Normalized() CapabilityDescriptor {
	if d.Version == "" {
		d.Version = "1.0.0"
	}
	if d.ZoneID == "" {
		d.ZoneID = "core"
	}
	if d.SecurityFlag == "" {
		d.SecurityFlag = SecurityFlagInternalTrusted
	}
	if d.DecisionClass == "" {
		d.DecisionClass = DecisionClassAdvisory
	}
	if len(d.Capabilities) == 0 {
		d.Capabilities = []string{"run"}
	} else {
		d.Capabilities = append([]string(nil), d.Capabilities...)
	}
	if d.RequiredAlgorithms != nil {
		d.RequiredAlgorithms = append([]string(nil), d.RequiredAlgorithms...)
	}
	return d
}

// Validate checks identity and enum fields.
func (d CapabilityDescriptor) Validate() error {
	if d.TypeID == "" {
		return fmt.Errorf("%w: type_id is required", ErrValidation)
	}
	if d.Version == "" {
		return fmt.Errorf("%w: version is required for %s", ErrValidation, d.TypeID)
	}
	if !d.SecurityFlag.Valid() {
		return fmt.Errorf("%w: unknown security flag %q for %s", ErrValidation, d.SecurityFlag, d.TypeID)
	}
	if !d.DecisionClass.Valid() {
		return fmt.Errorf("%w: unknown decision class %q for %s", ErrValidation, d.DecisionClass, d.TypeID)
	}
	return nil
}

// Producer returns the producer identity used in artifact headers.
func (d CapabilityDescriptor) Producer() ProducerRef {
	return ProducerRef{Name: d.TypeID, Version: d.Version}
}
