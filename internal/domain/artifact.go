package domain

import (
	"fmt"
	"strings"
	"time"
)

// ArtifactRef is a stable, globally addressable locator of an artifact.
type ArtifactRef struct {
	Kind       string `json:"kind"`
	ArtifactID string `json:"artifact_id"`
}

// Key returns "kind:artifact_id".
func (r ArtifactRef) Key() string {
	return r.Kind + ":" + r.ArtifactID
}

// Validate rejects empty refs and refs that cannot be used as storage keys.
func (r ArtifactRef) Validate() error {
	if r.Kind == "" || r.ArtifactID == "" {
		return fmt.Errorf("%w: artifact ref requires kind and artifact_id", ErrValidation)
	}
	for _, part := range []string{r.Kind, r.ArtifactID} {
		if strings.ContainsAny(part, `/\:`) || part == "." || part == ".." {
			return fmt.Errorf("%w: invalid artifact ref %q", ErrValidation, r.Key())
		}
	}
	return nil
}

// Map returns the ref as a plain map, the shape scripts see in their state.
func (r ArtifactRef) Map() map[string]any {
	return map[string]any{"kind": r.Kind, "artifact_id": r.ArtifactID}
}

// ParseArtifactRef accepts an ArtifactRef, a pointer to one, or a
// {"kind","artifact_id"} map as produced by script state.
func ParseArtifactRef(v any) (ArtifactRef, error) {
	switch t := v.(type) {
	case ArtifactRef:
		return t, t.Validate()
	case *ArtifactRef:
		if t == nil {
			return ArtifactRef{}, fmt.Errorf("%w: nil artifact ref", ErrValidation)
		}
		return *t, t.Validate()
	case map[string]any:
		kind, _ := t["kind"].(string)
		id, _ := t["artifact_id"].(string)
		ref := ArtifactRef{Kind: kind, ArtifactID: id}
		return ref, ref.Validate()
	case map[string]string:
		ref := ArtifactRef{Kind: t["kind"], ArtifactID: t["artifact_id"]}
		return ref, ref.Validate()
	}
	return ArtifactRef{}, fmt.Errorf("%w: cannot use %T as artifact ref", ErrValidation, v)
}

// ProducerRef identifies the capability that produced an artifact.
type ProducerRef struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ArtifactHeader carries the identity chain and lineage of an artifact.
type ArtifactHeader struct {
	TenantID          string            `json:"tenant_id"`
	DecisionContextID string            `json:"decision_context_id"`
	SessionID         string            `json:"session_id,omitempty"`
	EpochID           string            `json:"epoch_id,omitempty"`
	RunID             string            `json:"run_id,omitempty"`
	ZoneID            string            `json:"zone_id,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	Producer          ProducerRef       `json:"producer"`
	Inputs            []ArtifactRef     `json:"inputs"`
	ConfigSnapshotRef *ArtifactRef      `json:"config_snapshot_ref,omitempty"`
	LogicalVersion    *int              `json:"logical_version,omitempty"`
	Tags              map[string]string `json:"tags"`
}

// Integrity status values.
const (
	IntegrityPass = "pass"
	IntegrityFail = "fail"
)

// IntegrityRecord holds the checksum of the canonical header+payload.
type IntegrityRecord struct {
	ChecksumAlg string   `json:"checksum_alg"`
	Checksum    string   `json:"checksum"`
	Status      string   `json:"status"`
	Errors      []string `json:"errors"`
}

// ArtifactEnvelope is the unit persisted by the artifact store.
type ArtifactEnvelope struct {
	Header    ArtifactHeader  `json:"header"`
	Payload   any             `json:"payload"`
	Integrity IntegrityRecord `json:"integrity"`
}

// Pointer maps a named key to the currently active artifact.
type Pointer struct {
	TenantID          string      `json:"tenant_id"`
	DecisionContextID string      `json:"decision_context_id"`
	Key               string      `json:"pointer_key"`
	Ref               ArtifactRef `json:"artifact_ref"`
	UpdatedAt         time.Time   `json:"updated_at"`
}
