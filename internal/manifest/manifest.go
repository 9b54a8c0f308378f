// Package manifest reads the document listing zone plugins, federation
// settings and inline rule modules.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xiaot623/gogo/kernel/internal/domain"
)

// Rule gates an inline rego module can extend.
const (
	GatePolicy     = "policy"
	GateGovernance = "governance"
)

// Manifest describes what the kernel loads at boot.
type Manifest struct {
	CoreVersion string                 `json:"core_version,omitempty" yaml:"core_version,omitempty"`
	Zones       []domain.ZoneKernelRef `json:"zones" yaml:"zones"`
	Federation  Federation             `json:"federation" yaml:"federation"`
	Policies    []PolicyConfig         `json:"policies,omitempty" yaml:"policies,omitempty"`
}

// Federation is read and validated only. The kernel does not replicate.
type Federation struct {
	Enabled      bool                `json:"enabled" yaml:"enabled"`
	NodeID       string              `json:"node_id,omitempty" yaml:"node_id,omitempty"`
	TrustDefault domain.SecurityFlag `json:"trust_default,omitempty" yaml:"trust_default,omitempty"`
}

// PolicyConfig is an inline rego module for one of the gates.
type PolicyConfig struct {
	Name string `json:"name" yaml:"name"`
	Gate string `json:"gate" yaml:"gate"`
	Rego string `json:"rego" yaml:"rego"`
}

// Default is the manifest used when none is configured: the builtin
// example zone only.
func Default() *Manifest {
	m := &Manifest{
		Zones: []domain.ZoneKernelRef{{
			ZoneID:     "zone1",
			Package:    "builtin",
			Entrypoint: "builtin:zone1",
			Version:    "0.1.0",
		}},
	}
	m.applyDefaults()
	return m
}

// Load reads path as JSON when it ends in .json and as YAML otherwise.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}
	return Parse(data, format)
}

// Parse decodes and validates a manifest document.
func Parse(data []byte, format string) (*Manifest, error) {
	var m Manifest
	switch format {
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("%w: manifest: %v", domain.ErrValidation, err)
		}
	case "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("%w: manifest: %v", domain.ErrValidation, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown manifest format %q", domain.ErrValidation, format)
	}
	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if m.Federation.TrustDefault == "" {
		m.Federation.TrustDefault = domain.SecurityFlagIntraOrg
	}
}

// Validate checks zone entries, federation settings and rule modules.
func (m *Manifest) Validate() error {
	seen := make(map[string]struct{}, len(m.Zones))
	for i, z := range m.Zones {
		if z.ZoneID == "" {
			return fmt.Errorf("%w: zones[%d]: zone_id is required", domain.ErrValidation, i)
		}
		if z.Entrypoint == "" {
			return fmt.Errorf("%w: zones[%d]: entrypoint is required", domain.ErrValidation, i)
		}
		if _, dup := seen[z.ZoneID]; dup {
			return fmt.Errorf("%w: zone %s listed twice", domain.ErrValidation, z.ZoneID)
		}
		seen[z.ZoneID] = struct{}{}
	}
	if !m.Federation.TrustDefault.Valid() {
		return fmt.Errorf("%w: federation.trust_default %q", domain.ErrValidation, m.Federation.TrustDefault)
	}
	if m.Federation.Enabled && m.Federation.NodeID == "" {
		return fmt.Errorf("%w: federation.node_id is required when federation is enabled", domain.ErrValidation)
	}
	for i, p := range m.Policies {
		if p.Name == "" || strings.TrimSpace(p.Rego) == "" {
			return fmt.Errorf("%w: policies[%d]: name and rego are required", domain.ErrValidation, i)
		}
		if p.Gate != GatePolicy && p.Gate != GateGovernance {
			return fmt.Errorf("%w: policies[%d]: unknown gate %q", domain.ErrValidation, i, p.Gate)
		}
	}
	return nil
}

// PoliciesFor returns the inline modules of gate in manifest order.
func (m *Manifest) PoliciesFor(gate string) []PolicyConfig {
	var out []PolicyConfig
	for _, p := range m.Policies {
		if p.Gate == gate {
			out = append(out, p)
		}
	}
	return out
}
