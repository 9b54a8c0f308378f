package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/kernel/internal/domain"
)

const sampleYAML = `
core_version: "1.0"
zones:
  - zone_id: zone1
    package: builtin
    entrypoint: builtin:zone1
    version: 0.2.0
    config:
      region: eu
  - zone_id: zone2
    entrypoint: builtin:zone2
    enabled: false
federation:
  enabled: true
  node_id: node-a
policies:
  - name: no-delete
    gate: policy
    rego: |
      package kernel.policy
      deny["no delete"] { input.capability_name == "delete" }
`

func TestParseYAML(t *testing.T) {
	m, err := Parse([]byte(sampleYAML), "yaml")
	require.NoError(t, err)
	require.Len(t, m.Zones, 2)
	assert.Equal(t, "builtin:zone1", m.Zones[0].Entrypoint)
	assert.Equal(t, "eu", m.Zones[0].Config["region"])
	assert.True(t, m.Zones[0].IsEnabled())
	assert.False(t, m.Zones[1].IsEnabled())
	assert.Equal(t, domain.SecurityFlagIntraOrg, m.Federation.TrustDefault)
	assert.Len(t, m.PoliciesFor(GatePolicy), 1)
	assert.Empty(t, m.PoliciesFor(GateGovernance))
}

func TestLoadJSONByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"zones":[{"zone_id":"zone1","entrypoint":"builtin:zone1","version":"0.1.0"}],"federation":{"enabled":false}}`), 0o644))
	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "zone1", m.Zones[0].ZoneID)
}

func TestYAMLAndJSONAgree(t *testing.T) {
	fromYAML, err := Parse([]byte(sampleYAML), "yaml")
	require.NoError(t, err)
	fromJSON, err := Parse([]byte(`{
		"core_version": "1.0",
		"zones": [{"zone_id": "zone1", "package": "builtin", "entrypoint": "builtin:zone1", "version": "0.2.0", "config": {"region": "eu"}}]
	}`), "json")
	require.NoError(t, err)

	if diff := cmp.Diff(fromYAML.Zones[0], fromJSON.Zones[0]); diff != "" {
		t.Fatalf("zone entries differ (-yaml +json):\n%s", diff)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing entrypoint": "zones:\n  - zone_id: z\n",
		"duplicate zone":     "zones:\n  - {zone_id: z, entrypoint: a}\n  - {zone_id: z, entrypoint: b}\n",
		"bad trust":          "zones: []\nfederation:\n  trust_default: green\n",
		"federation no node": "zones: []\nfederation:\n  enabled: true\n",
		"unknown field":      "zones: []\nsurprise: 1\n",
		"bad gate":           "zones: []\npolicies:\n  - {name: x, gate: other, rego: 'package x'}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc), "yaml")
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestDefaultManifest(t *testing.T) {
	m := Default()
	require.NoError(t, m.Validate())
	require.Len(t, m.Zones, 1)
	assert.Equal(t, "builtin:zone1", m.Zones[0].Entrypoint)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
