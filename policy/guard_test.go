package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/kernel/internal/domain"
)

func newGuard(t *testing.T, extra ...Module) *Guard {
	t.Helper()
	g, err := NewGuard(context.Background(), nil, extra...)
	require.NoError(t, err)
	return g
}

func desc(flag domain.SecurityFlag) domain.CapabilityDescriptor {
	return domain.CapabilityDescriptor{TypeID: "agent.probe", SecurityFlag: flag}.Normalized()
}

func TestGuardAllowsTrustedCapability(t *testing.T) {
	g := newGuard(t)
	d, err := g.Allow(context.Background(), domain.ExecContext{TenantID: "t1"}, desc(domain.SecurityFlagInternalTrusted), "run", nil)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Empty(t, d.Reasons)
}

func TestGuardDeniesExternalWithoutOptIn(t *testing.T) {
	g := newGuard(t)
	d, err := g.Allow(context.Background(), domain.ExecContext{TenantID: "t1"}, desc(domain.SecurityFlagExternalUntrusted), "run", nil)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	require.Len(t, d.Reasons, 1)
	assert.Contains(t, d.Reasons[0], "allow_external")
}

func TestGuardAllowsExternalWithOptIn(t *testing.T) {
	g := newGuard(t)
	ec := domain.ExecContext{TenantID: "t1", AllowExternal: true}
	d, err := g.Allow(context.Background(), ec, desc(domain.SecurityFlagExternalUntrusted), "run", nil)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestGuardCollectsReasonsFromExtraModules(t *testing.T) {
	extra := Module{Name: "extra.rego", Source: `
package kernel.policy

deny["capability name delete is not allowed"] {
	input.capability_name == "delete"
}

deny["a tenant is required"] {
	input.context.tenant_id == ""
}
`}
	g := newGuard(t, extra)
	d, err := g.Allow(context.Background(), domain.ExecContext{}, desc(domain.SecurityFlagExternalUntrusted), "delete", nil)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, []string{
		"a tenant is required",
		"capability name delete is not allowed",
		"external_untrusted capability blocked: allow_external is false",
	}, d.Reasons)
}

func TestGuardSeesResources(t *testing.T) {
	extra := Module{Name: "res.rego", Source: `
package kernel.policy

deny[msg] {
	input.resources.budget > 100
	msg := sprintf("budget %v exceeds limit", [input.resources.budget])
}
`}
	g := newGuard(t, extra)
	d, err := g.Allow(context.Background(), domain.ExecContext{TenantID: "t1"}, desc(domain.SecurityFlagIntraOrg), "run", map[string]any{"budget": 500})
	require.NoError(t, err)
	assert.Equal(t, []string{"budget 500 exceeds limit"}, d.Reasons)
}

func TestNewGuardRejectsBrokenModule(t *testing.T) {
	_, err := NewGuard(context.Background(), nil, Module{Name: "bad.rego", Source: "package kernel.policy\ndeny[ {"})
	assert.Error(t, err)
}

func TestEngineUndefinedIsEmpty(t *testing.T) {
	e, err := NewEngine(context.Background(), "data.nothing.here")
	require.NoError(t, err)
	out, err := e.EvalSet(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Empty(t, out)
}
