package policy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/kernel/internal/domain"
	"github.com/xiaot623/gogo/kernel/internal/metrics"
)

// DenyQuery is the rule set evaluated by the guard.
const DenyQuery = "data.kernel.policy.deny"

// DefaultPolicy is the baseline rule set. Extra modules in package
// kernel.policy add reasons to deny.
const DefaultPolicy = `
package kernel.policy

# External capabilities need an explicit opt-in on the context.
deny["external_untrusted capability blocked: allow_external is false"] {
	input.capability.security_flag == "external_untrusted"
	not input.context.allow_external
}
`

// Decision is the outcome of a policy check. Reasons is empty when allowed.
type Decision struct {
	Allowed bool     `json:"allowed"`
	Reasons []string `json:"reasons,omitempty"`
}

// Guard answers whether a capability may run in a context.
type Guard struct {
	engine *Engine
	logger *zap.Logger
}

// NewGuard builds a guard from the baseline policy plus extra modules.
func NewGuard(ctx context.Context, logger *zap.Logger, extra ...Module) (*Guard, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	modules := append([]Module{{Name: "kernel_policy.rego", Source: DefaultPolicy}}, extra...)
	engine, err := NewEngine(ctx, DenyQuery, modules...)
	if err != nil {
		return nil, err
	}
	return &Guard{engine: engine, logger: logger}, nil
}

// Allow evaluates every rule. Any matching rule denies.
func (g *Guard) Allow(ctx context.Context, ec domain.ExecContext, desc domain.CapabilityDescriptor, capabilityName string, resources map[string]any) (Decision, error) {
	input := map[string]any{
		"capability":      desc,
		"capability_name": capabilityName,
		"context":         ec,
		"resources":       resources,
	}
	reasons, err := g.engine.EvalSet(ctx, input)
	if err != nil {
		return Decision{}, fmt.Errorf("policy check for %s: %w", desc.TypeID, err)
	}

	d := Decision{Allowed: len(reasons) == 0, Reasons: reasons}
	outcome := "allow"
	if !d.Allowed {
		outcome = "deny"
		g.logger.Info("policy denied capability",
			zap.String("type_id", desc.TypeID),
			zap.String("capability", capabilityName),
			zap.Strings("reasons", reasons))
	}
	metrics.RecordGateDecision("policy", outcome)
	return d, nil
}
