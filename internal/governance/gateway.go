// Package governance gates execution plans and sensitive pointer moves.
package governance

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/kernel/internal/domain"
	"github.com/xiaot623/gogo/kernel/internal/metrics"
	"github.com/xiaot623/gogo/kernel/internal/tracker"
	"github.com/xiaot623/gogo/kernel/policy"
)

// Gate is the gate name carried by governance permission errors.
const Gate = "governance"

const (
	blockQuery    = "data.kernel.governance.block"
	approvalQuery = "data.kernel.governance.require_approval"
)

// Decision is a governance outcome.
type Decision struct {
	Outcome       domain.GovernanceOutcome `json:"outcome"`
	Reason        string                   `json:"reason,omitempty"`
	RequiredRoles []string                 `json:"required_roles,omitempty"`
}

// Allowed reports whether the plan may proceed.
func (d Decision) Allowed() bool {
	return d.Outcome == domain.GovernanceAllow || d.Outcome == domain.GovernanceAccept
}

// Rules are optional rego extensions in package kernel.governance. Members
// of the block set block the plan; members of require_approval hold it.
type Rules struct {
	block    *policy.Engine
	approval *policy.Engine
}

// NewRules prepares the extension rule sets from modules.
func NewRules(ctx context.Context, modules ...policy.Module) (*Rules, error) {
	block, err := policy.NewEngine(ctx, blockQuery, modules...)
	if err != nil {
		return nil, err
	}
	approval, err := policy.NewEngine(ctx, approvalQuery, modules...)
	if err != nil {
		return nil, err
	}
	return &Rules{block: block, approval: approval}, nil
}

// Gateway evaluates plans before execution and outcomes after it.
type Gateway struct {
	log    tracker.Log
	rules  *Rules
	logger *zap.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithRules adds rego extension rules after the built-in hard rule.
func WithRules(r *Rules) Option {
	return func(g *Gateway) { g.rules = r }
}

// WithLogger sets the plan logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGateway creates a gateway recording its refusals to log.
func NewGateway(log tracker.Log, opts ...Option) *Gateway {
	g := &Gateway{log: log, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// PreCheck decides whether plan may execute. BLOCK wins over
// REQUIRE_APPROVAL, which wins over ALLOW. Refusals are audited with the
// full plan; the returned error is only an audit or rule failure.
func (g *Gateway) PreCheck(ctx context.Context, ec domain.ExecContext, intent *domain.DecisionIntent, plan domain.ExecutionPlan) (Decision, error) {
	g.logger.Info("governance plan",
		zap.String("session_id", ec.SessionID),
		zap.String("zone_id", plan.ZoneID),
		zap.Strings("capabilities", plan.Capabilities),
		zap.Int("agents", len(plan.AgentsToInvoke)),
		zap.Any("plan", plan))

	d, err := g.decide(ctx, ec, intent, plan)
	if err != nil {
		return Decision{}, err
	}
	metrics.RecordGateDecision(Gate, string(d.Outcome))
	if d.Outcome == domain.GovernanceAllow {
		return d, nil
	}

	eventType := domain.EventTypeGovernanceBlock
	if d.Outcome == domain.GovernanceRequireApproval {
		eventType = domain.EventTypeGovernanceApprovalRequired
	}
	ev := ec.Event(eventType, domain.SeverityWarn, d.Reason)
	ev.Metadata["plan"] = plan
	ev.Metadata["outcome"] = string(d.Outcome)
	if len(d.RequiredRoles) > 0 {
		ev.Metadata["required_roles"] = d.RequiredRoles
	}
	if intent != nil {
		ev.Metadata["intent"] = *intent
	}
	if err := g.log.Append(ctx, ev); err != nil {
		return Decision{}, fmt.Errorf("failed to record governance decision: %w", err)
	}
	return d, nil
}

func (g *Gateway) decide(ctx context.Context, ec domain.ExecContext, intent *domain.DecisionIntent, plan domain.ExecutionPlan) (Decision, error) {
	for _, a := range plan.AgentsToInvoke {
		if a.DecisionClass == domain.DecisionClassExecutable && a.SecurityFlag == domain.SecurityFlagExternalUntrusted {
			return Decision{
				Outcome: domain.GovernanceBlock,
				Reason:  fmt.Sprintf("executable capability %s is external_untrusted", a.TypeID),
			}, nil
		}
	}
	if g.rules == nil {
		return Decision{Outcome: domain.GovernanceAllow}, nil
	}

	input := map[string]any{"context": ec, "plan": plan}
	if intent != nil {
		input["intent"] = *intent
	}
	blocked, err := g.rules.block.EvalSet(ctx, input)
	if err != nil {
		return Decision{}, fmt.Errorf("governance rules: %w", err)
	}
	if len(blocked) > 0 {
		return Decision{Outcome: domain.GovernanceBlock, Reason: strings.Join(blocked, "; ")}, nil
	}
	held, err := g.rules.approval.EvalSet(ctx, input)
	if err != nil {
		return Decision{}, fmt.Errorf("governance rules: %w", err)
	}
	if len(held) > 0 {
		return Decision{
			Outcome:       domain.GovernanceRequireApproval,
			Reason:        strings.Join(held, "; "),
			RequiredRoles: []string{domain.RoleGovernor, domain.RoleAdmin},
		}, nil
	}
	return Decision{Outcome: domain.GovernanceAllow}, nil
}

// PostCheck reviews a produced outcome. It currently accepts everything.
func (g *Gateway) PostCheck(ctx context.Context, ec domain.ExecContext, outcome map[string]any) Decision {
	return Decision{Outcome: domain.GovernanceAccept}
}

// SensitivePointer reports whether moving key needs an approver.
func SensitivePointer(key string) bool {
	return strings.HasSuffix(key, "/approved") || strings.HasSuffix(key, "/active")
}

// BeforePointerSet refuses sensitive pointer moves unless a human holding
// an approval role performs them.
func (g *Gateway) BeforePointerSet(ctx context.Context, ec domain.ExecContext, key string, ref domain.ArtifactRef) error {
	if !SensitivePointer(key) {
		return nil
	}
	a := ec.Actor
	if a.Type == domain.ActorTypeHuman && (a.HasRole(domain.RoleGovernor) || a.HasRole(domain.RoleAdmin)) {
		return nil
	}
	metrics.RecordGateDecision(Gate, "pointer_denied")
	g.logger.Warn("sensitive pointer move refused",
		zap.String("pointer_key", key),
		zap.String("artifact", ref.Key()),
		zap.String("actor_id", a.ID),
		zap.String("actor_type", string(a.Type)))
	return domain.NewPermissionError(Gate,
		fmt.Sprintf("pointer %s requires a human actor with role %s or %s", key, domain.RoleGovernor, domain.RoleAdmin))
}
