package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/kernel/internal/capability"
	"github.com/xiaot623/gogo/kernel/internal/domain"
	"github.com/xiaot623/gogo/kernel/internal/governance"
	"github.com/xiaot623/gogo/kernel/internal/metrics"
	"github.com/xiaot623/gogo/kernel/internal/observe"
	"github.com/xiaot623/gogo/kernel/internal/tracker"
	"github.com/xiaot623/gogo/kernel/policy"
)

// PolicyGate is the gate name of policy permission errors.
const PolicyGate = "policy"

// Invoker runs capabilities through the policy and governance gates and
// audits every transition.
type Invoker struct {
	guard   *policy.Guard
	gov     *governance.Gateway
	log     tracker.Log
	observe *observe.Stream
	logger  *zap.Logger
}

// NewInvoker wires an invoker. stream may be nil.
func NewInvoker(guard *policy.Guard, gov *governance.Gateway, log tracker.Log, stream *observe.Stream, logger *zap.Logger) *Invoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invoker{guard: guard, gov: gov, log: log, observe: stream, logger: logger}
}

// Invoke runs instance as desc. Gate refusals return a
// *domain.PermissionError before anything executes. A capability failure
// is audited and returned unchanged. Audit failures abort the call.
func (i *Invoker) Invoke(ctx context.Context, ec domain.ExecContext, desc domain.CapabilityDescriptor, instance capability.Runner, capabilityName string, inputs, resources map[string]any) (map[string]any, error) {
	desc = desc.Normalized()
	if inputs == nil {
		inputs = map[string]any{}
	}

	ctx, span := metrics.Tracer().Start(ctx, "capability.invoke", trace.WithAttributes(
		metrics.AttrTenantID.String(ec.TenantID),
		metrics.AttrSessionID.String(ec.SessionID),
		metrics.AttrRunID.String(ec.RunID),
		metrics.AttrTypeID.String(desc.TypeID),
		metrics.AttrVersion.String(desc.Version),
		metrics.AttrCapability.String(capabilityName),
	))
	start := time.Now()
	out, outcome, err := i.invoke(ctx, ec, desc, instance, capabilityName, inputs, resources)
	metrics.RecordInvocation(desc.TypeID, outcome, time.Since(start))
	metrics.EndSpan(span, outcome, err)
	return out, err
}

func (i *Invoker) invoke(ctx context.Context, ec domain.ExecContext, desc domain.CapabilityDescriptor, instance capability.Runner, capabilityName string, inputs, resources map[string]any) (map[string]any, string, error) {
	// 1. Policy
	pd, err := i.guard.Allow(ctx, ec, desc, capabilityName, resources)
	if err != nil {
		return nil, "policy_error", err
	}
	eventType, severity, msg := domain.EventTypePolicyAllow, domain.SeverityInfo, "policy allow"
	if !pd.Allowed {
		eventType, severity, msg = domain.EventTypePolicyDeny, domain.SeverityWarn, "policy deny"
	}
	ev := ec.Event(eventType, severity, msg)
	capabilityRefs(ev, desc, capabilityName)
	reasons := pd.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	ev.Metadata["reasons"] = reasons
	if err := i.append(ctx, ev); err != nil {
		return nil, "audit_error", err
	}
	if !pd.Allowed {
		return nil, "policy_denied", domain.NewPermissionError(PolicyGate, pd.Reasons...)
	}

	// 2. Governance pre-check
	plan := domain.ExecutionPlan{
		ZoneID:                ec.ZoneID,
		AgentsToInvoke:        []domain.CapabilityDescriptor{desc},
		Capabilities:          []string{capabilityName},
		SecurityFlagsInvolved: []domain.SecurityFlag{desc.SecurityFlag},
	}
	gd, err := i.gov.PreCheck(ctx, ec, nil, plan)
	if err != nil {
		return nil, "governance_error", err
	}
	switch gd.Outcome {
	case domain.GovernanceBlock:
		return nil, "governance_blocked", domain.NewPermissionError(governance.Gate, "governance blocked execution: "+gd.Reason)
	case domain.GovernanceRequireApproval:
		return nil, "approval_required", domain.NewPermissionError(governance.Gate, "governance requires approval: "+gd.Reason)
	}

	// 3. Execute
	agentEC := ec.WithActor(domain.Actor{Type: domain.ActorTypeAgent, ID: desc.TypeID, DisplayName: desc.TypeID})
	started := agentEC.Event(domain.EventTypeAgentStart, domain.SeverityInfo, "agent start")
	capabilityRefs(started, desc, capabilityName)
	if err := i.append(ctx, started); err != nil {
		return nil, "audit_error", err
	}
	i.notify(domain.EventTypeAgentStart, map[string]any{"agent_type_id": desc.TypeID, "run_id": ec.RunID, "capability": capabilityName})

	out, runErr := instance.Run(ctx, ec, inputs)
	if runErr != nil {
		failed := agentEC.Event(domain.EventTypeAgentFail, domain.SeverityError, runErr.Error())
		capabilityRefs(failed, desc, capabilityName)
		if err := i.append(ctx, failed); err != nil {
			return nil, "audit_error", errors.Join(runErr, err)
		}
		i.notify(domain.EventTypeAgentFail, map[string]any{"agent_type_id": desc.TypeID, "run_id": ec.RunID, "error": runErr.Error()})
		i.logger.Debug("capability failed",
			zap.String("type_id", desc.TypeID),
			zap.String("capability", capabilityName),
			zap.Error(runErr))
		return nil, "failed", runErr
	}

	ended := agentEC.Event(domain.EventTypeAgentEnd, domain.SeverityInfo, "agent end")
	capabilityRefs(ended, desc, capabilityName)
	if err := i.append(ctx, ended); err != nil {
		return nil, "audit_error", err
	}
	i.notify(domain.EventTypeAgentEnd, map[string]any{"agent_type_id": desc.TypeID, "run_id": ec.RunID})

	// 4. Governance post-check
	i.gov.PostCheck(ctx, ec, out)
	return out, "ok", nil
}

func (i *Invoker) append(ctx context.Context, ev *domain.TrackEvent) error {
	err := i.log.Append(ctx, ev)
	metrics.RecordAuditEvent(string(ev.EventType), err == nil)
	if err != nil {
		i.logger.Error("audit append failed", zap.String("event_type", string(ev.EventType)), zap.Error(err))
		return fmt.Errorf("failed to record %s: %w", ev.EventType, err)
	}
	return nil
}

func (i *Invoker) notify(eventType domain.EventType, payload map[string]any) {
	if i.observe != nil {
		i.observe.Emit(string(eventType), payload)
	}
}

func capabilityRefs(ev *domain.TrackEvent, desc domain.CapabilityDescriptor, capabilityName string) {
	ev.Refs["agent_type_id"] = desc.TypeID
	ev.Refs["agent_version"] = desc.Version
	ev.Refs["capability"] = capabilityName
}
