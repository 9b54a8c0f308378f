package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/kernel/internal/artifact"
	"github.com/xiaot623/gogo/kernel/internal/capability"
	"github.com/xiaot623/gogo/kernel/internal/domain"
	"github.com/xiaot623/gogo/kernel/internal/observe"
	"github.com/xiaot623/gogo/kernel/internal/pointer"
)

// InvokeRequest selects an agent and the capability to run on it.
type InvokeRequest struct {
	TypeID     string         `json:"type_id"`
	Version    string         `json:"version,omitempty"`
	Capability string         `json:"capability,omitempty"`
	Config     map[string]any `json:"config,omitempty"`
	Inputs     map[string]any `json:"inputs,omitempty"`
	Resources  map[string]any `json:"resources,omitempty"`
}

// InvokeAgent resolves an agent, creates an instance and runs it through
// the invoker. An empty capability selects the agent's first one.
func (s *Service) InvokeAgent(ctx context.Context, ec domain.ExecContext, req InvokeRequest) (map[string]any, error) {
	entry, err := s.agents.Resolve(req.TypeID, req.Version)
	if err != nil {
		return nil, err
	}
	name := req.Capability
	if name == "" {
		name = entry.Descriptor.Capabilities[0]
	}
	if !slices.Contains(entry.Descriptor.Capabilities, name) {
		return nil, fmt.Errorf("%w: agent %s does not provide %q", domain.ErrValidation, req.TypeID, name)
	}
	agent, err := entry.Impl.Create(req.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent %s: %w", req.TypeID, err)
	}
	return s.invoker.Invoke(ctx, ec, entry.Descriptor, agent, name, req.Inputs, req.Resources)
}

// ListAgents returns agent descriptors of zoneID, or all when empty.
func (s *Service) ListAgents(zoneID string) []domain.CapabilityDescriptor {
	return s.agents.List(zoneID)
}

// ListAlgorithms returns algorithm descriptors of zoneID, or all when empty.
func (s *Service) ListAlgorithms(zoneID string) []domain.CapabilityDescriptor {
	return s.algorithms.List(zoneID)
}

// ZoneInfo describes a loaded zone.
type ZoneInfo struct {
	ZoneID        string            `json:"zone_id"`
	KernelVersion string            `json:"kernel_version"`
	Capabilities  map[string]string `json:"capabilities"`
}

// Zones returns the loaded zones sorted by id.
func (s *Service) Zones() []ZoneInfo {
	ids := s.coordinator.ZoneIDs()
	out := make([]ZoneInfo, 0, len(ids))
	for _, id := range ids {
		k, _ := s.coordinator.Zone(id)
		out = append(out, ZoneInfo{ZoneID: id, KernelVersion: k.KernelVersion(), Capabilities: k.CapabilityCatalog()})
	}
	return out
}

// RunZone records a run in the living store and executes zoneID under it.
// The run is returned even when the zone fails.
func (s *Service) RunZone(ctx context.Context, ec domain.ExecContext, zoneID string, mode domain.RunMode, req domain.ZoneRequest) (*domain.Run, *domain.ZoneResult, error) {
	k, ok := s.coordinator.Zone(zoneID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: zone kernel %s not loaded", domain.ErrNotFound, zoneID)
	}
	if ec.EpochID == "" {
		return nil, nil, fmt.Errorf("%w: a run requires an epoch", domain.ErrValidation)
	}
	if mode == "" {
		mode = domain.RunModeAuto
	}
	traceID := ec.TraceID
	if traceID == "" {
		traceID = domain.NewID("trace")
	}
	run := &domain.Run{
		RunID:         domain.NewID("run"),
		SessionID:     ec.SessionID,
		EpochID:       ec.EpochID,
		ZoneID:        zoneID,
		RunMode:       mode,
		CreatedAt:     time.Now().UTC(),
		KernelVersion: k.KernelVersion(),
		TraceID:       traceID,
		CorrelationID: ec.CorrelationID,
	}
	if err := s.living.CreateRun(ctx, run); err != nil {
		return nil, nil, fmt.Errorf("failed to create run: %w", err)
	}

	ec = ec.WithRun(run)
	req.SessionID = ec.SessionID
	req.EpochID = ec.EpochID
	result, err := s.coordinator.RunZone(ctx, ec, zoneID, req)
	if err != nil {
		s.logger.Warn("zone run failed",
			zap.String("zone_id", zoneID),
			zap.String("run_id", run.RunID),
			zap.Error(err))
		return run, nil, err
	}
	return run, result, nil
}

// GetArtifact reads an artifact and re-checks its integrity record. A
// checksum mismatch is reported in the record, not as an error.
func (s *Service) GetArtifact(ctx context.Context, ref domain.ArtifactRef) (*domain.ArtifactEnvelope, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	env, err := s.artifacts.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := artifact.Verify(env); err != nil {
		s.logger.Warn("artifact integrity check failed", zap.String("artifact", ref.Key()), zap.Error(err))
		env.Integrity.Status = domain.IntegrityFail
		env.Integrity.Errors = append(env.Integrity.Errors, err.Error())
	}
	return env, nil
}

// ListArtifacts returns refs of kind, newest first.
func (s *Service) ListArtifacts(ctx context.Context, kind string, limit int) ([]domain.ArtifactRef, error) {
	if kind == "" {
		return nil, fmt.Errorf("%w: kind is required", domain.ErrValidation)
	}
	return s.artifacts.List(ctx, kind, limit)
}

// ListPointers returns the active pointers under prefix.
func (s *Service) ListPointers(ctx context.Context, tenantID, decisionContextID, prefix string) ([]domain.Pointer, error) {
	return s.pointers.ListActive(ctx, tenantID, decisionContextID, prefix)
}

// PointerQuery names a core key and the override layers to consult.
type PointerQuery struct {
	TenantID          string `json:"tenant_id"`
	DecisionContextID string `json:"decision_context_id"`
	CoreKey           string `json:"core_key"`
	ZoneID            string `json:"zone_id,omitempty"`
	CustomNS          string `json:"custom_ns,omitempty"`
	AppNS             string `json:"app_ns,omitempty"`
}

// ResolvePointer walks the precedence order of q and returns the first
// active pointer. domain.ErrNotFound when no layer is set.
func (s *Service) ResolvePointer(ctx context.Context, q PointerQuery) (*domain.Pointer, error) {
	if q.CoreKey == "" {
		return nil, fmt.Errorf("%w: core_key is required", domain.ErrValidation)
	}
	candidates := pointer.Candidates(q.CoreKey, q.ZoneID, q.CustomNS, q.AppNS)
	p, ok, err := s.resolver.Resolve(ctx, q.TenantID, q.DecisionContextID, candidates)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no active pointer for %s", domain.ErrNotFound, q.CoreKey)
	}
	return p, nil
}

// RegisterAgent adds a native agent factory to the registry.
func (s *Service) RegisterAgent(f capability.AgentFactory) error {
	return s.agents.Add(f)
}

// Notifications returns up to n recent observe notifications, oldest first.
func (s *Service) Notifications(n int) []observe.Notification {
	if s.ring == nil {
		return []observe.Notification{}
	}
	return s.ring.Recent(n)
}
