package script

import (
	"context"
	"fmt"
	"maps"

	"github.com/xiaot623/gogo/kernel/internal/capability"
	"github.com/xiaot623/gogo/kernel/internal/domain"
)

// Agent runs a script loaded from the artifact store on every call.
type Agent struct {
	desc      domain.CapabilityDescriptor
	scriptRef domain.ArtifactRef
	engine    *Engine
	config    map[string]any
}

var _ capability.Agent = (*Agent)(nil)

func (a *Agent) Describe() domain.CapabilityDescriptor { return a.desc }

// ScriptRef returns the artifact holding the agent's script.
func (a *Agent) ScriptRef() domain.ArtifactRef { return a.scriptRef }

// Run loads and validates the script, then executes it.
func (a *Agent) Run(ctx context.Context, ec domain.ExecContext, inputs map[string]any) (map[string]any, error) {
	env, err := a.engine.Artifacts.Get(ctx, a.scriptRef)
	if err != nil {
		return nil, fmt.Errorf("failed to load script %s: %w", a.scriptRef.Key(), err)
	}
	s, err := Parse(env.Payload)
	if err != nil {
		return nil, err
	}
	return a.engine.exec(ctx, ec, a.desc, s, inputs, a.config)
}

// Factory creates scripted agents bound to one script artifact.
type Factory struct {
	desc      domain.CapabilityDescriptor
	scriptRef domain.ArtifactRef
	engine    *Engine
}

var _ capability.AgentFactory = (*Factory)(nil)

// NewFactory returns a factory for agents described by desc running the
// script stored at ref.
func NewFactory(desc domain.CapabilityDescriptor, ref domain.ArtifactRef, engine *Engine) *Factory {
	desc.Kind = domain.CapabilityKindAgent
	return &Factory{desc: desc.Normalized(), scriptRef: ref, engine: engine}
}

func (f *Factory) Describe() domain.CapabilityDescriptor { return f.desc }

// Create returns a new agent. Script steps read config as ${config.*}.
func (f *Factory) Create(config map[string]any) (capability.Agent, error) {
	if err := f.scriptRef.Validate(); err != nil {
		return nil, err
	}
	return &Agent{desc: f.desc, scriptRef: f.scriptRef, engine: f.engine, config: maps.Clone(config)}, nil
}
