// Package capability defines the behaviour contracts of agents and
// algorithms. Their identity lives in domain.CapabilityDescriptor.
package capability

import (
	"context"

	"github.com/xiaot623/gogo/kernel/internal/domain"
)

// Runner is anything the invoker can execute.
type Runner interface {
	Run(ctx context.Context, ec domain.ExecContext, inputs map[string]any) (map[string]any, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, ec domain.ExecContext, inputs map[string]any) (map[string]any, error)

func (f RunnerFunc) Run(ctx context.Context, ec domain.ExecContext, inputs map[string]any) (map[string]any, error) {
	return f(ctx, ec, inputs)
}

// Agent is an executable capability instance.
type Agent interface {
	Runner
	Describe() domain.CapabilityDescriptor
}

// AgentFactory creates agent instances from per-instance config.
type AgentFactory interface {
	Describe() domain.CapabilityDescriptor
	Create(config map[string]any) (Agent, error)
}

// Algorithm is a pure computation over its inputs.
type Algorithm interface {
	Describe() domain.CapabilityDescriptor
	Run(ctx context.Context, inputs map[string]any) (map[string]any, error)
}

type funcAgent struct {
	desc domain.CapabilityDescriptor
	RunnerFunc
}

func (a funcAgent) Describe() domain.CapabilityDescriptor { return a.desc }

// NewAgent wraps fn as an Agent described by desc.
func NewAgent(desc domain.CapabilityDescriptor, fn RunnerFunc) Agent {
	desc.Kind = domain.CapabilityKindAgent
	return funcAgent{desc: desc.Normalized(), RunnerFunc: fn}
}

type staticFactory struct {
	agent Agent
}

func (f staticFactory) Describe() domain.CapabilityDescriptor { return f.agent.Describe() }
func (f staticFactory) Create(map[string]any) (Agent, error)  { return f.agent, nil }

// StaticFactory returns a factory that always yields agent.
func StaticFactory(agent Agent) AgentFactory {
	return staticFactory{agent: agent}
}
