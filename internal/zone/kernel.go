// Package zone loads zone plugins and runs them under the audit lifecycle.
package zone

import (
	"context"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/kernel/internal/artifact"
	"github.com/xiaot623/gogo/kernel/internal/capability"
	"github.com/xiaot623/gogo/kernel/internal/domain"
	"github.com/xiaot623/gogo/kernel/internal/memory"
	"github.com/xiaot623/gogo/kernel/internal/observe"
	"github.com/xiaot623/gogo/kernel/internal/pointer"
	"github.com/xiaot623/gogo/kernel/internal/registry"
	"github.com/xiaot623/gogo/kernel/internal/tracker"
)

// Kernel is the contract every zone plugin implements.
type Kernel interface {
	ZoneID() string
	KernelVersion() string
	// Register adds the zone's agents and algorithms to the shared registries.
	Register(agents *registry.Agents, algorithms *registry.Algorithms) error
	// CapabilityCatalog maps operation names to descriptions.
	CapabilityCatalog() map[string]string
	// Execute runs the zone. Agent execution must go through env.Invoker.
	Execute(ctx context.Context, env *Env, req domain.ZoneRequest) (*domain.ZoneResult, error)
}

// Invoker runs a capability through the policy and governance gates.
type Invoker interface {
	Invoke(ctx context.Context, ec domain.ExecContext, desc domain.CapabilityDescriptor, instance capability.Runner, capabilityName string, inputs, resources map[string]any) (map[string]any, error)
}

// Env is what a zone sees of the kernel during one run.
type Env struct {
	Exec       domain.ExecContext
	Invoker    Invoker
	Agents     *registry.Agents
	Algorithms *registry.Algorithms
	Artifacts  artifact.Store
	Pointers   pointer.Store
	Resolver   *pointer.Resolver
	Log        tracker.Log
	Observe    *observe.Stream
	Memory     memory.Store
	Logger     *zap.Logger
}

// withExec returns a copy of e scoped to ec.
func (e Env) withExec(ec domain.ExecContext) *Env {
	e.Exec = ec
	if e.Logger == nil {
		e.Logger = zap.NewNop()
	}
	return &e
}
