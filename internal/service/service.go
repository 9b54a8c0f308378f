// Package service is the kernel facade: it owns the stores, registries and
// gates and exposes the gated operations to the transports.
package service

import (
	"context"
	"fmt"
	"io"
	"sort"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/kernel/internal/artifact"
	"github.com/xiaot623/gogo/kernel/internal/config"
	"github.com/xiaot623/gogo/kernel/internal/domain"
	"github.com/xiaot623/gogo/kernel/internal/governance"
	"github.com/xiaot623/gogo/kernel/internal/manifest"
	"github.com/xiaot623/gogo/kernel/internal/memory"
	"github.com/xiaot623/gogo/kernel/internal/observe"
	"github.com/xiaot623/gogo/kernel/internal/pointer"
	"github.com/xiaot623/gogo/kernel/internal/registry"
	"github.com/xiaot623/gogo/kernel/internal/script"
	"github.com/xiaot623/gogo/kernel/internal/tracker"
	"github.com/xiaot623/gogo/kernel/internal/zone"
	"github.com/xiaot623/gogo/kernel/policy"
)

// LivingStore persists sessions, epochs and runs.
type LivingStore interface {
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	ListSessions(ctx context.Context, tenantID string, limit int) ([]domain.Session, error)
	CloseSession(ctx context.Context, sessionID string) error
	NextEpoch(ctx context.Context, epoch *domain.Epoch) error
	GetEpoch(ctx context.Context, epochID string) (*domain.Epoch, error)
	ListEpochs(ctx context.Context, sessionID string) ([]domain.Epoch, error)
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	ListRuns(ctx context.Context, sessionID string, limit int) ([]domain.Run, error)
}

// Deps are the components a Service is assembled from.
type Deps struct {
	Living     LivingStore
	Artifacts  artifact.Store
	Pointers   pointer.Store
	Log        tracker.Log
	Memory     memory.Store
	Agents     *registry.Agents
	Algorithms *registry.Algorithms
	Guard      *policy.Guard
	Governance *governance.Gateway
	Observe    *observe.Stream
	Ring       *observe.Ring
	Zones      map[string]zone.Kernel
	Manifest   *manifest.Manifest
	Config     *config.Config
	Logger     *zap.Logger
	Closers    []io.Closer
}

type Service struct {
	living      LivingStore
	artifacts   artifact.Store
	pointers    pointer.Store
	resolver    *pointer.Resolver
	log         tracker.Log
	memory      memory.Store
	agents      *registry.Agents
	algorithms  *registry.Algorithms
	guard       *policy.Guard
	gov         *governance.Gateway
	observe     *observe.Stream
	ring        *observe.Ring
	scripts     *script.Engine
	invoker     *Invoker
	coordinator *zone.Coordinator
	manifest    *manifest.Manifest
	config      *config.Config
	logger      *zap.Logger
	closers     []io.Closer
}

// New assembles a Service and registers the capabilities of every zone in
// zone id order.
func New(d Deps) (*Service, error) {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Observe == nil {
		d.Observe = observe.NewStream(d.Logger)
	}
	if d.Agents == nil {
		d.Agents = registry.NewAgents()
	}
	if d.Algorithms == nil {
		d.Algorithms = registry.NewAlgorithms()
	}
	if d.Governance == nil {
		d.Governance = governance.NewGateway(d.Log, governance.WithLogger(d.Logger))
	}

	s := &Service{
		living:     d.Living,
		artifacts:  d.Artifacts,
		pointers:   d.Pointers,
		resolver:   pointer.NewResolver(d.Pointers),
		log:        d.Log,
		memory:     d.Memory,
		agents:     d.Agents,
		algorithms: d.Algorithms,
		guard:      d.Guard,
		gov:        d.Governance,
		observe:    d.Observe,
		ring:       d.Ring,
		manifest:   d.Manifest,
		config:     d.Config,
		logger:     d.Logger,
		closers:    d.Closers,
	}
	s.invoker = NewInvoker(d.Guard, d.Governance, d.Log, d.Observe, d.Logger)
	s.scripts = &script.Engine{
		Algorithms: d.Algorithms,
		Artifacts:  d.Artifacts,
		Pointers:   d.Pointers,
		Gate:       d.Governance,
		Log:        d.Log,
		Memory:     d.Memory,
		Logger:     d.Logger,
	}

	ids := make([]string, 0, len(d.Zones))
	for id := range d.Zones {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := d.Zones[id].Register(d.Agents, d.Algorithms); err != nil {
			return nil, fmt.Errorf("failed to register zone %s: %w", id, err)
		}
	}

	s.coordinator = zone.NewCoordinator(d.Zones, zone.Env{
		Invoker:    s.invoker,
		Agents:     d.Agents,
		Algorithms: d.Algorithms,
		Artifacts:  d.Artifacts,
		Pointers:   d.Pointers,
		Resolver:   s.resolver,
		Log:        d.Log,
		Observe:    d.Observe,
		Memory:     d.Memory,
		Logger:     d.Logger,
	})
	return s, nil
}

// Ping checks the durable living store when it supports it.
func (s *Service) Ping() error {
	if p, ok := s.living.(interface{ Ping() error }); ok {
		return p.Ping()
	}
	return nil
}

// Invoker returns the capability invoker.
func (s *Service) Invoker() *Invoker { return s.invoker }

// Observe returns the notification stream.
func (s *Service) Observe() *observe.Stream { return s.observe }

// Ring returns the recent notification buffer, or nil.
func (s *Service) Ring() *observe.Ring { return s.ring }

// Agents returns the agent registry.
func (s *Service) Agents() *registry.Agents { return s.agents }

// Algorithms returns the algorithm registry.
func (s *Service) Algorithms() *registry.Algorithms { return s.algorithms }

// Close releases the backends opened by Boot.
func (s *Service) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
