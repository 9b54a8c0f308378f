// Package zone1 is the builtin example zone. Importing it registers the
// "builtin:zone1" entrypoint.
package zone1

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/kernel/internal/algorithms"
	"github.com/xiaot623/gogo/kernel/internal/artifact"
	"github.com/xiaot623/gogo/kernel/internal/capability"
	"github.com/xiaot623/gogo/kernel/internal/domain"
	"github.com/xiaot623/gogo/kernel/internal/registry"
	"github.com/xiaot623/gogo/kernel/internal/zone"
)

const (
	// ZoneID of the example zone.
	ZoneID = "zone1"
	// Entrypoint is the manifest entrypoint the zone registers under.
	Entrypoint = "builtin:zone1"
	// SummaryAgentID is the native agent run by the zone.
	SummaryAgentID = "zone1.summary"

	defaultVersion = "0.1.0"
)

func init() {
	zone.MustRegister(Entrypoint, New)
}

// Kernel cleans the request rows through its summary agent and stores the
// result as a run_summary artifact.
type Kernel struct {
	config     map[string]string
	algorithms *registry.Algorithms
}

var _ zone.Kernel = (*Kernel)(nil)

// New builds the zone from its manifest config.
func New(config map[string]string) (zone.Kernel, error) {
	if config == nil {
		config = map[string]string{}
	}
	return &Kernel{config: config}, nil
}

func (k *Kernel) ZoneID() string { return ZoneID }

func (k *Kernel) KernelVersion() string {
	if v := k.config["version"]; v != "" {
		return v
	}
	return defaultVersion
}

// Register adds the cleaner algorithm and the summary agent.
func (k *Kernel) Register(agents *registry.Agents, algs *registry.Algorithms) error {
	k.algorithms = algs
	if err := algorithms.Register(algs); err != nil && !errors.Is(err, domain.ErrDuplicateRegistration) {
		return err
	}
	return agents.Add(capability.StaticFactory(k.summaryAgent()))
}

func (k *Kernel) CapabilityCatalog() map[string]string {
	return map[string]string{
		"summarize": "Clean request rows and store a run summary",
	}
}

func (k *Kernel) summaryDescriptor() domain.CapabilityDescriptor {
	return domain.CapabilityDescriptor{
		TypeID:             SummaryAgentID,
		Version:            k.KernelVersion(),
		ZoneID:             ZoneID,
		SecurityFlag:       domain.SecurityFlagInternalTrusted,
		DecisionClass:      domain.DecisionClassInformational,
		Capabilities:       []string{"summarize"},
		RequiredAlgorithms: []string{algorithms.BasicCleanerID},
		DeterminismLevel:   "deterministic",
	}
}

func (k *Kernel) summaryAgent() capability.Agent {
	return capability.NewAgent(k.summaryDescriptor(), func(ctx context.Context, ec domain.ExecContext, inputs map[string]any) (map[string]any, error) {
		if k.algorithms == nil {
			return nil, fmt.Errorf("zone1 is not registered")
		}
		entry, err := k.algorithms.Resolve(algorithms.BasicCleanerID, "")
		if err != nil {
			return nil, err
		}
		return entry.Impl.Run(ctx, map[string]any{"rows": inputs["rows"]})
	})
}

// Execute runs the summary agent through the invoker. Gate refusals become
// a blocked result.
func (k *Kernel) Execute(ctx context.Context, env *zone.Env, req domain.ZoneRequest) (*domain.ZoneResult, error) {
	if req.RunMode == domain.ZoneRunModeValidateOnly {
		return &domain.ZoneResult{Status: domain.ZoneStatusSuccess, Explain: "zone1 validated request"}, nil
	}

	entry, err := env.Agents.Resolve(SummaryAgentID, "")
	if err != nil {
		return nil, err
	}
	agent, err := entry.Impl.Create(nil)
	if err != nil {
		return nil, err
	}

	out, err := env.Invoker.Invoke(ctx, env.Exec, entry.Descriptor, agent, "summarize", req.Inputs, nil)
	var pe *domain.PermissionError
	if errors.As(err, &pe) {
		return &domain.ZoneResult{Status: domain.ZoneStatusBlocked, Errors: pe.Reasons, Explain: pe.Error()}, nil
	}
	if err != nil {
		return nil, err
	}

	ref := domain.ArtifactRef{Kind: domain.KindRunSummary, ArtifactID: domain.NewID("a")}
	seq := env.Exec.EpochSeq
	art := &domain.ArtifactEnvelope{
		Header: domain.ArtifactHeader{
			TenantID:          env.Exec.TenantID,
			DecisionContextID: env.Exec.DecisionContextID,
			SessionID:         env.Exec.SessionID,
			EpochID:           env.Exec.EpochID,
			RunID:             env.Exec.RunID,
			ZoneID:            ZoneID,
			CreatedAt:         time.Now().UTC(),
			Producer:          entry.Descriptor.Producer(),
			Inputs:            []domain.ArtifactRef{},
			LogicalVersion:    &seq,
			Tags:              map[string]string{"security_flag": string(entry.Descriptor.SecurityFlag), "run_mode": string(req.RunMode)},
		},
		Payload: out,
	}
	if err := artifact.Seal(art); err != nil {
		return nil, err
	}
	if err := env.Artifacts.Put(ctx, ref, art); err != nil {
		return nil, err
	}
	actor := domain.Actor{Type: domain.ActorTypeAgent, ID: entry.Descriptor.TypeID, DisplayName: entry.Descriptor.TypeID}
	ev := env.Exec.WithActor(actor).Event(domain.EventTypeArtifactStored, domain.SeverityInfo, "stored artifact "+ref.Key())
	ev.Refs["artifact_ref"] = ref.Map()
	if err := env.Log.Append(ctx, ev); err != nil {
		return nil, fmt.Errorf("failed to record artifact: %w", err)
	}
	logger := env.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("zone1 stored run summary",
		zap.String("run_id", env.Exec.RunID),
		zap.String("artifact", ref.Key()))

	return &domain.ZoneResult{
		Status:            domain.ZoneStatusSuccess,
		ProducedArtifacts: []domain.ArtifactRef{ref},
		Outputs:           out,
		Explain:           "zone1 cleaned rows",
	}, nil
}
