package script

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/kernel/internal/artifact"
	"github.com/xiaot623/gogo/kernel/internal/domain"
	"github.com/xiaot623/gogo/kernel/internal/memory"
	"github.com/xiaot623/gogo/kernel/internal/metrics"
	"github.com/xiaot623/gogo/kernel/internal/pointer"
	"github.com/xiaot623/gogo/kernel/internal/registry"
	"github.com/xiaot623/gogo/kernel/internal/tracker"
)

// Step types.
const (
	StepAlgorithm     = "algorithm"
	StepStoreArtifact = "store_artifact"
	StepSetPointer    = "set_pointer"
	StepMemoryWrite   = "memory_write"
	StepMemoryRead    = "memory_read"
)

// PointerGate approves pointer moves before they happen.
type PointerGate interface {
	BeforePointerSet(ctx context.Context, ec domain.ExecContext, key string, ref domain.ArtifactRef) error
}

// Engine executes scripts against the kernel stores.
type Engine struct {
	Algorithms *registry.Algorithms
	Artifacts  artifact.Store
	Pointers   pointer.Store
	Gate       PointerGate
	Log        tracker.Log
	Memory     memory.Store
	Logger     *zap.Logger

	now func() time.Time
}

type state struct {
	root    map[string]any
	vars    map[string]any
	outputs map[string]any
}

// Exec runs the steps of s in order on behalf of the agent desc. Steps are
// not rolled back: effects of steps before a failure remain.
func (e *Engine) Exec(ctx context.Context, ec domain.ExecContext, desc domain.CapabilityDescriptor, s *Script, inputs map[string]any) (map[string]any, error) {
	return e.exec(ctx, ec, desc, s, inputs, nil)
}

// exec runs s with config visible to steps as ${config.*}.
func (e *Engine) exec(ctx context.Context, ec domain.ExecContext, desc domain.CapabilityDescriptor, s *Script, inputs, config map[string]any) (map[string]any, error) {
	if inputs == nil {
		inputs = map[string]any{}
	}
	if config == nil {
		config = map[string]any{}
	}
	st := &state{vars: map[string]any{}, outputs: map[string]any{}}
	st.root = map[string]any{"inputs": inputs, "vars": st.vars, "outputs": st.outputs, "config": config}

	for i, step := range s.Steps {
		stype, _ := step["type"].(string)
		metrics.AddSpanEvent(ctx, "script.step", metrics.AttrScriptID.String(s.ScriptID), metrics.AttrStepType.String(stype))
		if err := e.step(ctx, ec, desc, stype, step, st); err != nil {
			e.logger().Debug("script step failed",
				zap.String("script_id", s.ScriptID),
				zap.Int("step", i),
				zap.String("type", stype),
				zap.Error(err))
			return nil, fmt.Errorf("script %s step %d (%s): %w", s.ScriptID, i, stype, err)
		}
	}
	return map[string]any{"vars": st.vars, "outputs": st.outputs}, nil
}

func (e *Engine) step(ctx context.Context, ec domain.ExecContext, desc domain.CapabilityDescriptor, stype string, step map[string]any, st *state) error {
	switch stype {
	case StepAlgorithm:
		return e.runAlgorithm(ctx, ec, desc, step, st)
	case StepStoreArtifact:
		return e.storeArtifact(ctx, ec, desc, step, st)
	case StepSetPointer:
		return e.setPointer(ctx, ec, desc, step, st)
	case StepMemoryWrite:
		return e.memoryWrite(ctx, step, st)
	case StepMemoryRead:
		return e.memoryRead(ctx, step, st)
	}
	return fmt.Errorf("%w: unsupported step type %q", domain.ErrValidation, stype)
}

func (e *Engine) runAlgorithm(ctx context.Context, ec domain.ExecContext, desc domain.CapabilityDescriptor, step map[string]any, st *state) error {
	id, err := requireString(step, "algorithm_id")
	if err != nil {
		return err
	}
	entry, err := e.Algorithms.Resolve(id, optString(step, "version"))
	if err != nil {
		return err
	}
	in, err := resolveMap(step["inputs"], st.root)
	if err != nil {
		return err
	}

	ev := agentEvent(ec, desc, domain.EventTypeAlgorithmSelected, "selected "+id)
	ev.Refs["algorithm_id"] = id
	ev.Refs["algorithm_version"] = entry.Descriptor.Version
	if err := e.Log.Append(ctx, ev); err != nil {
		return fmt.Errorf("failed to record algorithm selection: %w", err)
	}

	result, err := entry.Impl.Run(ctx, in)
	if err != nil {
		return fmt.Errorf("algorithm %s@%s: %w", id, entry.Descriptor.Version, err)
	}
	if v := optString(step, "save_as"); v != "" {
		st.vars[v] = result
	}
	key := optString(step, "output_key")
	if key == "" {
		key = "last_algorithm"
	}
	st.outputs[key] = result
	return nil
}

func (e *Engine) storeArtifact(ctx context.Context, ec domain.ExecContext, desc domain.CapabilityDescriptor, step map[string]any, st *state) error {
	kind := optString(step, "kind")
	if kind == "" {
		kind = domain.KindRunSummary
	}
	payload, err := resolveAll(step["payload"], st.root)
	if err != nil {
		return err
	}
	if payload == nil {
		payload = map[string]any{}
	}
	id := optString(step, "artifact_id")
	if id == "" {
		id = domain.NewID("a")
	}
	ref := domain.ArtifactRef{Kind: kind, ArtifactID: id}
	if err := ref.Validate(); err != nil {
		return err
	}

	var inputs []domain.ArtifactRef
	if raw, ok := step["inputs"]; ok && raw != nil {
		resolved, err := resolveAll(raw, st.root)
		if err != nil {
			return err
		}
		list, ok := resolved.([]any)
		if !ok {
			return fmt.Errorf("%w: store_artifact inputs must be a list", domain.ErrValidation)
		}
		for _, item := range list {
			in, err := domain.ParseArtifactRef(item)
			if err != nil {
				return err
			}
			inputs = append(inputs, in)
		}
	}
	if inputs == nil {
		inputs = []domain.ArtifactRef{}
	}

	seq := ec.EpochSeq
	env := &domain.ArtifactEnvelope{
		Header: domain.ArtifactHeader{
			TenantID:          ec.TenantID,
			DecisionContextID: ec.DecisionContextID,
			SessionID:         ec.SessionID,
			EpochID:           ec.EpochID,
			RunID:             ec.RunID,
			ZoneID:            ec.ZoneID,
			CreatedAt:         e.clock().UTC(),
			Producer:          desc.Producer(),
			Inputs:            inputs,
			LogicalVersion:    &seq,
			Tags:              map[string]string{"security_flag": string(desc.SecurityFlag)},
		},
		Payload: payload,
	}
	if err := artifact.Seal(env); err != nil {
		return err
	}
	if err := e.Artifacts.Put(ctx, ref, env); err != nil {
		return err
	}

	ev := agentEvent(ec, desc, domain.EventTypeArtifactStored, "stored artifact "+ref.Key())
	ev.Refs["artifact_ref"] = ref.Map()
	if err := e.Log.Append(ctx, ev); err != nil {
		return fmt.Errorf("failed to record artifact: %w", err)
	}
	st.vars[saveAs(step, "artifact_ref")] = ref.Map()
	return nil
}

func (e *Engine) setPointer(ctx context.Context, ec domain.ExecContext, desc domain.CapabilityDescriptor, step map[string]any, st *state) error {
	key, err := requireString(step, "pointer_key")
	if err != nil {
		return err
	}
	rawRef, ok := step["artifact_ref"]
	if !ok {
		return fmt.Errorf("%w: set_pointer requires artifact_ref", domain.ErrValidation)
	}
	resolved, err := resolveAll(rawRef, st.root)
	if err != nil {
		return err
	}
	ref, err := domain.ParseArtifactRef(resolved)
	if err != nil {
		return err
	}

	if e.Gate != nil {
		if err := e.Gate.BeforePointerSet(ctx, ec, key, ref); err != nil {
			return err
		}
	}
	if err := e.Pointers.SetActive(ctx, ec.TenantID, ec.DecisionContextID, key, ref, e.clock().UTC()); err != nil {
		return err
	}

	ev := agentEvent(ec, desc, domain.EventTypePointerSet, fmt.Sprintf("pointer set %s -> %s", key, ref.Key()))
	ev.Refs["pointer_key"] = key
	ev.Refs["artifact_ref"] = ref.Map()
	if err := e.Log.Append(ctx, ev); err != nil {
		return fmt.Errorf("failed to record pointer: %w", err)
	}
	st.vars[saveAs(step, "pointer_set")] = map[string]any{"pointer_key": key, "artifact_ref": ref.Map()}
	return nil
}

func (e *Engine) memoryWrite(ctx context.Context, step map[string]any, st *state) error {
	ns, key, err := memoryKey(step)
	if err != nil {
		return err
	}
	val, err := resolveAll(step["value"], st.root)
	if err != nil {
		return err
	}
	ttl, err := ttlOf(step)
	if err != nil {
		return err
	}
	if err := e.Memory.Write(ctx, ns, key, val, ttl); err != nil {
		return err
	}
	st.vars[saveAs(step, "memory_write")] = map[string]any{"namespace": ns, "key": key}
	return nil
}

func (e *Engine) memoryRead(ctx context.Context, step map[string]any, st *state) error {
	ns, key, err := memoryKey(step)
	if err != nil {
		return err
	}
	val, err := e.Memory.Read(ctx, ns, key)
	if errors.Is(err, domain.ErrNotFound) {
		val, err = nil, nil
	}
	if err != nil {
		return err
	}
	st.vars[saveAs(step, "memory_read")] = val
	return nil
}

func (e *Engine) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func agentEvent(ec domain.ExecContext, desc domain.CapabilityDescriptor, t domain.EventType, msg string) *domain.TrackEvent {
	actor := domain.Actor{Type: domain.ActorTypeAgent, ID: desc.TypeID, DisplayName: desc.TypeID}
	return ec.WithActor(actor).Event(t, domain.SeverityInfo, msg)
}

func requireString(step map[string]any, key string) (string, error) {
	s, _ := step[key].(string)
	if s == "" {
		return "", fmt.Errorf("%w: step requires %s", domain.ErrValidation, key)
	}
	return s, nil
}

func optString(step map[string]any, key string) string {
	s, _ := step[key].(string)
	return s
}

func saveAs(step map[string]any, def string) string {
	if v := optString(step, "save_as"); v != "" {
		return v
	}
	return def
}

func memoryKey(step map[string]any) (string, string, error) {
	ns, err := requireString(step, "namespace")
	if err != nil {
		return "", "", err
	}
	key, err := requireString(step, "key")
	if err != nil {
		return "", "", err
	}
	return ns, key, nil
}

func ttlOf(step map[string]any) (time.Duration, error) {
	switch v := step["ttl"].(type) {
	case nil:
		return 0, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	}
	return 0, fmt.Errorf("%w: ttl must be a number of seconds", domain.ErrValidation)
}
