package script

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/kernel/internal/algorithms"
	"github.com/xiaot623/gogo/kernel/internal/artifact"
	"github.com/xiaot623/gogo/kernel/internal/domain"
	"github.com/xiaot623/gogo/kernel/internal/governance"
	"github.com/xiaot623/gogo/kernel/internal/memory"
	"github.com/xiaot623/gogo/kernel/internal/pointer"
	"github.com/xiaot623/gogo/kernel/internal/registry"
	"github.com/xiaot623/gogo/kernel/internal/tracker"
)

type fixture struct {
	engine *Engine
	log    *tracker.MemoryLog
	store  *artifact.MemoryStore
	ptrs   *pointer.MemoryStore
	mem    *memory.InMemory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	algs := registry.NewAlgorithms()
	require.NoError(t, algorithms.Register(algs))
	f := &fixture{
		log:   tracker.NewMemoryLog(),
		store: artifact.NewMemoryStore(),
		ptrs:  pointer.NewMemoryStore(),
		mem:   memory.NewInMemory(),
	}
	f.engine = &Engine{
		Algorithms: algs,
		Artifacts:  f.store,
		Pointers:   f.ptrs,
		Gate:       governance.NewGateway(f.log),
		Log:        f.log,
		Memory:     f.mem,
		now:        func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
	return f
}

var (
	ec = domain.ExecContext{
		TenantID:          "t1",
		DecisionContextID: "dc1",
		SessionID:         "s1",
		EpochID:           "e1",
		EpochSeq:          3,
		RunID:             "r1",
		ZoneID:            "core",
		Actor:             domain.Actor{Type: domain.ActorTypeHuman, ID: "alice"},
	}
	agentDesc = domain.CapabilityDescriptor{TypeID: "agent.cleaner", Version: "1.2.0"}.Normalized()
)

func mustParse(t *testing.T, doc string) *Script {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(doc), &m))
	s, err := Parse(m)
	require.NoError(t, err)
	return s
}

func (f *fixture) events(t *testing.T, et domain.EventType) []domain.TrackEvent {
	t.Helper()
	evs, err := f.log.Query(context.Background(), "s1", 0, et)
	require.NoError(t, err)
	return evs
}

func TestAlgorithmThenStoreArtifact(t *testing.T) {
	f := newFixture(t)
	s := mustParse(t, `{
		"script_id": "clean-and-store",
		"language": "kernelscript.v1",
		"steps": [
			{"type": "algorithm", "algorithm_id": "generic.data_cleaning.basic", "inputs": {"rows": "${inputs.rows}"}, "save_as": "cleaned"},
			{"type": "store_artifact", "payload": "${vars.cleaned}"}
		]
	}`)
	inputs := map[string]any{"rows": []any{map[string]any{"a": 1, "b": nil}, nil, map[string]any{"c": 2}}}

	out, err := f.engine.Exec(context.Background(), ec, agentDesc, s, inputs)
	require.NoError(t, err)

	stored := f.events(t, domain.EventTypeArtifactStored)
	require.Len(t, stored, 1)
	assert.Equal(t, domain.ActorTypeAgent, stored[0].Actor.Type)
	assert.Equal(t, "agent.cleaner", stored[0].Actor.ID)

	vars := out["vars"].(map[string]any)
	ref, err := domain.ParseArtifactRef(vars["artifact_ref"])
	require.NoError(t, err)
	assert.Equal(t, domain.KindRunSummary, ref.Kind)

	env, err := f.store.Get(context.Background(), ref)
	require.NoError(t, err)
	want, _ := json.Marshal(vars["cleaned"])
	got, _ := json.Marshal(env.Payload)
	assert.JSONEq(t, string(want), string(got))
	require.NoError(t, artifact.Verify(env))

	assert.Equal(t, "agent.cleaner", env.Header.Producer.Name)
	assert.Equal(t, "1.2.0", env.Header.Producer.Version)
	require.NotNil(t, env.Header.LogicalVersion)
	assert.Equal(t, 3, *env.Header.LogicalVersion)
	assert.Equal(t, "internal_trusted", env.Header.Tags["security_flag"])

	selected := f.events(t, domain.EventTypeAlgorithmSelected)
	require.Len(t, selected, 1)
	assert.Equal(t, "generic.data_cleaning.basic", selected[0].Refs["algorithm_id"])
	assert.Equal(t, "1.0.0", selected[0].Refs["algorithm_version"])

	outputs := out["outputs"].(map[string]any)
	assert.Contains(t, outputs, "last_algorithm")
}

func TestMissingReferenceFails(t *testing.T) {
	f := newFixture(t)
	s := mustParse(t, `{
		"script_id": "bad-ref",
		"language": "kernelscript.v1",
		"steps": [{"type": "algorithm", "algorithm_id": "generic.data_cleaning.basic", "inputs": {"rows": "${inputs.nope}"}}]
	}`)
	_, err := f.engine.Exec(context.Background(), ec, agentDesc, s, map[string]any{})
	assert.ErrorIs(t, err, domain.ErrReference)
	assert.Empty(t, f.events(t, domain.EventTypeAlgorithmSelected))
}

func TestUnsupportedStepHasNoRollback(t *testing.T) {
	f := newFixture(t)
	s := mustParse(t, `{
		"script_id": "partial",
		"language": "kernelscript.v1",
		"steps": [
			{"type": "memory_write", "namespace": "ns", "key": "k", "value": "v"},
			{"type": "teleport"}
		]
	}`)
	_, err := f.engine.Exec(context.Background(), ec, agentDesc, s, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "unsupported step type")
	assert.Contains(t, err.Error(), "step 1")

	v, err := f.mem.Read(context.Background(), "ns", "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestMemoryRoundTrip(t *testing.T) {
	f := newFixture(t)
	s := mustParse(t, `{
		"script_id": "mem",
		"language": "kernelscript.v1",
		"steps": [
			{"type": "memory_read", "namespace": "ns", "key": "missing", "save_as": "before"},
			{"type": "memory_write", "namespace": "ns", "key": "k", "value": "${inputs.x}", "ttl": 60},
			{"type": "memory_read", "namespace": "ns", "key": "k", "save_as": "after"}
		]
	}`)
	out, err := f.engine.Exec(context.Background(), ec, agentDesc, s, map[string]any{"x": "hello"})
	require.NoError(t, err)
	vars := out["vars"].(map[string]any)
	assert.Nil(t, vars["before"])
	assert.Equal(t, "hello", vars["after"])
	assert.Equal(t, map[string]any{"namespace": "ns", "key": "k"}, vars["memory_write"])
}

func TestSetPointerGoesThroughGovernance(t *testing.T) {
	f := newFixture(t)
	ref := domain.ArtifactRef{Kind: domain.KindModelParams, ArtifactID: "m1"}
	s := mustParse(t, `{
		"script_id": "promote",
		"language": "kernelscript.v1",
		"steps": [
			{"type": "set_pointer", "pointer_key": "core/model", "artifact_ref": "${inputs.ref}"},
			{"type": "set_pointer", "pointer_key": "core/model/approved", "artifact_ref": {"kind": "model_params", "artifact_id": "m1"}}
		]
	}`)
	_, err := f.engine.Exec(context.Background(), ec, agentDesc, s, map[string]any{"ref": ref.Map()})
	require.Error(t, err)
	var pe *domain.PermissionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, governance.Gate, pe.Gate)

	p, err := f.ptrs.GetActive(context.Background(), "t1", "dc1", "core/model")
	require.NoError(t, err)
	assert.Equal(t, ref, p.Ref)
	_, err = f.ptrs.GetActive(context.Background(), "t1", "dc1", "core/model/approved")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Len(t, f.events(t, domain.EventTypePointerSet), 1)

	governor := ec.WithActor(domain.Actor{Type: domain.ActorTypeHuman, ID: "bob", Roles: []string{domain.RoleGovernor}})
	out, err := f.engine.Exec(context.Background(), governor, agentDesc, s, map[string]any{"ref": ref.Map()})
	require.NoError(t, err)
	vars := out["vars"].(map[string]any)
	assert.Equal(t, "core/model/approved", vars["pointer_set"].(map[string]any)["pointer_key"])
}

func TestStoreArtifactConflict(t *testing.T) {
	f := newFixture(t)
	s := mustParse(t, `{
		"script_id": "fixed-id",
		"language": "kernelscript.v1",
		"steps": [{"type": "store_artifact", "kind": "run_summary", "artifact_id": "fixed", "payload": {"n": "${inputs.n}"}}]
	}`)
	_, err := f.engine.Exec(context.Background(), ec, agentDesc, s, map[string]any{"n": 1})
	require.NoError(t, err)
	_, err = f.engine.Exec(context.Background(), ec, agentDesc, s, map[string]any{"n": 1})
	require.NoError(t, err)
	_, err = f.engine.Exec(context.Background(), ec, agentDesc, s, map[string]any{"n": 2})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		doc  any
	}{
		{"not an object", []any{}},
		{"missing keys", map[string]any{"script_id": "x"}},
		{"wrong language", map[string]any{"script_id": "x", "language": "python", "steps": []any{map[string]any{"type": "algorithm"}}}},
		{"empty steps", map[string]any{"script_id": "x", "language": Language, "steps": []any{}}},
		{"step without type", map[string]any{"script_id": "x", "language": Language, "steps": []any{map[string]any{"save_as": "y"}}}},
		{"schema type mismatch", map[string]any{"script_id": 7, "language": Language, "steps": []any{map[string]any{"type": "algorithm"}}}},
		{"negative ttl", map[string]any{"script_id": "x", "language": Language, "steps": []any{map[string]any{"type": "memory_write", "ttl": -1}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.doc)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestResolveNested(t *testing.T) {
	st := map[string]any{
		"inputs": map[string]any{"a": map[string]any{"b": 5}},
		"vars":   map[string]any{"x": "y"},
	}
	got, err := resolveAll(map[string]any{
		"list":    []any{"${inputs.a.b}", "plain"},
		"nested":  map[string]any{"v": "${ vars.x }"},
		"literal": "prefix ${vars.x}",
	}, st)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"list":    []any{5, "plain"},
		"nested":  map[string]any{"v": "y"},
		"literal": "prefix ${vars.x}",
	}, got)

	_, err = resolveValue("${inputs.a.b.c}", st)
	assert.ErrorIs(t, err, domain.ErrReference)
}

func TestScriptedAgentLoadsFromStore(t *testing.T) {
	f := newFixture(t)
	ref := domain.ArtifactRef{Kind: domain.KindAgentScript, ArtifactID: "cleaner"}
	env := &domain.ArtifactEnvelope{
		Header: domain.ArtifactHeader{TenantID: "t1", DecisionContextID: "dc1", Inputs: []domain.ArtifactRef{}, Tags: map[string]string{}},
		Payload: map[string]any{
			"script_id": "cleaner",
			"language":  Language,
			"steps": []any{
				map[string]any{"type": "algorithm", "algorithm_id": algorithms.BasicCleanerID, "inputs": map[string]any{"rows": "${inputs.rows}"}, "output_key": "clean"},
			},
		},
	}
	require.NoError(t, artifact.Seal(env))
	require.NoError(t, f.store.Put(context.Background(), ref, env))

	factory := NewFactory(domain.CapabilityDescriptor{TypeID: "agent.scripted"}, ref, f.engine)
	assert.Equal(t, domain.CapabilityKindAgent, factory.Describe().Kind)
	agent, err := factory.Create(nil)
	require.NoError(t, err)

	out, err := agent.Run(context.Background(), ec, map[string]any{"rows": []any{nil, "r"}})
	require.NoError(t, err)
	clean := out["outputs"].(map[string]any)["clean"].(map[string]any)
	assert.Equal(t, map[string]any{"dropped": 1, "kept": 1}, clean["stats"])

	missing := NewFactory(domain.CapabilityDescriptor{TypeID: "agent.ghost"}, domain.ArtifactRef{Kind: domain.KindAgentScript, ArtifactID: "ghost"}, f.engine)
	ghost, err := missing.Create(nil)
	require.NoError(t, err)
	_, err = ghost.Run(context.Background(), ec, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStoreArtifactAcceptsAnyPayload(t *testing.T) {
	f := newFixture(t)
	s := mustParse(t, `{
		"script_id": "store-any",
		"language": "kernelscript.v1",
		"steps": [
			{"type": "store_artifact", "artifact_id": "rows", "payload": "${inputs.rows}", "save_as": "rows_ref"},
			{"type": "store_artifact", "artifact_id": "count", "payload": "${inputs.count}", "save_as": "count_ref"},
			{"type": "store_artifact", "artifact_id": "empty", "save_as": "empty_ref"}
		]
	}`)
	inputs := map[string]any{"rows": []any{"a", "b"}, "count": 2}

	_, err := f.engine.Exec(context.Background(), ec, agentDesc, s, inputs)
	require.NoError(t, err)

	cases := map[string]any{
		"rows":  []any{"a", "b"},
		"count": float64(2),
		"empty": map[string]any{},
	}
	for id, want := range cases {
		env, err := f.store.Get(context.Background(), domain.ArtifactRef{Kind: domain.KindRunSummary, ArtifactID: id})
		require.NoError(t, err, id)
		assert.Equal(t, want, env.Payload, id)
		require.NoError(t, artifact.Verify(env))
	}
	assert.Len(t, f.events(t, domain.EventTypeArtifactStored), 3)
}

func TestScriptedAgentReadsConfig(t *testing.T) {
	f := newFixture(t)
	ref := domain.ArtifactRef{Kind: domain.KindAgentScript, ArtifactID: "configured"}
	env := &domain.ArtifactEnvelope{
		Header: domain.ArtifactHeader{TenantID: "t1", DecisionContextID: "dc1", Inputs: []domain.ArtifactRef{}, Tags: map[string]string{}},
		Payload: map[string]any{
			"script_id": "configured",
			"language":  Language,
			"steps": []any{
				map[string]any{"type": "memory_write", "namespace": "cfg", "key": "label", "value": "${config.label}"},
				map[string]any{"type": "memory_read", "namespace": "cfg", "key": "label", "save_as": "label"},
			},
		},
	}
	require.NoError(t, artifact.Seal(env))
	require.NoError(t, f.store.Put(context.Background(), ref, env))

	cfg := map[string]any{"label": "nightly"}
	agent, err := NewFactory(domain.CapabilityDescriptor{TypeID: "agent.configured"}, ref, f.engine).Create(cfg)
	require.NoError(t, err)
	cfg["label"] = "changed"

	out, err := agent.Run(context.Background(), ec, nil)
	require.NoError(t, err)
	assert.Equal(t, "nightly", out["vars"].(map[string]any)["label"])

	bare, err := NewFactory(domain.CapabilityDescriptor{TypeID: "agent.bare"}, ref, f.engine).Create(nil)
	require.NoError(t, err)
	_, err = bare.Run(context.Background(), ec, nil)
	assert.ErrorIs(t, err, domain.ErrReference)
}

func TestParseRejectsUnencodableDocument(t *testing.T) {
	_, err := Parse(map[string]any{"script_id": "x", "language": Language, "steps": []any{map[string]any{"type": "algorithm", "fn": func() {}}}})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
