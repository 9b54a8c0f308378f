package artifact

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/kernel/internal/domain"
)

func newEnvelope(t *testing.T, payload any) *domain.ArtifactEnvelope {
	t.Helper()
	env := &domain.ArtifactEnvelope{
		Header: domain.ArtifactHeader{
			TenantID:          "t1",
			DecisionContextID: "d1",
			SessionID:         "s1",
			CreatedAt:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			Producer:          domain.ProducerRef{Name: "demo.agent", Version: "1.0.0"},
			Inputs:            []domain.ArtifactRef{},
			Tags:              map[string]string{"security_flag": "internal_trusted"},
		},
		Payload: payload,
	}
	require.NoError(t, Seal(env))
	return env
}

// storeContract runs the behaviour every backend must share.
func storeContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("put then get", func(t *testing.T) {
		s := newStore(t)
		ref := domain.ArtifactRef{Kind: domain.KindRunSummary, ArtifactID: "a1"}
		env := newEnvelope(t, map[string]any{"rows": []any{1.0, 2.0}})
		require.NoError(t, s.Put(ctx, ref, env))

		got, err := s.Get(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, env.Integrity.Checksum, got.Integrity.Checksum)
		assert.Equal(t, map[string]any{"rows": []any{1.0, 2.0}}, got.Payload)
		assert.NoError(t, Verify(got))

		ok, err := s.Exists(ctx, ref)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("identical rewrite is a no-op", func(t *testing.T) {
		s := newStore(t)
		ref := domain.ArtifactRef{Kind: domain.KindRunSummary, ArtifactID: "a1"}
		require.NoError(t, s.Put(ctx, ref, newEnvelope(t, map[string]any{"v": 1})))
		require.NoError(t, s.Put(ctx, ref, newEnvelope(t, map[string]any{"v": 1})))

		refs, err := s.List(ctx, domain.KindRunSummary, 0)
		require.NoError(t, err)
		assert.Len(t, refs, 1)
	})

	t.Run("different rewrite conflicts and keeps the original", func(t *testing.T) {
		s := newStore(t)
		ref := domain.ArtifactRef{Kind: domain.KindRunSummary, ArtifactID: "a1"}
		require.NoError(t, s.Put(ctx, ref, newEnvelope(t, map[string]any{"v": 1})))

		err := s.Put(ctx, ref, newEnvelope(t, map[string]any{"v": 2}))
		assert.ErrorIs(t, err, domain.ErrConflict)

		got, err := s.Get(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"v": 1.0}, got.Payload)
	})

	t.Run("missing ref", func(t *testing.T) {
		s := newStore(t)
		ref := domain.ArtifactRef{Kind: domain.KindRunSummary, ArtifactID: "nope"}
		_, err := s.Get(ctx, ref)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		ok, err := s.Exists(ctx, ref)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("list is newest first and limited", func(t *testing.T) {
		s := newStore(t)
		for _, id := range []string{"first", "second", "third"} {
			require.NoError(t, s.Put(ctx, domain.ArtifactRef{Kind: domain.KindDDTState, ArtifactID: id}, newEnvelope(t, id)))
			time.Sleep(15 * time.Millisecond)
		}
		require.NoError(t, s.Put(ctx, domain.ArtifactRef{Kind: domain.KindRunSummary, ArtifactID: "other"}, newEnvelope(t, "x")))

		refs, err := s.List(ctx, domain.KindDDTState, 2)
		require.NoError(t, err)
		require.Len(t, refs, 2)
		assert.Equal(t, "third", refs[0].ArtifactID)
		assert.Equal(t, "second", refs[1].ArtifactID)
	})

	t.Run("invalid ref rejected", func(t *testing.T) {
		s := newStore(t)
		err := s.Put(ctx, domain.ArtifactRef{Kind: "run_summary", ArtifactID: "../x"}, newEnvelope(t, 1))
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestFileStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store {
		s, err := NewFileStore(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestVerifyDetectsTampering(t *testing.T) {
	env := newEnvelope(t, map[string]any{"v": 1})
	env.Payload = map[string]any{"v": 2}
	assert.ErrorIs(t, Verify(env), domain.ErrValidation)
}

func TestNewSelectsBackend(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, Config{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = New(ctx, Config{Backend: BackendFS, VarDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = New(ctx, Config{Backend: "tape"})
	assert.Error(t, err)
}
