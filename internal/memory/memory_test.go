package memory

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/kernel/internal/domain"
)

func memoryContract(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.Read(ctx, "agent.a", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.Write(ctx, "agent.a", "k", map[string]any{"n": 1.0}, 0))
	v, err := s.Read(ctx, "agent.a", "k")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": 1.0}, v)

	_, err = s.Read(ctx, "agent.b", "k")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.AppendLog(ctx, "agent.a", map[string]any{"msg": "one"}))
	require.NoError(t, s.AppendLog(ctx, "agent.a", map[string]any{"msg": "two"}))
	logs, err := s.Logs(ctx, "agent.a", 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "two", logs[0]["msg"])

	assert.ErrorIs(t, s.Write(ctx, "", "k", 1, 0), domain.ErrValidation)
}

func TestInMemoryContract(t *testing.T) {
	memoryContract(t, NewInMemory())
}

func TestInMemoryTTLExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewInMemory()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Write(ctx, "ns", "k", "v", time.Minute))
	v, err := m.Read(ctx, "ns", "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	now = now.Add(time.Minute)
	_, err = m.Read(ctx, "ns", "k")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRedisContract(t *testing.T) {
	addr := os.Getenv("KERNEL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KERNEL_TEST_REDIS_ADDR not set")
	}
	r, err := NewRedis(context.Background(), RedisConfig{Addr: addr, Prefix: "kernel-test:" + domain.NewID("") + ":"})
	require.NoError(t, err)
	defer r.Close()
	memoryContract(t, r)
}
