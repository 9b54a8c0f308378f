package zone

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/xiaot623/gogo/kernel/internal/domain"
	"github.com/xiaot623/gogo/kernel/internal/observe"
	"github.com/xiaot623/gogo/kernel/internal/registry"
	"github.com/xiaot623/gogo/kernel/internal/tracker"
)

type fakeKernel struct {
	id      string
	version string
	result  *domain.ZoneResult
	err     error
	seen    *Env
}

func (k *fakeKernel) ZoneID() string        { return k.id }
func (k *fakeKernel) KernelVersion() string { return k.version }
func (k *fakeKernel) Register(*registry.Agents, *registry.Algorithms) error {
	return nil
}
func (k *fakeKernel) CapabilityCatalog() map[string]string { return map[string]string{"noop": "does nothing"} }
func (k *fakeKernel) Execute(ctx context.Context, env *Env, req domain.ZoneRequest) (*domain.ZoneResult, error) {
	k.seen = env
	return k.result, k.err
}

func enabled(b bool) *bool { return &b }

func TestLoaderLoadsOnceAndCaches(t *testing.T) {
	factories := NewFactories()
	var calls int32
	require.NoError(t, factories.Register("builtin:z", func(cfg map[string]string) (Kernel, error) {
		atomic.AddInt32(&calls, 1)
		return &fakeKernel{id: "z", version: cfg["version"]}, nil
	}))
	l := NewLoader([]domain.ZoneKernelRef{{ZoneID: "z", Entrypoint: "builtin:z", Version: "0.3.0"}}, factories, nil)

	var wg sync.WaitGroup
	kernels := make([]Kernel, 8)
	for i := range kernels {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k, err := l.Load("z")
			assert.NoError(t, err)
			kernels[i] = k
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, k := range kernels {
		assert.Same(t, kernels[0], k)
	}
	assert.Equal(t, "0.3.0", kernels[0].KernelVersion())
}

func TestLoaderZoneMismatch(t *testing.T) {
	factories := NewFactories()
	require.NoError(t, factories.Register("builtin:liar", func(map[string]string) (Kernel, error) {
		return &fakeKernel{id: "other"}, nil
	}))
	l := NewLoader([]domain.ZoneKernelRef{{ZoneID: "z", Entrypoint: "builtin:liar"}}, factories, nil)
	_, err := l.Load("z")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "mismatch")
}

func TestLoaderDiscoverAndBootstrap(t *testing.T) {
	factories := NewFactories()
	for _, id := range []string{"a", "b", "c"} {
		id := id
		require.NoError(t, factories.Register("builtin:"+id, func(map[string]string) (Kernel, error) {
			return &fakeKernel{id: id}, nil
		}))
	}
	refs := []domain.ZoneKernelRef{
		{ZoneID: "a", Entrypoint: "builtin:a"},
		{ZoneID: "b", Entrypoint: "builtin:b", Enabled: enabled(false)},
		{ZoneID: "c", Entrypoint: "builtin:c", Enabled: enabled(true)},
	}
	l := NewLoader(refs, factories, nil)
	disc := l.Discover()
	require.Len(t, disc, 2)
	assert.Equal(t, "a", disc[0].ZoneID)
	assert.Equal(t, "c", disc[1].ZoneID)

	zones, err := l.BootstrapAll()
	require.NoError(t, err)
	assert.Len(t, zones, 2)
	assert.Contains(t, zones, "a")
	assert.Contains(t, zones, "c")

	_, err = l.Load("b")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLoaderUnknownEntrypoint(t *testing.T) {
	l := NewLoader([]domain.ZoneKernelRef{{ZoneID: "z", Entrypoint: "builtin:missing"}}, NewFactories(), nil)
	_, err := l.BootstrapAll()
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFactoriesRejectDuplicates(t *testing.T) {
	f := NewFactories()
	factory := func(map[string]string) (Kernel, error) { return &fakeKernel{id: "z"}, nil }
	require.NoError(t, f.Register("builtin:z", factory))
	assert.ErrorIs(t, f.Register("builtin:z", factory), domain.ErrDuplicateRegistration)
	assert.ErrorIs(t, f.Register("", factory), domain.ErrValidation)
	assert.Equal(t, []string{"builtin:z"}, f.Entrypoints())
}

type runFixture struct {
	log    *tracker.MemoryLog
	stream *observe.Stream
	seen   []string
	mu     sync.Mutex
}

func newRunFixture() *runFixture {
	f := &runFixture{log: tracker.NewMemoryLog(), stream: observe.NewStream(nil)}
	f.stream.Subscribe(func(eventType string, payload map[string]any) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.seen = append(f.seen, eventType)
		return nil
	})
	return f
}

func (f *runFixture) types(t *testing.T) []domain.EventType {
	t.Helper()
	evs, err := f.log.Query(context.Background(), "s1", 0, "")
	require.NoError(t, err)
	out := make([]domain.EventType, len(evs))
	for i, ev := range evs {
		out[len(evs)-1-i] = ev.EventType
	}
	return out
}

var runEC = domain.ExecContext{TenantID: "t1", DecisionContextID: "dc1", SessionID: "s1", EpochID: "e1", Actor: domain.SystemActor}

func TestRunZoneSuccess(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))

	f := newRunFixture()
	k := &fakeKernel{id: "z", result: &domain.ZoneResult{
		Status:            domain.ZoneStatusSuccess,
		ProducedArtifacts: []domain.ArtifactRef{{Kind: "run_summary", ArtifactID: "a1"}},
	}}
	c := NewCoordinator(map[string]Kernel{"z": k}, Env{Log: f.log, Observe: f.stream})

	res, err := c.RunZone(context.Background(), runEC, "z", domain.ZoneRequest{SessionID: "s1", EpochID: "e1"})
	require.NoError(t, err)
	assert.Equal(t, domain.ZoneStatusSuccess, res.Status)
	assert.Equal(t, []domain.EventType{domain.EventTypeRunStarted, domain.EventTypeRunEnded}, f.types(t))
	assert.Equal(t, []string{"RUN_STARTED", "RUN_ENDED"}, f.seen)

	require.NotNil(t, k.seen)
	assert.Equal(t, "z", k.seen.Exec.ZoneID)
	assert.NotEmpty(t, k.seen.Exec.RunID)

	spans := sr.Ended()
	require.NotEmpty(t, spans)
	assert.Equal(t, "zone.run", spans[len(spans)-1].Name())
}

func TestRunZoneNonSuccessStatus(t *testing.T) {
	f := newRunFixture()
	k := &fakeKernel{id: "z", result: &domain.ZoneResult{Status: domain.ZoneStatusBlocked, Errors: []string{"nope"}}}
	c := NewCoordinator(map[string]Kernel{"z": k}, Env{Log: f.log, Observe: f.stream})

	res, err := c.RunZone(context.Background(), runEC, "z", domain.ZoneRequest{})
	require.NoError(t, err)
	assert.Equal(t, domain.ZoneStatusBlocked, res.Status)

	evs, err := f.log.Query(context.Background(), "s1", 1, "")
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, domain.EventTypeRunFailed, evs[0].EventType)
	assert.Equal(t, domain.SeverityError, evs[0].Severity)
	assert.Equal(t, []string{"RUN_STARTED", "RUN_FAILED"}, f.seen)
}

func TestRunZoneErrorIsReturnedUnchanged(t *testing.T) {
	f := newRunFixture()
	boom := errors.New("boom")
	k := &fakeKernel{id: "z", err: boom}
	c := NewCoordinator(map[string]Kernel{"z": k}, Env{Log: f.log, Observe: f.stream})

	_, err := c.RunZone(context.Background(), runEC, "z", domain.ZoneRequest{})
	assert.Same(t, boom, err)

	evs, qerr := f.log.Query(context.Background(), "s1", 1, domain.EventTypeRunFailed)
	require.NoError(t, qerr)
	require.Len(t, evs, 1)
	assert.Equal(t, domain.SeverityCritical, evs[0].Severity)
	assert.Contains(t, evs[0].Message, "boom")
}

func TestRunZoneUnknown(t *testing.T) {
	f := newRunFixture()
	c := NewCoordinator(map[string]Kernel{}, Env{Log: f.log})
	_, err := c.RunZone(context.Background(), runEC, "missing", domain.ZoneRequest{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, f.types(t))
}

type brokenLog struct{ tracker.MemoryLog }

func (*brokenLog) Append(context.Context, *domain.TrackEvent) error { return errors.New("audit down") }

func TestRunZoneAuditFailureStopsRun(t *testing.T) {
	k := &fakeKernel{id: "z", result: &domain.ZoneResult{Status: domain.ZoneStatusSuccess}}
	c := NewCoordinator(map[string]Kernel{"z": k}, Env{Log: &brokenLog{}})
	_, err := c.RunZone(context.Background(), runEC, "z", domain.ZoneRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit down")
	assert.Nil(t, k.seen)
}

type selectiveLog struct {
	*tracker.MemoryLog
	fail domain.EventType
}

func (l selectiveLog) Append(ctx context.Context, ev *domain.TrackEvent) error {
	if ev.EventType == l.fail {
		return errors.New("audit down")
	}
	return l.MemoryLog.Append(ctx, ev)
}

func TestRunZoneErrorSurvivesAuditFailure(t *testing.T) {
	boom := errors.New("boom")
	k := &fakeKernel{id: "z", err: boom}
	c := NewCoordinator(map[string]Kernel{"z": k}, Env{Log: selectiveLog{MemoryLog: tracker.NewMemoryLog(), fail: domain.EventTypeRunFailed}})

	_, err := c.RunZone(context.Background(), runEC, "z", domain.ZoneRequest{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected zone error to be preserved, got %v", err)
	}
	assert.Contains(t, err.Error(), "audit down")
}
