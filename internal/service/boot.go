package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/kernel/internal/artifact"
	"github.com/xiaot623/gogo/kernel/internal/config"
	"github.com/xiaot623/gogo/kernel/internal/governance"
	"github.com/xiaot623/gogo/kernel/internal/manifest"
	"github.com/xiaot623/gogo/kernel/internal/memory"
	"github.com/xiaot623/gogo/kernel/internal/observe"
	"github.com/xiaot623/gogo/kernel/internal/registry"
	"github.com/xiaot623/gogo/kernel/internal/repository"
	"github.com/xiaot623/gogo/kernel/internal/zone"
	"github.com/xiaot623/gogo/kernel/policy"

	// Builtin zone plugins register their entrypoints on import.
	_ "github.com/xiaot623/gogo/kernel/internal/zones/zone1"
)

// Boot builds a Service from cfg: durable stores, registries, gates, the
// observe stream, then the zones listed in the manifest.
func Boot(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var closers []io.Closer
	fail := func(err error) (*Service, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
		return nil, err
	}

	if err := os.MkdirAll(filepath.Join(cfg.VarDir, "db"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create var dir: %w", err)
	}

	repo, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	closers = append(closers, repo)
	logger.Info("database initialized", zap.String("dsn", cfg.DatabaseURL))

	artifacts, err := artifact.New(ctx, artifact.Config{
		Backend: artifact.Backend(cfg.ArtifactBackend),
		VarDir:  cfg.VarDir,
		S3: artifact.S3Config{
			Bucket:   cfg.ArtifactBucket,
			Region:   cfg.ArtifactRegion,
			Endpoint: cfg.ArtifactEndpoint,
			Prefix:   cfg.ArtifactPrefix,
		},
		GCS: artifact.GCSConfig{Bucket: cfg.ArtifactBucket, Prefix: cfg.ArtifactPrefix},
	})
	if err != nil {
		return fail(fmt.Errorf("failed to initialize artifact store: %w", err))
	}
	logger.Info("artifact store initialized", zap.String("backend", cfg.ArtifactBackend))

	var mem memory.Store
	switch cfg.MemoryBackend {
	case "memory":
		mem = memory.NewInMemory()
	case "redis":
		r, err := memory.NewRedis(ctx, memory.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return fail(fmt.Errorf("failed to connect memory backend: %w", err))
		}
		closers = append(closers, r)
		mem = r
	default:
		mem = repo
	}

	m := manifest.Default()
	if cfg.ManifestPath != "" {
		if m, err = manifest.Load(cfg.ManifestPath); err != nil {
			return fail(err)
		}
	}

	policyModules, err := loadModules(cfg.PolicyFiles, m.PoliciesFor(manifest.GatePolicy))
	if err != nil {
		return fail(err)
	}
	guard, err := policy.NewGuard(ctx, logger, policyModules...)
	if err != nil {
		return fail(fmt.Errorf("failed to prepare policy: %w", err))
	}

	govOpts := []governance.Option{governance.WithLogger(logger)}
	govModules, err := loadModules(cfg.GovernanceFiles, m.PoliciesFor(manifest.GateGovernance))
	if err != nil {
		return fail(err)
	}
	if len(govModules) > 0 {
		rules, err := governance.NewRules(ctx, govModules...)
		if err != nil {
			return fail(fmt.Errorf("failed to prepare governance rules: %w", err))
		}
		govOpts = append(govOpts, governance.WithRules(rules))
	}
	gov := governance.NewGateway(repo, govOpts...)

	var regOpts []registry.Option
	if cfg.VersionOrder == string(registry.OrderSemver) {
		regOpts = append(regOpts, registry.WithSemverOrdering())
	}

	stream := observe.NewStream(logger)
	ring := observe.NewRing(cfg.ObserveBuffer)
	stream.Subscribe(ring.Handler())

	loader := zone.NewLoader(m.Zones, zone.DefaultFactories, logger)
	zones, err := loader.BootstrapAll()
	if err != nil {
		return fail(fmt.Errorf("failed to load zones: %w", err))
	}

	svc, err := New(Deps{
		Living:     repo,
		Artifacts:  artifacts,
		Pointers:   repo,
		Log:        repo,
		Memory:     mem,
		Agents:     registry.NewAgents(regOpts...),
		Algorithms: registry.NewAlgorithms(regOpts...),
		Guard:      guard,
		Governance: gov,
		Observe:    stream,
		Ring:       ring,
		Zones:      zones,
		Manifest:   m,
		Config:     cfg,
		Logger:     logger,
		Closers:    closers,
	})
	if err != nil {
		return fail(err)
	}
	logger.Info("kernel booted",
		zap.Strings("zones", svc.coordinator.ZoneIDs()),
		zap.Int("policy_modules", len(policyModules)),
		zap.Int("governance_modules", len(govModules)))
	return svc, nil
}

// loadModules reads rego files from disk followed by inline manifest
// policies.
func loadModules(paths []string, inline []manifest.PolicyConfig) ([]policy.Module, error) {
	modules := make([]policy.Module, 0, len(paths)+len(inline))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy %s: %w", p, err)
		}
		modules = append(modules, policy.Module{Name: filepath.Base(p), Source: string(data)})
	}
	for _, pc := range inline {
		name := pc.Name
		if !strings.HasSuffix(name, ".rego") {
			name += ".rego"
		}
		modules = append(modules, policy.Module{Name: name, Source: pc.Rego})
	}
	return modules, nil
}
