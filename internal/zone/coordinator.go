package zone

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/kernel/internal/domain"
	"github.com/xiaot623/gogo/kernel/internal/metrics"
)

// Coordinator executes loaded zones with RUN_STARTED / RUN_ENDED /
// RUN_FAILED audit events and matching notifications.
type Coordinator struct {
	zones map[string]Kernel
	base  Env
}

// NewCoordinator routes runs to zones. base supplies the kernel services
// every run sees; its Exec is replaced per run.
func NewCoordinator(zones map[string]Kernel, base Env) *Coordinator {
	if base.Logger == nil {
		base.Logger = zap.NewNop()
	}
	return &Coordinator{zones: zones, base: base}
}

// Zone returns the loaded kernel for zoneID.
func (c *Coordinator) Zone(zoneID string) (Kernel, bool) {
	k, ok := c.zones[zoneID]
	return k, ok
}

// ZoneIDs lists loaded zones in order.
func (c *Coordinator) ZoneIDs() []string {
	ids := make([]string, 0, len(c.zones))
	for id := range c.zones {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RunZone executes zoneID. A non-success status is audited as RUN_FAILED
// and returned without error; an execution error is audited and returned
// unchanged.
func (c *Coordinator) RunZone(ctx context.Context, ec domain.ExecContext, zoneID string, req domain.ZoneRequest) (*domain.ZoneResult, error) {
	k, ok := c.zones[zoneID]
	if !ok {
		return nil, fmt.Errorf("%w: zone kernel %s not loaded", domain.ErrNotFound, zoneID)
	}
	if ec.RunID == "" {
		ec.RunID = domain.NewID("run")
	}
	ec.ZoneID = zoneID
	if req.RunMode == "" {
		req.RunMode = domain.ZoneRunModeFull
	}

	ctx, span := metrics.Tracer().Start(ctx, "zone.run", trace.WithAttributes(
		metrics.AttrTenantID.String(ec.TenantID),
		metrics.AttrSessionID.String(ec.SessionID),
		metrics.AttrRunID.String(ec.RunID),
		metrics.AttrZoneID.String(zoneID),
	))

	started := ec.Event(domain.EventTypeRunStarted, domain.SeverityInfo, "Run started for "+zoneID)
	started.Refs["zone_id"] = zoneID
	started.Metadata["run_mode"] = string(req.RunMode)
	started.Metadata["kernel_version"] = k.KernelVersion()
	if err := c.append(ctx, started); err != nil {
		metrics.EndSpan(span, "audit_error", err)
		return nil, err
	}
	c.notify(domain.EventTypeRunStarted, map[string]any{
		"zone_id":    zoneID,
		"session_id": ec.SessionID,
		"epoch_id":   ec.EpochID,
		"run_id":     ec.RunID,
	})

	result, err := k.Execute(ctx, c.base.withExec(ec), req)
	if err != nil {
		failed := ec.Event(domain.EventTypeRunFailed, domain.SeverityCritical, fmt.Sprintf("Run failed for %s: %v", zoneID, err))
		failed.Refs["zone_id"] = zoneID
		failed.Metadata["error"] = err.Error()
		if aerr := c.append(ctx, failed); aerr != nil {
			metrics.EndSpan(span, "audit_error", aerr)
			return nil, errors.Join(err, aerr)
		}
		c.notify(domain.EventTypeRunFailed, map[string]any{"zone_id": zoneID, "error": err.Error(), "run_id": ec.RunID})
		metrics.RecordZoneRun(zoneID, "error")
		metrics.EndSpan(span, "error", err)
		return nil, err
	}
	if result == nil {
		result = &domain.ZoneResult{Status: domain.ZoneStatusFailed, Errors: []string{"zone returned no result"}}
	}

	eventType, severity := domain.EventTypeRunEnded, domain.SeverityInfo
	if result.Status != domain.ZoneStatusSuccess {
		eventType, severity = domain.EventTypeRunFailed, domain.SeverityError
	}
	ended := ec.Event(eventType, severity, fmt.Sprintf("Run ended for %s with status=%s", zoneID, result.Status))
	ended.Refs["zone_id"] = zoneID
	ended.Metadata["status"] = string(result.Status)
	produced := make([]map[string]any, 0, len(result.ProducedArtifacts))
	for _, r := range result.ProducedArtifacts {
		produced = append(produced, r.Map())
	}
	ended.Metadata["produced_artifacts"] = produced
	if len(result.Errors) > 0 {
		ended.Metadata["errors"] = result.Errors
	}
	if err := c.append(ctx, ended); err != nil {
		metrics.EndSpan(span, "audit_error", err)
		return nil, err
	}
	c.notify(eventType, map[string]any{"zone_id": zoneID, "status": string(result.Status), "run_id": ec.RunID})
	metrics.RecordZoneRun(zoneID, string(result.Status))
	metrics.EndSpan(span, string(result.Status), nil)
	return result, nil
}

func (c *Coordinator) append(ctx context.Context, ev *domain.TrackEvent) error {
	err := c.base.Log.Append(ctx, ev)
	metrics.RecordAuditEvent(string(ev.EventType), err == nil)
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", ev.EventType, err)
	}
	return nil
}

func (c *Coordinator) notify(eventType domain.EventType, payload map[string]any) {
	if c.base.Observe != nil {
		c.base.Observe.Emit(string(eventType), payload)
	}
}
