package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/kernel/internal/artifact"
	"github.com/xiaot623/gogo/kernel/internal/domain"
	"github.com/xiaot623/gogo/kernel/internal/script"
)

// templateProducer is the producer recorded on artifacts written through
// the template service.
var templateProducer = domain.ProducerRef{Name: "kernel.templates", Version: "1.0.0"}

// TemplateRequest stores a template or script artifact and optionally
// points a key at it.
type TemplateRequest struct {
	Kind       string            `json:"kind"`
	ArtifactID string            `json:"artifact_id,omitempty"`
	Payload    any               `json:"payload"`
	Tags       map[string]string `json:"tags,omitempty"`
	PointerKey string            `json:"pointer_key,omitempty"`
}

// PutTemplate seals and stores the payload of req. Scripts are validated
// first. A pointer update goes through the governance pointer gate.
func (s *Service) PutTemplate(ctx context.Context, ec domain.ExecContext, req TemplateRequest) (domain.ArtifactRef, error) {
	if req.Kind == "" {
		return domain.ArtifactRef{}, fmt.Errorf("%w: kind is required", domain.ErrValidation)
	}
	if req.Payload == nil {
		return domain.ArtifactRef{}, fmt.Errorf("%w: payload is required", domain.ErrValidation)
	}
	if req.Kind == domain.KindAgentScript {
		if _, err := script.Parse(req.Payload); err != nil {
			return domain.ArtifactRef{}, err
		}
	}
	id := req.ArtifactID
	if id == "" {
		id = domain.NewID("a")
	}
	ref := domain.ArtifactRef{Kind: req.Kind, ArtifactID: id}
	if err := ref.Validate(); err != nil {
		return domain.ArtifactRef{}, err
	}

	tags := map[string]string{}
	for k, v := range req.Tags {
		tags[k] = v
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
			CreatedAt:         time.Now().UTC(),
			Producer:          templateProducer,
			Inputs:            []domain.ArtifactRef{},
			LogicalVersion:    &seq,
			Tags:              tags,
		},
		Payload: req.Payload,
	}
	if err := artifact.Seal(env); err != nil {
		return domain.ArtifactRef{}, err
	}
	if err := s.artifacts.Put(ctx, ref, env); err != nil {
		return domain.ArtifactRef{}, err
	}

	ev := ec.Event(domain.EventTypeArtifactStored, domain.SeverityInfo, "stored artifact "+ref.Key())
	ev.Refs["artifact_ref"] = ref.Map()
	if err := s.appendEvent(ctx, ev); err != nil {
		return domain.ArtifactRef{}, err
	}
	s.observe.Emit(string(domain.EventTypeArtifactStored), map[string]any{"artifact_ref": ref.Map(), "session_id": ec.SessionID})

	if req.PointerKey != "" {
		if err := s.SetPointer(ctx, ec, req.PointerKey, ref); err != nil {
			return ref, err
		}
	}
	return ref, nil
}

// SetPointer moves key to ref after the governance pointer gate.
func (s *Service) SetPointer(ctx context.Context, ec domain.ExecContext, key string, ref domain.ArtifactRef) error {
	if key == "" {
		return fmt.Errorf("%w: pointer_key is required", domain.ErrValidation)
	}
	if err := ref.Validate(); err != nil {
		return err
	}
	exists, err := s.artifacts.Exists(ctx, ref)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: artifact %s", domain.ErrNotFound, ref.Key())
	}
	if err := s.gov.BeforePointerSet(ctx, ec, key, ref); err != nil {
		return err
	}
	if err := s.pointers.SetActive(ctx, ec.TenantID, ec.DecisionContextID, key, ref, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to set pointer: %w", err)
	}
	ev := ec.Event(domain.EventTypePointerSet, domain.SeverityInfo, fmt.Sprintf("pointer set %s -> %s", key, ref.Key()))
	ev.Refs["pointer_key"] = key
	ev.Refs["artifact_ref"] = ref.Map()
	if err := s.appendEvent(ctx, ev); err != nil {
		return err
	}
	s.observe.Emit(string(domain.EventTypePointerSet), map[string]any{"pointer_key": key, "artifact_ref": ref.Map()})
	return nil
}

// RegisterScriptedAgent registers desc as an agent running the script
// stored at ref. The script is validated now and reloaded on every run.
func (s *Service) RegisterScriptedAgent(ctx context.Context, desc domain.CapabilityDescriptor, ref domain.ArtifactRef) error {
	env, err := s.artifacts.Get(ctx, ref)
	if err != nil {
		return err
	}
	if _, err := script.Parse(env.Payload); err != nil {
		return err
	}
	f := script.NewFactory(desc, ref, s.scripts)
	if err := s.agents.Add(f); err != nil {
		return err
	}
	s.logger.Info("scripted agent registered",
		zap.String("type_id", f.Describe().TypeID),
		zap.String("version", f.Describe().Version),
		zap.String("script", ref.Key()))
	return nil
}
