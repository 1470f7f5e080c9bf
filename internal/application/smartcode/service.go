package smartcode

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/erp/platform/internal/domain/guardrail"
	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/erp/platform/internal/domain/smartcode"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TemplateEntitySmartCode tags the entities that persist registered templates
const TemplateEntitySmartCode = "SYS.SMARTCODE.TEMPLATE.DEFINITION.v1"

// Service exposes the smart code registry and persists registered templates
// as SMART_CODE_TEMPLATE entities of the system organization.
type Service struct {
	registry    *smartcode.Registry
	entities    schema.EntityRepository
	guard       *guardrail.Engine
	systemOrgID uuid.UUID
	clock       shared.Clock
	logger      *zap.Logger
}

// Option configures the service
type Option func(*Service)

// WithClock sets the time source
func WithClock(c shared.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a new smart code service
func NewService(registry *smartcode.Registry, entities schema.EntityRepository, guard *guardrail.Engine, systemOrgID uuid.UUID, opts ...Option) *Service {
	s := &Service{
		registry:    registry,
		entities:    entities,
		guard:       guard,
		systemOrgID: systemOrgID,
		clock:       shared.SystemClock{},
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate checks that code is well-formed and registered
func (s *Service) Validate(code string) (smartcode.Validated, error) {
	return s.registry.Validate(code)
}

// Classify returns the handler flags of a registered code
func (s *Service) Classify(code string) (smartcode.Classification, error) {
	return s.registry.Classify(code)
}

// Templates lists the registered templates ordered by prefix
func (s *Service) Templates() []smartcode.Template {
	return s.registry.Templates()
}

// RegisterTemplate persists a template and publishes a new registry snapshot.
// Re-registering a prefix replaces its template.
func (s *Service) RegisterTemplate(ctx context.Context, t smartcode.Template, actor shared.Actor) (smartcode.Template, error) {
	t = t.Normalize()
	if err := t.Validate(); err != nil {
		return t, err
	}
	metadata, err := templateMetadata(t)
	if err != nil {
		return t, err
	}
	name := t.Description
	if name == "" {
		name = t.Prefix
	}

	now := s.clock.Now()
	existing, err := s.entities.FindByCode(ctx, s.systemOrgID, schema.EntityTypeSmartCodeTemplate, t.Prefix)
	switch {
	case err == nil:
		if err := existing.Apply(schema.EntityUpdate{Name: &name, Metadata: metadata}, actor, now); err != nil {
			return t, err
		}
		if err := s.enforce(ctx, existing, actor); err != nil {
			return t, err
		}
		if err := s.entities.Update(ctx, existing); err != nil {
			return t, err
		}
	case errors.Is(err, shared.ErrNotFound):
		e, err := schema.NewEntity(s.systemOrgID, schema.EntityTypeSmartCodeTemplate, name, t.Prefix, TemplateEntitySmartCode, metadata, actor, now)
		if err != nil {
			return t, err
		}
		if err := s.enforce(ctx, e, actor); err != nil {
			return t, err
		}
		if err := s.entities.Create(ctx, e); err != nil {
			return t, err
		}
	default:
		return t, err
	}

	if err := s.registry.Register(t); err != nil {
		return t, err
	}
	s.logger.Info("Smart code template registered",
		zap.String("prefix", t.Prefix),
		zap.String("handler", string(t.Handler)),
		zap.String("actor_id", actor.ID.String()))
	return t, nil
}

func (s *Service) enforce(ctx context.Context, e *schema.Entity, actor shared.Actor) error {
	_, err := s.guard.Enforce(ctx, &guardrail.Request{
		OrganizationID: s.systemOrgID, Actor: actor, Table: guardrail.TableEntities, Entity: e,
	})
	return err
}

// LoadPersisted registers every template persisted in the system organization.
// Invalid rows are skipped and logged so that one bad row cannot stop startup.
func (s *Service) LoadPersisted(ctx context.Context) (int, error) {
	filter := schema.EntityFilter{
		Filter:     shared.Filter{Page: 1, PageSize: 1000, OrderBy: "code", OrderDir: "asc"},
		EntityType: schema.EntityTypeSmartCodeTemplate,
	}
	active := schema.EntityStatusActive
	filter.Status = &active

	rows, _, err := s.entities.FindAll(ctx, s.systemOrgID, filter)
	if err != nil {
		return 0, err
	}
	templates := make([]smartcode.Template, 0, len(rows))
	for _, row := range rows {
		t, err := templateFromMetadata(row.Metadata)
		if err != nil {
			s.logger.Warn("Skipping unreadable smart code template",
				zap.String("entity_id", row.ID.String()),
				zap.String("code", row.Code),
				zap.Error(err))
			continue
		}
		if err := t.Normalize().Validate(); err != nil {
			s.logger.Warn("Skipping invalid smart code template", zap.String("code", row.Code), zap.Error(err))
			continue
		}
		templates = append(templates, t)
	}
	if err := s.registry.RegisterAll(templates); err != nil {
		return 0, err
	}
	return len(templates), nil
}

func templateMetadata(t smartcode.Template) (map[string]any, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func templateFromMetadata(m map[string]any) (smartcode.Template, error) {
	var t smartcode.Template
	raw, err := json.Marshal(m)
	if err != nil {
		return t, err
	}
	err = json.Unmarshal(raw, &t)
	return t, err
}
