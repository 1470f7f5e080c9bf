package entity

import (
	"context"
	"errors"
	"strings"

	"github.com/erp/platform/internal/domain/guardrail"
	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateEntityCommand creates an entity
type CreateEntityCommand struct {
	EntityType string         `json:"entity_type" validate:"required,max=50"`
	Name       string         `json:"name" validate:"required,max=255"`
	Code       string         `json:"code" validate:"omitempty,max=100"`
	SmartCode  string         `json:"smart_code"`
	Metadata   map[string]any `json:"metadata"`
}

// SetAttributeCommand writes the live value of one attribute
type SetAttributeCommand struct {
	FieldName string                `json:"field_name" validate:"required,max=100"`
	ValueType schema.ValueType      `json:"value_type" validate:"omitempty,oneof=text number boolean date json"`
	Value     schema.AttributeValue `json:"value"`
	SmartCode string                `json:"smart_code"`
}

// CreateRelationshipCommand links two entities
type CreateRelationshipCommand struct {
	FromEntityID     uuid.UUID      `json:"from_entity_id" validate:"required"`
	ToEntityID       uuid.UUID      `json:"to_entity_id" validate:"required"`
	RelationshipType string         `json:"relationship_type" validate:"required,max=100"`
	SmartCode        string         `json:"smart_code"`
	Metadata         map[string]any `json:"metadata"`
}

// AttributeResult is a written attribute and the corrections applied to it
type AttributeResult struct {
	Attribute *schema.DynamicAttribute `json:"attribute"`
	Fixes     []guardrail.Autofix      `json:"autofixes,omitempty"`
}

// Service handles entity, attribute and relationship operations.
// Every mutation passes the guardrail engine before it is stored.
type Service struct {
	entities      schema.EntityRepository
	attributes    schema.AttributeRepository
	relationships schema.RelationshipRepository
	guard         *guardrail.Engine
	clock         shared.Clock
	validate      *validator.Validate
	logger        *zap.Logger
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

// NewService creates a new entity service
func NewService(
	entities schema.EntityRepository,
	attributes schema.AttributeRepository,
	relationships schema.RelationshipRepository,
	guard *guardrail.Engine,
	opts ...Option,
) *Service {
	s := &Service{
		entities:      entities,
		attributes:    attributes,
		relationships: relationships,
		guard:         guard,
		clock:         shared.SystemClock{},
		validate:      validator.New(),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		return shared.NewValidationError(shared.CodeInvalidInput, err.Error())
	}
	return nil
}

// CreateEntity creates a new entity
func (s *Service) CreateEntity(ctx context.Context, orgID uuid.UUID, cmd CreateEntityCommand, actor shared.Actor) (*schema.Entity, error) {
	if err := s.check(cmd); err != nil {
		return nil, err
	}
	e, err := schema.NewEntity(orgID, cmd.EntityType, cmd.Name, cmd.Code, cmd.SmartCode, cmd.Metadata, actor, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if _, err := s.guard.Enforce(ctx, &guardrail.Request{
		OrganizationID: orgID, Actor: actor, Table: guardrail.TableEntities, Entity: e,
	}); err != nil {
		return nil, err
	}
	if e.Code != "" {
		if err := s.ensureCodeFree(ctx, orgID, e.EntityType, e.Code, uuid.Nil); err != nil {
			return nil, err
		}
	}
	if err := s.entities.Create(ctx, e); err != nil {
		return nil, err
	}
	s.logger.Info("Entity created",
		zap.String("organization_id", orgID.String()),
		zap.String("entity_id", e.ID.String()),
		zap.String("entity_type", e.EntityType),
		zap.String("smart_code", e.SmartCode))
	return e, nil
}

func (s *Service) ensureCodeFree(ctx context.Context, orgID uuid.UUID, entityType, code string, self uuid.UUID) error {
	existing, err := s.entities.FindByCode(ctx, orgID, entityType, code)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != self:
		return shared.NewDomainError(shared.CodeAlreadyExists, "Entity code "+code+" already exists for type "+entityType)
	}
	return nil
}

// UpdateEntity applies a partial update to an entity
func (s *Service) UpdateEntity(ctx context.Context, orgID, id uuid.UUID, update schema.EntityUpdate, actor shared.Actor) (*schema.Entity, error) {
	e, err := s.entities.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := e.Apply(update, actor, s.clock.Now()); err != nil {
		return nil, err
	}
	if _, err := s.guard.Enforce(ctx, &guardrail.Request{
		OrganizationID: orgID, Actor: actor, Table: guardrail.TableEntities, Entity: e,
	}); err != nil {
		return nil, err
	}
	if update.Code != nil && e.Code != "" {
		if err := s.ensureCodeFree(ctx, orgID, e.EntityType, e.Code, e.ID); err != nil {
			return nil, err
		}
	}
	if err := s.entities.Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// GetEntity returns an entity of the organization
func (s *Service) GetEntity(ctx context.Context, orgID, id uuid.UUID) (*schema.Entity, error) {
	return s.entities.FindByID(ctx, orgID, id)
}

// ListEntities returns a page of entities of the organization
func (s *Service) ListEntities(ctx context.Context, orgID uuid.UUID, filter schema.EntityFilter) ([]schema.Entity, int64, error) {
	filter.EntityType = strings.ToUpper(strings.TrimSpace(filter.EntityType))
	return s.entities.FindAll(ctx, orgID, filter)
}

// SetAttribute upserts the single live value of an attribute
func (s *Service) SetAttribute(ctx context.Context, orgID, entityID uuid.UUID, cmd SetAttributeCommand, actor shared.Actor) (*AttributeResult, error) {
	if err := s.check(cmd); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	attr, err := schema.NewDynamicAttribute(orgID, entityID, cmd.FieldName, cmd.ValueType, cmd.Value, cmd.SmartCode, actor, now)
	if err != nil {
		return nil, err
	}

	existing, err := s.attributes.FindByField(ctx, orgID, entityID, attr.FieldName)
	switch {
	case err == nil:
		attr.OrgAggregateRoot = existing.OrgAggregateRoot
		attr.Touch(actor, now)
	case !errors.Is(err, shared.ErrNotFound):
		return nil, err
	}

	report, err := s.guard.Enforce(ctx, &guardrail.Request{
		OrganizationID: orgID, Actor: actor, Table: guardrail.TableDynamicAttributes, Attribute: attr,
	})
	if err != nil {
		return nil, err
	}
	if err := s.attributes.Upsert(ctx, attr); err != nil {
		return nil, err
	}
	return &AttributeResult{Attribute: attr, Fixes: report.Fixes}, nil
}

// ListAttributes returns the live attributes of an entity
func (s *Service) ListAttributes(ctx context.Context, orgID, entityID uuid.UUID) ([]schema.DynamicAttribute, error) {
	if _, err := s.entities.FindByID(ctx, orgID, entityID); err != nil {
		return nil, err
	}
	return s.attributes.FindByEntity(ctx, orgID, entityID)
}

// CreateRelationship links two entities of the same organization
func (s *Service) CreateRelationship(ctx context.Context, orgID uuid.UUID, cmd CreateRelationshipCommand, actor shared.Actor) (*schema.Relationship, error) {
	if err := s.check(cmd); err != nil {
		return nil, err
	}
	rel, err := schema.NewRelationship(orgID, cmd.FromEntityID, cmd.ToEntityID, cmd.RelationshipType, cmd.SmartCode, cmd.Metadata, actor, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if _, err := s.guard.Enforce(ctx, &guardrail.Request{
		OrganizationID: orgID, Actor: actor, Table: guardrail.TableRelationships, Relationship: rel,
	}); err != nil {
		return nil, err
	}
	if err := s.relationships.Create(ctx, rel); err != nil {
		return nil, err
	}
	return rel, nil
}

// DeactivateRelationship soft-deletes a relationship
func (s *Service) DeactivateRelationship(ctx context.Context, orgID, id uuid.UUID, actor shared.Actor) (*schema.Relationship, error) {
	rel, err := s.relationships.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := rel.Deactivate(actor, s.clock.Now()); err != nil {
		return nil, err
	}
	if _, err := s.guard.Enforce(ctx, &guardrail.Request{
		OrganizationID: orgID, Actor: actor, Table: guardrail.TableRelationships, Relationship: rel,
	}); err != nil {
		return nil, err
	}
	if err := s.relationships.Update(ctx, rel); err != nil {
		return nil, err
	}
	return rel, nil
}

// ListRelationships returns relationships touching an entity
func (s *Service) ListRelationships(ctx context.Context, orgID, entityID uuid.UUID, activeOnly bool) ([]schema.Relationship, error) {
	return s.relationships.FindByEntity(ctx, orgID, entityID, activeOnly)
}
