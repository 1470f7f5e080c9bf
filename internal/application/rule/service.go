package rule

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/erp/platform/internal/domain/guardrail"
	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/erp/platform/internal/domain/ucr"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Smart codes of rule rows
const (
	RuleEntitySmartCode    = "SYS.UCR.RULE.DEFINITION.v1"
	RuleAttributeSmartCode = "SYS.UCR.RULE.ATTRIBUTE.v1"
)

// CreateRuleCommand defines a new rule
type CreateRuleCommand struct {
	Name              string                `json:"name" validate:"required,max=255"`
	Code              string                `json:"code" validate:"omitempty,max=100"`
	Family            string                `json:"rule_family" validate:"required,max=100"`
	Priority          int                   `json:"priority" validate:"gte=-1000000000,lte=1000000000"`
	Active            *bool                 `json:"active"`
	Conditions        ucr.Conditions        `json:"conditions"`
	Result            ucr.Result            `json:"result" validate:"required,oneof=PASSED APPROVED REJECTED ESCALATED"`
	ProcessingMode    schema.ProcessingMode `json:"processing_mode" validate:"omitempty,oneof=IMMEDIATE BATCH"`
	RequiredApprovers int                   `json:"required_approvers" validate:"gte=0,lte=1000000000"`
	Version           int                   `json:"rule_version" validate:"gte=0"`
}

// Service creates, lists and evaluates UCR rules. Rules are stored as UCR_RULE
// entities with typed dynamic attributes.
type Service struct {
	entities   schema.EntityRepository
	attributes schema.AttributeRepository
	loader     ucr.RuleLoader
	engine     *ucr.Engine
	guard      *guardrail.Engine
	clock      shared.Clock
	validate   *validator.Validate
	logger     *zap.Logger
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

// NewService creates a new rule service
func NewService(
	entities schema.EntityRepository,
	attributes schema.AttributeRepository,
	loader ucr.RuleLoader,
	engine *ucr.Engine,
	guard *guardrail.Engine,
	opts ...Option,
) *Service {
	s := &Service{
		entities:   entities,
		attributes: attributes,
		loader:     loader,
		engine:     engine,
		guard:      guard,
		clock:      shared.SystemClock{},
		validate:   validator.New(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRule stores a rule and invalidates the organization's cached rule set
func (s *Service) CreateRule(ctx context.Context, orgID uuid.UUID, cmd CreateRuleCommand, actor shared.Actor) (*ucr.Rule, error) {
	cmd.Result = ucr.Result(strings.ToUpper(strings.TrimSpace(string(cmd.Result))))
	cmd.ProcessingMode = schema.ProcessingMode(strings.ToUpper(strings.TrimSpace(string(cmd.ProcessingMode))))
	if err := s.validate.Struct(cmd); err != nil {
		return nil, shared.NewValidationError(shared.CodeInvalidInput, err.Error())
	}
	if err := cmd.Conditions.Validate(); err != nil {
		return nil, shared.NewValidationError(shared.CodeInvalidInput, "invalid rule conditions: "+err.Error())
	}
	active := true
	if cmd.Active != nil {
		active = *cmd.Active
	}
	r := ucr.Rule{
		OrganizationID:    orgID,
		Name:              cmd.Name,
		Code:              cmd.Code,
		Family:            ucr.NormalizeFamily(cmd.Family),
		Priority:          cmd.Priority,
		Active:            active,
		Conditions:        cmd.Conditions,
		Result:            cmd.Result,
		ProcessingMode:    cmd.ProcessingMode,
		RequiredApprovers: cmd.RequiredApprovers,
		Version:           cmd.Version,
	}
	specs, err := r.Attributes()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	e, err := schema.NewEntity(orgID, schema.EntityTypeUCRRule, cmd.Name, cmd.Code, RuleEntitySmartCode, map[string]any{"rule_family": r.Family}, actor, now)
	if err != nil {
		return nil, err
	}
	if _, err := s.guard.Enforce(ctx, &guardrail.Request{
		OrganizationID: orgID, Actor: actor, Table: guardrail.TableEntities, Entity: e,
	}); err != nil {
		return nil, err
	}

	if err := s.entities.Create(ctx, e); err != nil {
		return nil, err
	}
	defer s.engine.Invalidate(orgID)

	attrs := make([]schema.DynamicAttribute, 0, len(specs))
	for _, field := range specs {
		a, err := schema.NewDynamicAttribute(orgID, e.ID, field.Field, field.Type, field.Value, RuleAttributeSmartCode, actor, now)
		if err == nil {
			_, err = s.guard.Enforce(ctx, &guardrail.Request{
				OrganizationID: orgID, Actor: actor, Table: guardrail.TableDynamicAttributes, Attribute: a,
			})
		}
		if err == nil {
			err = s.attributes.Upsert(ctx, a)
		}
		if err != nil {
			s.retire(ctx, e, actor)
			return nil, err
		}
		attrs = append(attrs, *a)
	}

	decoded := ucr.DecodeRule(*e, attrs)
	s.logger.Info("Rule created",
		zap.String("organization_id", orgID.String()),
		zap.String("rule_id", e.ID.String()),
		zap.String("rule_family", decoded.Family),
		zap.Int("priority", decoded.Priority))
	return &decoded, nil
}

// retire deactivates a rule whose attributes could not all be written.
// A partially written rule would otherwise decode as malformed and reject its family.
func (s *Service) retire(ctx context.Context, e *schema.Entity, actor shared.Actor) {
	inactive := schema.EntityStatusInactive
	if err := e.Apply(schema.EntityUpdate{Status: &inactive}, actor, s.clock.Now()); err != nil {
		return
	}
	if err := s.entities.Update(ctx, e); err != nil {
		s.logger.Error("Failed to retire partially written rule",
			zap.String("rule_id", e.ID.String()),
			zap.Error(err))
	}
}

// SetActive enables or disables a rule
func (s *Service) SetActive(ctx context.Context, orgID, ruleID uuid.UUID, active bool, actor shared.Actor) (*ucr.Rule, error) {
	e, err := s.entities.FindByID(ctx, orgID, ruleID)
	if err != nil {
		return nil, err
	}
	if e.EntityType != schema.EntityTypeUCRRule {
		return nil, shared.NewNotFoundError("rule")
	}
	now := s.clock.Now()
	a, err := s.attributes.FindByField(ctx, orgID, ruleID, ucr.AttrActive)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	if a == nil {
		a, err = schema.NewDynamicAttribute(orgID, ruleID, ucr.AttrActive, schema.ValueTypeBoolean, schema.BooleanValue(active), RuleAttributeSmartCode, actor, now)
		if err != nil {
			return nil, err
		}
	} else {
		a.ValueType = schema.ValueTypeBoolean
		a.Value = schema.BooleanValue(active)
		a.Touch(actor, now)
	}
	if _, err := s.guard.Enforce(ctx, &guardrail.Request{
		OrganizationID: orgID, Actor: actor, Table: guardrail.TableDynamicAttributes, Attribute: a,
	}); err != nil {
		return nil, err
	}
	if err := s.attributes.Upsert(ctx, a); err != nil {
		return nil, err
	}
	s.engine.Invalidate(orgID)

	attrs, err := s.attributes.FindByEntity(ctx, orgID, ruleID)
	if err != nil {
		return nil, err
	}
	decoded := ucr.DecodeRule(*e, attrs)
	return &decoded, nil
}

// ListRules returns the organization's rules, optionally restricted to one family,
// in evaluation order
func (s *Service) ListRules(ctx context.Context, orgID uuid.UUID, family string) ([]ucr.Rule, error) {
	rules, err := s.loader.LoadRules(ctx, orgID)
	if err != nil {
		return nil, err
	}
	family = ucr.NormalizeFamily(family)
	out := make([]ucr.Rule, 0, len(rules))
	for _, r := range rules {
		if family == "" || r.Family == family {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// Evaluate runs a rule family against a payload
func (s *Service) Evaluate(ctx context.Context, orgID uuid.UUID, family string, payload ucr.Payload) (ucr.Decision, error) {
	return s.engine.Evaluate(ctx, orgID, family, payload)
}

// ActiveRuleCount returns the number of active rules of the organization
func (s *Service) ActiveRuleCount(ctx context.Context, orgID uuid.UUID) (int, error) {
	return s.engine.ActiveRuleCount(ctx, orgID)
}
