package organization

import (
	"context"
	"errors"
	"strings"

	"github.com/erp/platform/internal/domain/guardrail"
	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

// SettingsInvalidator drops cached settings after an update
type SettingsInvalidator interface {
	Invalidate(ctx context.Context, orgID uuid.UUID) error
}

// ProvisionCommand creates an organization. Code is derived from the name when empty.
type ProvisionCommand struct {
	Name     string                      `json:"name" validate:"required,max=200"`
	Code     string                      `json:"code" validate:"omitempty,max=50"`
	Settings schema.OrganizationSettings `json:"settings"`
}

// Service handles organization lifecycle operations
type Service struct {
	repo     schema.OrganizationRepository
	guard    *guardrail.Engine
	settings SettingsInvalidator
	clock    shared.Clock
	validate *validator.Validate
	logger   *zap.Logger
}

// Option configures the service
type Option func(*Service)

// WithSettingsInvalidator sets the settings cache to invalidate on updates
func WithSettingsInvalidator(inv SettingsInvalidator) Option {
	return func(s *Service) { s.settings = inv }
}

// WithClock sets the time source
func WithClock(c shared.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a new organization service
func NewService(repo schema.OrganizationRepository, guard *guardrail.Engine, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		guard:    guard,
		clock:    shared.SystemClock{},
		validate: validator.New(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DeriveCode turns an organization name into an uppercase code
func DeriveCode(name string) string {
	return strings.ToUpper(strings.ReplaceAll(slug.Make(name), "-", "_"))
}

// Provision creates a new active organization
func (s *Service) Provision(ctx context.Context, cmd ProvisionCommand, actor shared.Actor) (*schema.Organization, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, shared.NewValidationError(shared.CodeInvalidInput, err.Error())
	}
	code := cmd.Code
	if strings.TrimSpace(code) == "" {
		code = DeriveCode(cmd.Name)
	}
	org, err := schema.NewOrganization(cmd.Name, code, cmd.Settings, actor, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return org, s.create(ctx, org, actor)
}

// EnsureOrganization provisions an organization with a fixed id unless it already exists.
// It is used to bootstrap the system organization that owns shared templates.
func (s *Service) EnsureOrganization(ctx context.Context, id uuid.UUID, name string, actor shared.Actor) (*schema.Organization, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	org, err := schema.NewOrganization(name, DeriveCode(name), schema.OrganizationSettings{}, actor, s.clock.Now())
	if err != nil {
		return nil, err
	}
	org.ID = id
	return org, s.create(ctx, org, actor)
}

func (s *Service) create(ctx context.Context, org *schema.Organization, actor shared.Actor) error {
	if _, err := s.guard.Enforce(ctx, &guardrail.Request{
		OrganizationID: org.ID,
		Actor:          actor,
		Table:          guardrail.TableOrganizations,
		Settings:       org.Settings,
		Organization:   org,
	}); err != nil {
		return err
	}

	if _, err := s.repo.FindByCode(ctx, org.Code); err == nil {
		return shared.NewDomainError(shared.CodeAlreadyExists, "Organization code "+org.Code+" is already taken")
	} else if !errors.Is(err, shared.ErrNotFound) {
		return err
	}

	if err := s.repo.Create(ctx, org); err != nil {
		s.logger.Error("Failed to create organization", zap.String("code", org.Code), zap.Error(err))
		return err
	}
	s.logger.Info("Organization provisioned",
		zap.String("organization_id", org.ID.String()),
		zap.String("code", org.Code),
		zap.String("actor_id", actor.ID.String()))
	return nil
}

// Get returns an organization by id
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*schema.Organization, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns a page of organizations
func (s *Service) List(ctx context.Context, filter shared.Filter) ([]schema.Organization, int64, error) {
	return s.repo.FindAll(ctx, filter)
}

// UpdateSettings replaces the settings of an organization and invalidates cached copies
func (s *Service) UpdateSettings(ctx context.Context, id uuid.UUID, settings schema.OrganizationSettings, actor shared.Actor) (*schema.Organization, error) {
	org, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := org.UpdateSettings(settings, actor, s.clock.Now()); err != nil {
		return nil, err
	}
	return org, s.save(ctx, org, actor)
}

// ChangeStatus suspends, archives or reactivates an organization
func (s *Service) ChangeStatus(ctx context.Context, id uuid.UUID, status schema.OrgStatus, actor shared.Actor) (*schema.Organization, error) {
	org, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := org.ChangeStatus(status, actor, s.clock.Now()); err != nil {
		return nil, err
	}
	return org, s.save(ctx, org, actor)
}

func (s *Service) save(ctx context.Context, org *schema.Organization, actor shared.Actor) error {
	if _, err := s.guard.Enforce(ctx, &guardrail.Request{
		OrganizationID: org.ID,
		Actor:          actor,
		Table:          guardrail.TableOrganizations,
		Settings:       org.Settings,
		Organization:   org,
	}); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, org); err != nil {
		return err
	}
	if s.settings != nil {
		if err := s.settings.Invalidate(ctx, org.ID); err != nil {
			s.logger.Warn("Failed to invalidate cached settings",
				zap.String("organization_id", org.ID.String()),
				zap.Error(err))
		}
	}
	return nil
}
