package persistence

import (
	"context"
	"strings"

	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/erp/platform/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrganizationSortFields contains allowed sort fields for organizations
var OrganizationSortFields = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"code":       true,
	"name":       true,
	"status":     true,
}

// GormOrganizationRepository implements schema.OrganizationRepository and
// schema.SettingsReader using GORM
type GormOrganizationRepository struct {
	db *gorm.DB
}

// NewGormOrganizationRepository creates a new GormOrganizationRepository
func NewGormOrganizationRepository(db *gorm.DB) *GormOrganizationRepository {
	return &GormOrganizationRepository{db: db}
}

// FindByID finds an organization by its ID
func (r *GormOrganizationRepository) FindByID(ctx context.Context, id uuid.UUID) (*schema.Organization, error) {
	var model models.OrganizationModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, mapError("find organization", err)
	}
	return model.ToDomain(), nil
}

// FindByCode finds an organization by its unique code
func (r *GormOrganizationRepository) FindByCode(ctx context.Context, code string) (*schema.Organization, error) {
	var model models.OrganizationModel
	if err := r.db.WithContext(ctx).
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		First(&model).Error; err != nil {
		return nil, mapError("find organization", err)
	}
	return model.ToDomain(), nil
}

// FindAll lists organizations
func (r *GormOrganizationRepository) FindAll(ctx context.Context, filter shared.Filter) ([]schema.Organization, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.OrganizationModel{})
	if filter.Search != "" {
		like := "%" + strings.ToUpper(filter.Search) + "%"
		query = query.Where("UPPER(name) LIKE ? OR code LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, mapError("count organizations", err)
	}

	var rows []models.OrganizationModel
	if err := organizationOrder.paginate(query, filter).Find(&rows).Error; err != nil {
		return nil, 0, mapError("list organizations", err)
	}
	out := make([]schema.Organization, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, total, nil
}

// Create inserts a new organization
func (r *GormOrganizationRepository) Create(ctx context.Context, org *schema.Organization) error {
	var model models.OrganizationModel
	model.FromDomain(org)
	return mapError("create organization", r.db.WithContext(ctx).Create(&model).Error)
}

// Update saves the organization if its stored version is the one it was loaded at
func (r *GormOrganizationRepository) Update(ctx context.Context, org *schema.Organization) error {
	var model models.OrganizationModel
	model.FromDomain(org)
	result := r.db.WithContext(ctx).
		Model(&models.OrganizationModel{}).
		Where("id = ? AND version = ?", org.ID, org.Version-1).
		Updates(map[string]any{
			"name":       model.Name,
			"status":     model.Status,
			"settings":   model.Settings,
			"version":    model.Version,
			"updated_at": model.UpdatedAt,
			"updated_by": model.UpdatedBy,
		})
	return versionedResult("update organization", result)
}

// Settings returns the settings of an organization
func (r *GormOrganizationRepository) Settings(ctx context.Context, orgID uuid.UUID) (schema.OrganizationSettings, error) {
	org, err := r.FindByID(ctx, orgID)
	if err != nil {
		return schema.OrganizationSettings{}, err
	}
	return org.Settings, nil
}
