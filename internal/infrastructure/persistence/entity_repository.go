package persistence

import (
	"context"
	"strings"

	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EntitySortFields contains allowed sort fields for entities
var EntitySortFields = map[string]bool{
	"created_at":  true,
	"updated_at":  true,
	"code":        true,
	"name":        true,
	"entity_type": true,
	"smart_code":  true,
}

// GormEntityRepository implements schema.EntityRepository using GORM
type GormEntityRepository struct {
	db *gorm.DB
}

// NewGormEntityRepository creates a new GormEntityRepository
func NewGormEntityRepository(db *gorm.DB) *GormEntityRepository {
	return &GormEntityRepository{db: db}
}

// FindByID finds an entity by ID within an organization
func (r *GormEntityRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*schema.Entity, error) {
	var model models.EntityModel
	if err := r.db.WithContext(ctx).
		Where("organization_id = ? AND id = ?", orgID, id).
		First(&model).Error; err != nil {
		return nil, mapError("find entity", err)
	}
	return model.ToDomain(), nil
}

// FindByCode finds an entity by type and code within an organization
func (r *GormEntityRepository) FindByCode(ctx context.Context, orgID uuid.UUID, entityType, code string) (*schema.Entity, error) {
	var model models.EntityModel
	if err := r.db.WithContext(ctx).
		Where("organization_id = ? AND entity_type = ? AND code = ?", orgID, strings.ToUpper(entityType), strings.TrimSpace(code)).
		First(&model).Error; err != nil {
		return nil, mapError("find entity", err)
	}
	return model.ToDomain(), nil
}

// FindAll lists the entities of an organization
func (r *GormEntityRepository) FindAll(ctx context.Context, orgID uuid.UUID, filter schema.EntityFilter) ([]schema.Entity, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.EntityModel{}).Where("organization_id = ?", orgID)
	if filter.EntityType != "" {
		query = query.Where("entity_type = ?", strings.ToUpper(filter.EntityType))
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.SmartCodePrefix != "" {
		query = query.Where("smart_code LIKE ?", filter.SmartCodePrefix+"%")
	}
	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(code) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, mapError("count entities", err)
	}
	var rows []models.EntityModel
	if err := entityOrder.paginate(query, filter.Filter).Find(&rows).Error; err != nil {
		return nil, 0, mapError("list entities", err)
	}
	out := make([]schema.Entity, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, total, nil
}

// Create inserts a new entity
func (r *GormEntityRepository) Create(ctx context.Context, entity *schema.Entity) error {
	var model models.EntityModel
	model.FromDomain(entity)
	return mapError("create entity", r.db.WithContext(ctx).Create(&model).Error)
}

// Update saves the entity with optimistic locking
func (r *GormEntityRepository) Update(ctx context.Context, entity *schema.Entity) error {
	var model models.EntityModel
	model.FromDomain(entity)
	result := r.db.WithContext(ctx).
		Model(&models.EntityModel{}).
		Where("organization_id = ? AND id = ? AND version = ?", entity.OrganizationID, entity.ID, entity.Version-1).
		Updates(map[string]any{
			"name":       model.Name,
			"code":       model.Code,
			"smart_code": model.SmartCode,
			"status":     model.Status,
			"metadata":   model.Metadata,
			"version":    model.Version,
			"updated_at": model.UpdatedAt,
			"updated_by": model.UpdatedBy,
		})
	return versionedResult("update entity", result)
}
