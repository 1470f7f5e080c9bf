package persistence

import (
	"context"

	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/erp/platform/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormRelationshipRepository implements schema.RelationshipRepository using GORM
type GormRelationshipRepository struct {
	db *gorm.DB
}

// NewGormRelationshipRepository creates a new GormRelationshipRepository
func NewGormRelationshipRepository(db *gorm.DB) *GormRelationshipRepository {
	return &GormRelationshipRepository{db: db}
}

// FindByID finds a relationship by ID within an organization
func (r *GormRelationshipRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*schema.Relationship, error) {
	var model models.RelationshipModel
	if err := r.db.WithContext(ctx).
		Where("organization_id = ? AND id = ?", orgID, id).
		First(&model).Error; err != nil {
		return nil, mapError("find relationship", err)
	}
	return model.ToDomain(), nil
}

// FindByEntity returns the relationships touching an entity from either end
func (r *GormRelationshipRepository) FindByEntity(ctx context.Context, orgID, entityID uuid.UUID, activeOnly bool) ([]schema.Relationship, error) {
	query := r.db.WithContext(ctx).
		Where("organization_id = ? AND (from_entity_id = ? OR to_entity_id = ?)", orgID, entityID, entityID)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var rows []models.RelationshipModel
	if err := query.Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, mapError("list relationships", err)
	}
	out := make([]schema.Relationship, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// Create inserts a new relationship
func (r *GormRelationshipRepository) Create(ctx context.Context, rel *schema.Relationship) error {
	var model models.RelationshipModel
	model.FromDomain(rel)
	return mapError("create relationship", r.db.WithContext(ctx).Create(&model).Error)
}

// Update saves the relationship with optimistic locking
func (r *GormRelationshipRepository) Update(ctx context.Context, rel *schema.Relationship) error {
	var model models.RelationshipModel
	model.FromDomain(rel)
	result := r.db.WithContext(ctx).
		Model(&models.RelationshipModel{}).
		Where("organization_id = ? AND id = ? AND version = ?", rel.OrganizationID, rel.ID, rel.Version-1).
		Updates(map[string]any{
			"relationship_type": model.RelationshipType,
			"smart_code":        model.SmartCode,
			"metadata":          model.Metadata,
			"is_active":         model.IsActive,
			"version":           model.Version,
			"updated_at":        model.UpdatedAt,
			"updated_by":        model.UpdatedBy,
		})
	return versionedResult("update relationship", result)
}

// versionedResult turns a zero-row optimistic update into a concurrency conflict
func versionedResult(op string, result *gorm.DB) error {
	if result.Error != nil {
		return mapError(op, result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}
