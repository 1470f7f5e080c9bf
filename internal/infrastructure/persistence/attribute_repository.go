package persistence

import (
	"context"
	"strings"

	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormAttributeRepository implements schema.AttributeRepository using GORM
type GormAttributeRepository struct {
	db *gorm.DB
}

// NewGormAttributeRepository creates a new GormAttributeRepository
func NewGormAttributeRepository(db *gorm.DB) *GormAttributeRepository {
	return &GormAttributeRepository{db: db}
}

// Upsert writes the single live value for (organization, entity, field).
// On conflict the existing row keeps its id and creation audit.
func (r *GormAttributeRepository) Upsert(ctx context.Context, attr *schema.DynamicAttribute) error {
	var model models.DynamicAttributeModel
	model.FromDomain(attr)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "organization_id"}, {Name: "entity_id"}, {Name: "field_name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value_type", "value_text", "value_number", "value_boolean", "value_date", "value_json",
			"smart_code", "version", "updated_at", "updated_by",
		}),
	}).Create(&model).Error
	return mapError("upsert attribute", err)
}

// FindByEntity returns the attributes of one entity ordered by field name
func (r *GormAttributeRepository) FindByEntity(ctx context.Context, orgID, entityID uuid.UUID) ([]schema.DynamicAttribute, error) {
	return r.FindByEntities(ctx, orgID, []uuid.UUID{entityID})
}

// FindByEntities returns the attributes of several entities
func (r *GormAttributeRepository) FindByEntities(ctx context.Context, orgID uuid.UUID, entityIDs []uuid.UUID) ([]schema.DynamicAttribute, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	var rows []models.DynamicAttributeModel
	if err := r.db.WithContext(ctx).
		Where("organization_id = ? AND entity_id IN ?", orgID, entityIDs).
		Order("entity_id, field_name").
		Find(&rows).Error; err != nil {
		return nil, mapError("list attributes", err)
	}
	out := make([]schema.DynamicAttribute, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// FindByField returns the live value of one field
func (r *GormAttributeRepository) FindByField(ctx context.Context, orgID, entityID uuid.UUID, fieldName string) (*schema.DynamicAttribute, error) {
	var model models.DynamicAttributeModel
	if err := r.db.WithContext(ctx).
		Where("organization_id = ? AND entity_id = ? AND field_name = ?", orgID, entityID, strings.ToLower(strings.TrimSpace(fieldName))).
		First(&model).Error; err != nil {
		return nil, mapError("find attribute", err)
	}
	return model.ToDomain(), nil
}
