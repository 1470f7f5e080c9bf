package persistence

import (
	"context"

	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormReferenceResolver answers the guardrail engine's ownership lookups
type GormReferenceResolver struct {
	db *gorm.DB
}

// NewGormReferenceResolver creates a new GormReferenceResolver
func NewGormReferenceResolver(db *gorm.DB) *GormReferenceResolver {
	return &GormReferenceResolver{db: db}
}

// OrganizationStatus returns the status of an organization
func (r *GormReferenceResolver) OrganizationStatus(ctx context.Context, orgID uuid.UUID) (schema.OrgStatus, error) {
	var model models.OrganizationModel
	if err := r.db.WithContext(ctx).Select("id", "status").First(&model, "id = ?", orgID).Error; err != nil {
		return "", mapError("resolve organization", err)
	}
	return model.Status, nil
}

// EntityOwners maps each known entity id to its organization. Unknown ids are absent.
func (r *GormReferenceResolver) EntityOwners(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	owners := make(map[uuid.UUID]uuid.UUID, len(ids))
	if len(ids) == 0 {
		return owners, nil
	}
	var rows []struct {
		ID             uuid.UUID
		OrganizationID uuid.UUID
	}
	if err := r.db.WithContext(ctx).
		Model(&models.EntityModel{}).
		Select("id", "organization_id").
		Where("id IN ?", ids).
		Find(&rows).Error; err != nil {
		return nil, mapError("resolve entity owners", err)
	}
	for _, row := range rows {
		owners[row.ID] = row.OrganizationID
	}
	return owners, nil
}
