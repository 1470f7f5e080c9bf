package handler

import (
	"context"
	"strings"

	appentity "github.com/erp/platform/internal/application/entity"
	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/erp/platform/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EntityService is the entity, attribute and relationship use-case surface
type EntityService interface {
	CreateEntity(ctx context.Context, orgID uuid.UUID, cmd appentity.CreateEntityCommand, actor shared.Actor) (*schema.Entity, error)
	UpdateEntity(ctx context.Context, orgID, id uuid.UUID, update schema.EntityUpdate, actor shared.Actor) (*schema.Entity, error)
	GetEntity(ctx context.Context, orgID, id uuid.UUID) (*schema.Entity, error)
	ListEntities(ctx context.Context, orgID uuid.UUID, filter schema.EntityFilter) ([]schema.Entity, int64, error)
	SetAttribute(ctx context.Context, orgID, entityID uuid.UUID, cmd appentity.SetAttributeCommand, actor shared.Actor) (*appentity.AttributeResult, error)
	ListAttributes(ctx context.Context, orgID, entityID uuid.UUID) ([]schema.DynamicAttribute, error)
	CreateRelationship(ctx context.Context, orgID uuid.UUID, cmd appentity.CreateRelationshipCommand, actor shared.Actor) (*schema.Relationship, error)
	DeactivateRelationship(ctx context.Context, orgID, id uuid.UUID, actor shared.Actor) (*schema.Relationship, error)
	ListRelationships(ctx context.Context, orgID, entityID uuid.UUID, activeOnly bool) ([]schema.Relationship, error)
}

// EntityHandler handles entity, dynamic attribute and relationship endpoints
type EntityHandler struct {
	BaseHandler
	svc EntityService
}

// NewEntityHandler creates a new EntityHandler
func NewEntityHandler(svc EntityService) *EntityHandler {
	return &EntityHandler{svc: svc}
}

// ListEntitiesRequest holds entity list query parameters
type ListEntitiesRequest struct {
	dto.ListRequest
	EntityType      string `form:"entity_type" binding:"omitempty,max=50"`
	Status          string `form:"status" binding:"omitempty,oneof=ACTIVE INACTIVE"`
	SmartCodePrefix string `form:"smart_code_prefix" binding:"omitempty,max=200"`
}

// UpdateEntityRequest is a partial entity update
type UpdateEntityRequest struct {
	Name      *string              `json:"name" binding:"omitempty,max=255"`
	Code      *string              `json:"code" binding:"omitempty,max=100"`
	SmartCode *string              `json:"smart_code"`
	Status    *schema.EntityStatus `json:"status" binding:"omitempty,oneof=ACTIVE INACTIVE"`
	Metadata  map[string]any       `json:"metadata"`
}

// Create handles POST /entities
func (h *EntityHandler) Create(c *gin.Context) {
	orgID, ok := h.Organization(c)
	if !ok {
		return
	}
	var cmd appentity.CreateEntityCommand
	if !h.BindJSON(c, &cmd) {
		return
	}
	e, err := h.svc.CreateEntity(c.Request.Context(), orgID, cmd, h.Actor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, e)
}

// List handles GET /entities
func (h *EntityHandler) List(c *gin.Context) {
	orgID, ok := h.Organization(c)
	if !ok {
		return
	}
	var req ListEntitiesRequest
	if !h.BindQuery(c, &req) {
		return
	}
	filter := schema.EntityFilter{
		Filter:          req.ToFilter(),
		EntityType:      strings.ToUpper(req.EntityType),
		SmartCodePrefix: req.SmartCodePrefix,
	}
	if req.Status != "" {
		status := schema.EntityStatus(req.Status)
		filter.Status = &status
	}
	entities, total, err := h.svc.ListEntities(c.Request.Context(), orgID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, entities, total, filter.Page, filter.PageSize)
}

// Get handles GET /entities/:id
func (h *EntityHandler) Get(c *gin.Context) {
	orgID, ok := h.Organization(c)
	if !ok {
		return
	}
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}
	e, err := h.svc.GetEntity(c.Request.Context(), orgID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, e)
}

// Update handles PATCH /entities/:id
func (h *EntityHandler) Update(c *gin.Context) {
	orgID, ok := h.Organization(c)
	if !ok {
		return
	}
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}
	var req UpdateEntityRequest
	if !h.BindJSON(c, &req) {
		return
	}
	update := schema.EntityUpdate{
		Name:      req.Name,
		Code:      req.Code,
		SmartCode: req.SmartCode,
		Status:    req.Status,
		Metadata:  req.Metadata,
	}
	e, err := h.svc.UpdateEntity(c.Request.Context(), orgID, id, update, h.Actor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, e)
}

// SetAttribute handles PUT /entities/:id/attributes
func (h *EntityHandler) SetAttribute(c *gin.Context) {
	orgID, ok := h.Organization(c)
	if !ok {
		return
	}
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}
	var cmd appentity.SetAttributeCommand
	if !h.BindJSON(c, &cmd) {
		return
	}
	res, err := h.svc.SetAttribute(c.Request.Context(), orgID, id, cmd, h.Actor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, res)
}

// ListAttributes handles GET /entities/:id/attributes
func (h *EntityHandler) ListAttributes(c *gin.Context) {
	orgID, ok := h.Organization(c)
	if !ok {
		return
	}
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}
	attrs, err := h.svc.ListAttributes(c.Request.Context(), orgID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, attrs)
}

// ListRelationships handles GET /entities/:id/relationships?active_only=true
func (h *EntityHandler) ListRelationships(c *gin.Context) {
	orgID, ok := h.Organization(c)
	if !ok {
		return
	}
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}
	activeOnly := c.Query("active_only") != "false"
	rels, err := h.svc.ListRelationships(c.Request.Context(), orgID, id, activeOnly)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rels)
}

// CreateRelationship handles POST /relationships
func (h *EntityHandler) CreateRelationship(c *gin.Context) {
	orgID, ok := h.Organization(c)
	if !ok {
		return
	}
	var cmd appentity.CreateRelationshipCommand
	if !h.BindJSON(c, &cmd) {
		return
	}
	rel, err := h.svc.CreateRelationship(c.Request.Context(), orgID, cmd, h.Actor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, rel)
}

// DeactivateRelationship handles DELETE /relationships/:id
func (h *EntityHandler) DeactivateRelationship(c *gin.Context) {
	orgID, ok := h.Organization(c)
	if !ok {
		return
	}
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}
	rel, err := h.svc.DeactivateRelationship(c.Request.Context(), orgID, id, h.Actor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rel)
}
