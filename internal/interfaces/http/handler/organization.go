package handler

import (
	"context"
	"net/http"

	apporg "github.com/erp/platform/internal/application/organization"
	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/erp/platform/internal/interfaces/http/dto"
	"github.com/erp/platform/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OrganizationService is the organization use-case surface used by the handler
type OrganizationService interface {
	Provision(ctx context.Context, cmd apporg.ProvisionCommand, actor shared.Actor) (*schema.Organization, error)
	Get(ctx context.Context, id uuid.UUID) (*schema.Organization, error)
	List(ctx context.Context, filter shared.Filter) ([]schema.Organization, int64, error)
	UpdateSettings(ctx context.Context, id uuid.UUID, settings schema.OrganizationSettings, actor shared.Actor) (*schema.Organization, error)
	ChangeStatus(ctx context.Context, id uuid.UUID, status schema.OrgStatus, actor shared.Actor) (*schema.Organization, error)
}

// OrganizationHandler handles organization endpoints
type OrganizationHandler struct {
	BaseHandler
	svc OrganizationService
}

// NewOrganizationHandler creates a new OrganizationHandler
func NewOrganizationHandler(svc OrganizationService) *OrganizationHandler {
	return &OrganizationHandler{svc: svc}
}

// ChangeStatusRequest moves an organization through its lifecycle
type ChangeStatusRequest struct {
	Status schema.OrgStatus `json:"status" binding:"required,oneof=ACTIVE SUSPENDED ARCHIVED"`
}

// Provision handles POST /organizations
func (h *OrganizationHandler) Provision(c *gin.Context) {
	var cmd apporg.ProvisionCommand
	if !h.BindJSON(c, &cmd) {
		return
	}
	org, err := h.svc.Provision(c.Request.Context(), cmd, h.Actor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, org)
}

// List handles GET /organizations
func (h *OrganizationHandler) List(c *gin.Context) {
	var req dto.ListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	filter := req.ToFilter()
	orgs, total, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, orgs, total, filter.Page, filter.PageSize)
}

// Get handles GET /organizations/:id
func (h *OrganizationHandler) Get(c *gin.Context) {
	id, ok := h.target(c)
	if !ok {
		return
	}
	org, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, org)
}

// UpdateSettings handles PUT /organizations/:id/settings
func (h *OrganizationHandler) UpdateSettings(c *gin.Context) {
	id, ok := h.target(c)
	if !ok {
		return
	}
	var settings schema.OrganizationSettings
	if !h.BindJSON(c, &settings) {
		return
	}
	org, err := h.svc.UpdateSettings(c.Request.Context(), id, settings, h.Actor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, org)
}

// ChangeStatus handles PUT /organizations/:id/status
func (h *OrganizationHandler) ChangeStatus(c *gin.Context) {
	id, ok := h.target(c)
	if !ok {
		return
	}
	var req ChangeStatusRequest
	if !h.BindJSON(c, &req) {
		return
	}
	org, err := h.svc.ChangeStatus(c.Request.Context(), id, req.Status, h.Actor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, org)
}

// target parses :id and refuses access to another tenant than the scoped one
func (h *OrganizationHandler) target(c *gin.Context) (uuid.UUID, bool) {
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return uuid.Nil, false
	}
	if scoped, ok := middleware.GetOrganizationID(c); ok && scoped != id {
		h.Error(c, http.StatusForbidden, shared.CodeTenantIsolation, "Organization is outside the request scope")
		return uuid.Nil, false
	}
	return id, true
}
