package handler

import (
	"context"
	"errors"

	"github.com/erp/platform/internal/domain/shared"
	"github.com/erp/platform/internal/domain/smartcode"
	"github.com/gin-gonic/gin"
)

// SmartCodeService is the smart code registry use-case surface
type SmartCodeService interface {
	Validate(code string) (smartcode.Validated, error)
	Classify(code string) (smartcode.Classification, error)
	Templates() []smartcode.Template
	RegisterTemplate(ctx context.Context, t smartcode.Template, actor shared.Actor) (smartcode.Template, error)
}

// SmartCodeHandler handles smart code endpoints
type SmartCodeHandler struct {
	BaseHandler
	svc SmartCodeService
}

// NewSmartCodeHandler creates a new SmartCodeHandler
func NewSmartCodeHandler(svc SmartCodeService) *SmartCodeHandler {
	return &SmartCodeHandler{svc: svc}
}

// SmartCodeQuery carries the code under inspection
type SmartCodeQuery struct {
	Code string `form:"code" binding:"required,max=200"`
}

// ValidationResponse reports whether a smart code is acceptable
type ValidationResponse struct {
	Valid      bool                 `json:"valid"`
	Result     *smartcode.Validated `json:"result,omitempty"`
	Code       string               `json:"code,omitempty"`
	Message    string               `json:"message,omitempty"`
	Violations []shared.Violation   `json:"violations,omitempty"`
}

// Validate handles GET /smart-codes/validate?code=. An invalid code is a 200 with valid=false.
func (h *SmartCodeHandler) Validate(c *gin.Context) {
	var q SmartCodeQuery
	if !h.BindQuery(c, &q) {
		return
	}
	v, err := h.svc.Validate(q.Code)
	if err != nil {
		var de *shared.DomainError
		if errors.As(err, &de) && de.Kind == shared.KindValidation {
			h.Success(c, ValidationResponse{Valid: false, Code: de.Code, Message: de.Message, Violations: de.Violations})
			return
		}
		h.HandleError(c, err)
		return
	}
	h.Success(c, ValidationResponse{Valid: true, Result: &v})
}

// Classify handles GET /smart-codes/classify?code=
func (h *SmartCodeHandler) Classify(c *gin.Context) {
	var q SmartCodeQuery
	if !h.BindQuery(c, &q) {
		return
	}
	cls, err := h.svc.Classify(q.Code)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, cls)
}

// ListTemplates handles GET /smart-codes/templates
func (h *SmartCodeHandler) ListTemplates(c *gin.Context) {
	h.Success(c, h.svc.Templates())
}

// RegisterTemplate handles POST /smart-codes/templates
func (h *SmartCodeHandler) RegisterTemplate(c *gin.Context) {
	var t smartcode.Template
	if !h.BindJSON(c, &t) {
		return
	}
	registered, err := h.svc.RegisterTemplate(c.Request.Context(), t, h.Actor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, registered)
}
