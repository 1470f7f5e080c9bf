package handler

import (
	"context"

	apprule "github.com/erp/platform/internal/application/rule"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/erp/platform/internal/domain/ucr"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RuleService is the UCR rule use-case surface
type RuleService interface {
	CreateRule(ctx context.Context, orgID uuid.UUID, cmd apprule.CreateRuleCommand, actor shared.Actor) (*ucr.Rule, error)
	SetActive(ctx context.Context, orgID, ruleID uuid.UUID, active bool, actor shared.Actor) (*ucr.Rule, error)
	ListRules(ctx context.Context, orgID uuid.UUID, family string) ([]ucr.Rule, error)
	Evaluate(ctx context.Context, orgID uuid.UUID, family string, payload ucr.Payload) (ucr.Decision, error)
	ActiveRuleCount(ctx context.Context, orgID uuid.UUID) (int, error)
}

// RuleHandler handles UCR rule endpoints
type RuleHandler struct {
	BaseHandler
	svc RuleService
}

// NewRuleHandler creates a new RuleHandler
func NewRuleHandler(svc RuleService) *RuleHandler {
	return &RuleHandler{svc: svc}
}

// SetActiveRequest toggles a rule
type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// EvaluateRequest evaluates a rule family against a payload
type EvaluateRequest struct {
	Family          string          `json:"rule_family" binding:"required,max=100"`
	TransactionType string          `json:"transaction_type"`
	SmartCode       string          `json:"smart_code"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Attributes      map[string]any  `json:"attributes"`
}

// RuleCountResponse reports how many rules are active
type RuleCountResponse struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	ActiveRules    int       `json:"active_rules"`
}

// Create handles POST /rules
func (h *RuleHandler) Create(c *gin.Context) {
	orgID, ok := h.Organization(c)
	if !ok {
		return
	}
	var cmd apprule.CreateRuleCommand
	if !h.BindJSON(c, &cmd) {
		return
	}
	rule, err := h.svc.CreateRule(c.Request.Context(), orgID, cmd, h.Actor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, rule)
}

// List handles GET /rules?rule_family=
func (h *RuleHandler) List(c *gin.Context) {
	orgID, ok := h.Organization(c)
	if !ok {
		return
	}
	rules, err := h.svc.ListRules(c.Request.Context(), orgID, c.Query("rule_family"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rules)
}

// SetActive handles PUT /rules/:id/active
func (h *RuleHandler) SetActive(c *gin.Context) {
	orgID, ok := h.Organization(c)
	if !ok {
		return
	}
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return
	}
	var req SetActiveRequest
	if !h.BindJSON(c, &req) {
		return
	}
	rule, err := h.svc.SetActive(c.Request.Context(), orgID, id, *req.Active, h.Actor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rule)
}

// Evaluate handles POST /rules/evaluate. A rejection is a decision, not an error.
func (h *RuleHandler) Evaluate(c *gin.Context) {
	orgID, ok := h.Organization(c)
	if !ok {
		return
	}
	var req EvaluateRequest
	if !h.BindJSON(c, &req) {
		return
	}
	payload := ucr.Payload{
		TransactionType: req.TransactionType,
		SmartCode:       req.SmartCode,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Attributes:      req.Attributes,
	}
	decision, err := h.svc.Evaluate(c.Request.Context(), orgID, req.Family, payload)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, decision)
}

// ActiveCount handles GET /rules/active-count
func (h *RuleHandler) ActiveCount(c *gin.Context) {
	orgID, ok := h.Organization(c)
	if !ok {
		return
	}
	n, err := h.svc.ActiveRuleCount(c.Request.Context(), orgID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, RuleCountResponse{OrganizationID: orgID, ActiveRules: n})
}
