package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	appposting "github.com/erp/platform/internal/application/posting"
	"github.com/erp/platform/internal/domain/posting"
	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/erp/platform/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TransactionService is the transaction lifecycle use-case surface
type TransactionService interface {
	Create(ctx context.Context, orgID uuid.UUID, cmd appposting.CreateTransactionCommand, actor shared.Actor) (*appposting.CreateResult, error)
	Get(ctx context.Context, orgID, id uuid.UUID) (*schema.TransactionHeader, error)
	List(ctx context.Context, orgID uuid.UUID, filter schema.TransactionFilter) ([]schema.TransactionHeader, int64, error)
	AdjustLines(ctx context.Context, orgID, id uuid.UUID, cmd appposting.AdjustLinesCommand, actor shared.Actor) (*appposting.AdjustResult, error)
	Post(ctx context.Context, orgID, id uuid.UUID, actor shared.Actor) (*posting.PostedReceipt, error)
	Cancel(ctx context.Context, orgID, id uuid.UUID, actor shared.Actor) (*schema.TransactionHeader, error)
	Approve(ctx context.Context, orgID, id uuid.UUID, actor shared.Actor) (*schema.TransactionHeader, error)
	Reverse(ctx context.Context, orgID, id uuid.UUID, cmd appposting.ReverseCommand, actor shared.Actor) (*appposting.ReverseResult, error)
}

// TransactionHandler handles transaction endpoints
type TransactionHandler struct {
	BaseHandler
	svc TransactionService
}

// NewTransactionHandler creates a new TransactionHandler
func NewTransactionHandler(svc TransactionService) *TransactionHandler {
	return &TransactionHandler{svc: svc}
}

// ListTransactionsRequest holds transaction list query parameters
type ListTransactionsRequest struct {
	dto.ListRequest
	TransactionType string `form:"transaction_type" binding:"omitempty,max=50"`
	Status          string `form:"status" binding:"omitempty,oneof=DRAFT PENDING POSTED CANCELLED BLOCKED"`
	FromDate        string `form:"from_date" binding:"omitempty,datetime=2006-01-02"`
	ToDate          string `form:"to_date" binding:"omitempty,datetime=2006-01-02"`
}

// Create handles POST /transactions. Transactions at or above the organization's
// threshold are posted immediately and answer 201 with a receipt; the rest are queued.
func (h *TransactionHandler) Create(c *gin.Context) {
	orgID, ok := h.Organization(c)
	if !ok {
		return
	}
	var cmd appposting.CreateTransactionCommand
	if !h.BindJSON(c, &cmd) {
		return
	}
	res, err := h.svc.Create(c.Request.Context(), orgID, cmd, h.Actor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if res.Receipt == nil {
		c.JSON(http.StatusAccepted, dto.NewSuccessResponse(res))
		return
	}
	h.Created(c, res)
}

// List handles GET /transactions
func (h *TransactionHandler) List(c *gin.Context) {
	orgID, ok := h.Organization(c)
	if !ok {
		return
	}
	var req ListTransactionsRequest
	if !h.BindQuery(c, &req) {
		return
	}
	filter := schema.TransactionFilter{
		Filter:          req.ToFilter(),
		TransactionType: strings.ToUpper(req.TransactionType),
	}
	if req.Status != "" {
		status := schema.TxStatus(req.Status)
		filter.Status = &status
	}
	if req.FromDate != "" {
		d, _ := time.Parse(time.DateOnly, req.FromDate)
		from := startOfDay(d)
		filter.FromDate = &from
	}
	if req.ToDate != "" {
		d, _ := time.Parse(time.DateOnly, req.ToDate)
		to := endOfDay(d)
		filter.ToDate = &to
	}
	txs, total, err := h.svc.List(c.Request.Context(), orgID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, txs, total, filter.Page, filter.PageSize)
}

// Get handles GET /transactions/:id
func (h *TransactionHandler) Get(c *gin.Context) {
	orgID, id, ok := h.scoped(c)
	if !ok {
		return
	}
	tx, err := h.svc.Get(c.Request.Context(), orgID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tx)
}

// AdjustLines handles PUT /transactions/:id/lines
func (h *TransactionHandler) AdjustLines(c *gin.Context) {
	orgID, id, ok := h.scoped(c)
	if !ok {
		return
	}
	var cmd appposting.AdjustLinesCommand
	if !h.BindJSON(c, &cmd) {
		return
	}
	res, err := h.svc.AdjustLines(c.Request.Context(), orgID, id, cmd, h.Actor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, res)
}

// Post handles POST /transactions/:id/post
func (h *TransactionHandler) Post(c *gin.Context) {
	orgID, id, ok := h.scoped(c)
	if !ok {
		return
	}
	receipt, err := h.svc.Post(c.Request.Context(), orgID, id, h.Actor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, receipt)
}

// Cancel handles POST /transactions/:id/cancel
func (h *TransactionHandler) Cancel(c *gin.Context) {
	orgID, id, ok := h.scoped(c)
	if !ok {
		return
	}
	tx, err := h.svc.Cancel(c.Request.Context(), orgID, id, h.Actor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tx)
}

// Approve handles POST /transactions/:id/approve
func (h *TransactionHandler) Approve(c *gin.Context) {
	orgID, id, ok := h.scoped(c)
	if !ok {
		return
	}
	tx, err := h.svc.Approve(c.Request.Context(), orgID, id, h.Actor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tx)
}

// Reverse handles POST /transactions/:id/reverse
func (h *TransactionHandler) Reverse(c *gin.Context) {
	orgID, id, ok := h.scoped(c)
	if !ok {
		return
	}
	var cmd appposting.ReverseCommand
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &cmd) {
		return
	}
	res, err := h.svc.Reverse(c.Request.Context(), orgID, id, cmd, h.Actor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, res)
}

func (h *TransactionHandler) scoped(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	orgID, ok := h.Organization(c)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	id, ok := h.ParamUUID(c, "id")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return orgID, id, true
}
