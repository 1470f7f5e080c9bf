package handler

import (
	"context"
	"time"

	"github.com/erp/platform/internal/domain/posting"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ReportService is the financial report use-case surface
type ReportService interface {
	TrialBalance(ctx context.Context, orgID uuid.UUID, asOf time.Time) (*posting.TrialBalance, error)
	ProfitAndLoss(ctx context.Context, orgID uuid.UUID, from, to time.Time) (*posting.ProfitAndLoss, error)
	BalanceSheet(ctx context.Context, orgID uuid.UUID, asOf time.Time) (*posting.BalanceSheet, error)
}

// ReportHandler handles financial report endpoints. Dates are YYYY-MM-DD and inclusive.
type ReportHandler struct {
	BaseHandler
	svc ReportService
	now func() time.Time
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(svc ReportService) *ReportHandler {
	return &ReportHandler{svc: svc, now: func() time.Time { return time.Now().UTC() }}
}

// TrialBalance handles GET /reports/trial-balance?as_of=
func (h *ReportHandler) TrialBalance(c *gin.Context) {
	orgID, ok := h.Organization(c)
	if !ok {
		return
	}
	asOf, ok := h.QueryDate(c, "as_of", h.now())
	if !ok {
		return
	}
	tb, err := h.svc.TrialBalance(c.Request.Context(), orgID, asOf)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tb)
}

// ProfitAndLoss handles GET /reports/profit-and-loss?from=&to=. The period defaults to the current month.
func (h *ReportHandler) ProfitAndLoss(c *gin.Context) {
	orgID, ok := h.Organization(c)
	if !ok {
		return
	}
	now := h.now()
	to, ok := h.QueryDate(c, "to", now)
	if !ok {
		return
	}
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	from, ok := h.QueryDate(c, "from", monthStart)
	if !ok {
		return
	}
	from = startOfDay(from)
	if from.After(to) {
		h.BadRequest(c, "from must not be after to")
		return
	}
	pl, err := h.svc.ProfitAndLoss(c.Request.Context(), orgID, from, to)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, pl)
}

// BalanceSheet handles GET /reports/balance-sheet?as_of=
func (h *ReportHandler) BalanceSheet(c *gin.Context) {
	orgID, ok := h.Organization(c)
	if !ok {
		return
	}
	asOf, ok := h.QueryDate(c, "as_of", h.now())
	if !ok {
		return
	}
	bs, err := h.svc.BalanceSheet(c.Request.Context(), orgID, asOf)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, bs)
}
