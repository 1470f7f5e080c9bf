package guardrail

import (
	"context"
	"fmt"
	"strconv"

	"github.com/erp/platform/internal/domain/posting"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/erp/platform/internal/domain/smartcode"
	"github.com/shopspring/decimal"
)

// BalanceCheck requires financial-posting transactions to balance debits against
// credits within the organization tolerance, and the header total to equal the debit sum.
type BalanceCheck struct {
	Registry         *smartcode.Registry
	DefaultTolerance decimal.Decimal
}

// Name returns the rule name
func (BalanceCheck) Name() string { return RuleBalance }

// Applies to transactions whose smart code classifies as financial posting
func (c BalanceCheck) Applies(req *Request) bool {
	if req.Transaction == nil || req.Operation == OperationStatus {
		return false
	}
	cls, err := c.Registry.Classify(req.Transaction.SmartCode)
	return err == nil && cls.IsFinancialPosting
}

// Run executes the check
func (c BalanceCheck) Run(_ context.Context, req *Request) (Result, error) {
	var res Result
	h := req.Transaction
	tolerance := req.Settings.Tolerance(c.DefaultTolerance)

	if len(h.Lines) == 0 {
		res.block(shared.Violation{
			Rule: RuleBalance, Code: shared.CodeImbalance, Field: "lines",
			Message: "financial transaction has no lines", Value: "0", Expected: ">= 2 lines",
		})
		return res, nil
	}

	for i, l := range h.Lines {
		if l.LineAmount.IsNegative() {
			res.block(shared.Violation{
				Rule: RuleBalance, Code: shared.CodeImbalance, Field: fmt.Sprintf("lines[%d].line_amount", i),
				Message: "line amount cannot be negative; use the opposite side", Value: l.LineAmount.String(), Expected: ">= 0",
			})
		}
	}

	totals := posting.SumLines(c.Registry, h.Lines)
	for _, n := range totals.Unsided {
		res.block(shared.Violation{
			Rule: RuleBalance, Code: shared.CodeImbalance, Field: "lines[line_number=" + strconv.Itoa(n) + "].side",
			Message: "line has no debit/credit side and its smart code template defines none", Expected: "DEBIT|CREDIT",
		})
	}

	if !totals.Balanced(tolerance) {
		res.block(shared.Violation{
			Rule:     RuleBalance,
			Code:     shared.CodeImbalance,
			Field:    "lines",
			Message:  fmt.Sprintf("debits %s do not equal credits %s; imbalance %s", totals.Debit.StringFixed(2), totals.Credit.StringFixed(2), totals.Imbalance().StringFixed(2)),
			Value:    totals.Imbalance().String(),
			Expected: "0 ± " + tolerance.String(),
		})
	}

	if !posting.WithinTolerance(h.TotalAmount, totals.Debit, tolerance) {
		res.block(shared.Violation{
			Rule:     RuleBalance,
			Code:     shared.CodeImbalance,
			Field:    "total_amount",
			Message:  fmt.Sprintf("total amount %s does not equal line debits %s; imbalance %s", h.TotalAmount.StringFixed(2), totals.Debit.StringFixed(2), h.TotalAmount.Sub(totals.Debit).StringFixed(2)),
			Value:    h.TotalAmount.String(),
			Expected: totals.Debit.String(),
		})
	}
	return res, nil
}
