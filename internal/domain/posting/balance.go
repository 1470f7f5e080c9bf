package posting

import (
	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/domain/smartcode"
	"github.com/shopspring/decimal"
)

// DefaultTolerance is the rounding tolerance for the debit/credit balance check
var DefaultTolerance = decimal.RequireFromString("0.005")

// ResolveLineSide returns the explicit side of a line, falling back to its smart code template
func ResolveLineSide(reg *smartcode.Registry, line schema.TransactionLine) schema.LineSide {
	if line.Side.IsValid() {
		return line.Side
	}
	if reg == nil || line.SmartCode == "" {
		return ""
	}
	cls, err := reg.Classify(line.SmartCode)
	if err != nil {
		return ""
	}
	return cls.LineSide
}

// Totals is the debit/credit aggregation of a set of lines
type Totals struct {
	Debit   decimal.Decimal
	Credit  decimal.Decimal
	Unsided []int // line numbers with no resolvable side
}

// Imbalance returns debit minus credit
func (t Totals) Imbalance() decimal.Decimal {
	return t.Debit.Sub(t.Credit)
}

// Balanced reports whether |debit - credit| <= tolerance
func (t Totals) Balanced(tolerance decimal.Decimal) bool {
	return t.Imbalance().Abs().LessThanOrEqual(tolerance)
}

// SumLines aggregates line amounts by resolved side
func SumLines(reg *smartcode.Registry, lines []schema.TransactionLine) Totals {
	totals := Totals{Debit: decimal.Zero, Credit: decimal.Zero}
	for _, l := range lines {
		switch ResolveLineSide(reg, l) {
		case schema.SideDebit:
			totals.Debit = totals.Debit.Add(l.LineAmount)
		case schema.SideCredit:
			totals.Credit = totals.Credit.Add(l.LineAmount)
		default:
			totals.Unsided = append(totals.Unsided, l.LineNumber)
		}
	}
	return totals
}

// WithinTolerance reports whether a and b differ by at most tolerance
func WithinTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

// MaterializeSides writes the resolved side onto every line that has none
func MaterializeSides(reg *smartcode.Registry, lines []schema.TransactionLine) {
	for i := range lines {
		if !lines[i].Side.IsValid() {
			lines[i].Side = ResolveLineSide(reg, lines[i])
		}
	}
}
