package posting

import (
	"time"

	"github.com/erp/platform/internal/domain/guardrail"
	"github.com/erp/platform/internal/domain/posting"
	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/domain/ucr"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineInput is one submitted transaction line. Side may be omitted when the
// line smart code template defines it.
type LineInput struct {
	OrganizationID uuid.UUID        `json:"organization_id"`
	LineNumber     int              `json:"line_number" validate:"gte=0"`
	LineType       string           `json:"line_type" validate:"max=50"`
	Side           schema.LineSide  `json:"side" validate:"omitempty,oneof=DEBIT CREDIT debit credit"`
	Quantity       *decimal.Decimal `json:"quantity"`
	UnitAmount     *decimal.Decimal `json:"unit_amount"`
	LineAmount     decimal.Decimal  `json:"line_amount"`
	SmartCode      string           `json:"smart_code"`
	EntityID       *uuid.UUID       `json:"entity_id"`
	LineData       map[string]any   `json:"line_data"`
}

// CreateTransactionCommand submits a transaction with its lines
type CreateTransactionCommand struct {
	TransactionType string          `json:"transaction_type" validate:"required,max=50"`
	TransactionCode string          `json:"transaction_code" validate:"omitempty,max=100"`
	TransactionDate *time.Time      `json:"transaction_date"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Currency        string          `json:"currency" validate:"omitempty,len=3"`
	SmartCode       string          `json:"smart_code"`
	SourceEntityID  *uuid.UUID      `json:"source_entity_id"`
	TargetEntityID  *uuid.UUID      `json:"target_entity_id"`
	Metadata        map[string]any  `json:"metadata"`
	Lines           []LineInput     `json:"lines" validate:"dive"`
}

// AdjustLinesCommand replaces the lines of an unposted transaction
type AdjustLinesCommand struct {
	Lines       []LineInput      `json:"lines" validate:"dive"`
	TotalAmount *decimal.Decimal `json:"total_amount"`
}

// ReverseCommand reverses a posted transaction
type ReverseCommand struct {
	PostingDate *time.Time `json:"posting_date"`
	Reason      string     `json:"reason" validate:"max=500"`
}

// CreateResult is the outcome of submitting a transaction
type CreateResult struct {
	Transaction     *schema.TransactionHeader `json:"transaction"`
	Receipt         *posting.PostedReceipt    `json:"receipt,omitempty"`
	Approval        *ucr.Decision             `json:"approval,omitempty"`
	PostingDecision *ucr.Decision             `json:"posting_decision,omitempty"`
	Fixes           []guardrail.Autofix       `json:"autofixes,omitempty"`
}

// AdjustResult is the outcome of replacing lines
type AdjustResult struct {
	Transaction *schema.TransactionHeader `json:"transaction"`
	Fixes       []guardrail.Autofix       `json:"autofixes,omitempty"`
}

// ReverseResult is the outcome of a reversal
type ReverseResult struct {
	Original *schema.TransactionHeader `json:"original"`
	Reversal *schema.TransactionHeader `json:"reversal"`
	Receipt  posting.PostedReceipt     `json:"receipt"`
}

func toLines(inputs []LineInput) []schema.TransactionLine {
	lines := make([]schema.TransactionLine, len(inputs))
	for i, in := range inputs {
		l := schema.TransactionLine{
			OrganizationID: in.OrganizationID,
			LineNumber:     in.LineNumber,
			LineType:       in.LineType,
			Side:           schema.ParseLineSide(string(in.Side)),
			LineAmount:     in.LineAmount,
			SmartCode:      in.SmartCode,
			EntityID:       in.EntityID,
			LineData:       in.LineData,
		}
		if in.Quantity != nil {
			l.Quantity = *in.Quantity
		}
		if in.UnitAmount != nil {
			l.UnitAmount = *in.UnitAmount
		}
		if l.UnitAmount.IsZero() && !l.LineAmount.IsZero() {
			l.UnitAmount = l.LineAmount
			if l.Quantity.IsZero() {
				l.Quantity = decimal.NewFromInt(1)
			}
		}
		lines[i] = l
	}
	return lines
}
