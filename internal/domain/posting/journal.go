package posting

import (
	"fmt"
	"strconv"
	"time"

	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/erp/platform/internal/domain/smartcode"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Smart codes of synthesized ledger rows
const (
	DefaultJournalSmartCode  = "FIN.GL.JOURNAL.AUTO.v1"
	ReversalJournalSmartCode = "FIN.GL.JOURNAL.REVERSAL.v1"
	DebitLineSmartCode       = "FIN.GL.LINE.DEBIT.v1"
	CreditLineSmartCode      = "FIN.GL.LINE.CREDIT.v1"
)

// Metadata keys written on posted transactions
const (
	MetaSourceTransactionID   = "source_transaction_id"
	MetaSourceTransactionCode = "source_transaction_code"
	MetaReversalOf            = "reversal_of"
	MetaReversedBy            = "reversed_by"
	MetaApprovalDecision      = "approval_decision"
	MetaPostingDecision       = "posting_decision"
	MetaApprovals             = "approvals"
)

// LineSmartCode returns the ledger line smart code for a side
func LineSmartCode(side schema.LineSide) string {
	if side == schema.SideCredit {
		return CreditLineSmartCode
	}
	return DebitLineSmartCode
}

// PlannedLine is one ledger line before its account is resolved
type PlannedLine struct {
	SourceLine  int
	Side        schema.LineSide
	Amount      decimal.Decimal
	AccountID   *uuid.UUID // From the line's entity reference
	AccountCode string     // From the line's smart code template
}

// PlanJournal derives the ledger lines of a financial transaction.
// A template account code takes precedence over the line's entity reference.
func PlanJournal(reg *smartcode.Registry, h *schema.TransactionHeader) ([]PlannedLine, error) {
	planned := make([]PlannedLine, 0, len(h.Lines))
	var violations []shared.Violation
	for i, l := range h.Lines {
		side := ResolveLineSide(reg, l)
		if !side.IsValid() {
			violations = append(violations, shared.Violation{
				Rule: "journal", Code: shared.CodeImbalance, Field: fmt.Sprintf("lines[%d].side", i),
				Message: "line side cannot be resolved", Expected: "DEBIT|CREDIT",
			})
			continue
		}
		p := PlannedLine{SourceLine: l.LineNumber, Side: side, Amount: l.LineAmount}
		if cls, err := reg.Classify(l.SmartCode); err == nil && cls.AccountCode != "" {
			p.AccountCode = cls.AccountCode
		} else if l.EntityID != nil {
			id := *l.EntityID
			p.AccountID = &id
		} else {
			violations = append(violations, shared.Violation{
				Rule: "journal", Code: shared.CodeAccountNotFound, Field: fmt.Sprintf("lines[%d]", i),
				Message: "line maps to no GL account", Expected: "template account_code or GL_ACCOUNT entity_id",
			})
			continue
		}
		planned = append(planned, p)
	}
	if len(violations) > 0 {
		return nil, shared.NewGuardrailViolation("journal cannot be synthesized", violations)
	}
	return planned, nil
}

// ResolvedLine is a ledger line with its GL account
type ResolvedLine struct {
	SourceLine int
	Side       schema.LineSide
	Amount     decimal.Decimal
	AccountID  uuid.UUID
}

// JournalInput describes a journal entry to synthesize
type JournalInput struct {
	Source      *schema.TransactionHeader
	Lines       []ResolvedLine
	SmartCode   string
	Code        string
	PostingDate time.Time
	Actor       shared.Actor
	Now         time.Time
}

// BuildJournal synthesizes a posted JOURNAL_ENTRY for a source transaction
func BuildJournal(in JournalInput) (*schema.TransactionHeader, error) {
	smartCode := in.SmartCode
	if smartCode == "" {
		smartCode = DefaultJournalSmartCode
	}
	lines := make([]schema.TransactionLine, len(in.Lines))
	debit := decimal.Zero
	for i, rl := range in.Lines {
		account := rl.AccountID
		if rl.Side == schema.SideDebit {
			debit = debit.Add(rl.Amount)
		}
		lines[i] = schema.TransactionLine{
			OrganizationID: in.Source.OrganizationID,
			LineNumber:     i + 1,
			LineType:       "GL_" + string(rl.Side),
			Side:           rl.Side,
			Quantity:       decimal.NewFromInt(1),
			UnitAmount:     rl.Amount,
			LineAmount:     rl.Amount,
			SmartCode:      LineSmartCode(rl.Side),
			EntityID:       &account,
			LineData:       map[string]any{"source_line_number": rl.SourceLine},
		}
	}
	journal, err := schema.NewTransactionHeader(
		in.Source.OrganizationID,
		schema.TransactionTypeJournalEntry,
		in.Code,
		in.PostingDate,
		debit,
		smartCode,
		lines,
		in.Actor,
		in.Now,
	)
	if err != nil {
		return nil, err
	}
	journal.Currency = in.Source.Currency
	journal.SourceEntityID = in.Source.SourceEntityID
	journal.TargetEntityID = in.Source.TargetEntityID
	journal.ProcessingMode = in.Source.ProcessingMode
	journal.SetMetadata(MetaSourceTransactionID, in.Source.ID.String())
	journal.SetMetadata(MetaSourceTransactionCode, in.Source.TransactionCode)
	if err := journal.MarkPosted(in.PostingDate, journal.ID, in.Actor, in.Now); err != nil {
		return nil, err
	}
	return journal, nil
}

// ReversalInput describes the reversal of a posted transaction
type ReversalInput struct {
	Original    *schema.TransactionHeader
	Code        string
	PostingDate time.Time
	Actor       shared.Actor
	Now         time.Time
}

// BuildReversal creates a transaction mirroring the original with every line side swapped.
// Line sides are made explicit so that the reversal balances independently of templates.
func BuildReversal(reg *smartcode.Registry, in ReversalInput) (*schema.TransactionHeader, error) {
	orig := in.Original
	if !orig.IsPosted() {
		return nil, shared.NewStateError(shared.CodeInvalidState, "Only POSTED transactions can be reversed")
	}
	if orig.ReversedBy != nil {
		return nil, shared.NewStateError(shared.CodeAlreadyReversed, "Transaction "+orig.TransactionCode+" is already reversed")
	}
	lines := make([]schema.TransactionLine, len(orig.Lines))
	for i, l := range orig.Lines {
		side := ResolveLineSide(reg, l)
		if !side.IsValid() {
			return nil, shared.NewGuardrailViolation("reversal cannot resolve line side", []shared.Violation{{
				Rule: "reversal", Code: shared.CodeImbalance, Field: "lines[" + strconv.Itoa(i) + "].side",
				Message: "line side cannot be resolved", Expected: "DEBIT|CREDIT",
			}})
		}
		rl := l
		rl.ID = uuid.Nil
		rl.TransactionID = uuid.Nil
		rl.CreatedAt = time.Time{}
		rl.Side = side.Opposite()
		if l.EntityID != nil {
			id := *l.EntityID
			rl.EntityID = &id
		}
		lines[i] = rl
	}
	rev, err := schema.NewTransactionHeader(orig.OrganizationID, orig.TransactionType, in.Code, in.PostingDate, orig.TotalAmount, orig.SmartCode, lines, in.Actor, in.Now)
	if err != nil {
		return nil, err
	}
	id := orig.ID
	rev.ReversalOf = &id
	rev.Currency = orig.Currency
	rev.SourceEntityID = orig.SourceEntityID
	rev.TargetEntityID = orig.TargetEntityID
	rev.SetMetadata(MetaReversalOf, orig.ID.String())
	return rev, nil
}
