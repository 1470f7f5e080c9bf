package posting

import (
	"time"

	"github.com/erp/platform/internal/domain/schema"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PostedReceipt is the proof of a posting. It is derived only from persisted
// state, so posting the same transaction twice yields an identical receipt.
type PostedReceipt struct {
	TransactionID   uuid.UUID       `json:"transaction_id"`
	OrganizationID  uuid.UUID       `json:"organization_id"`
	TransactionCode string          `json:"transaction_code"`
	TransactionType string          `json:"transaction_type"`
	Status          schema.TxStatus `json:"status"`
	PostingDate     time.Time       `json:"posting_date"`
	PostedAt        time.Time       `json:"posted_at"`
	PostedBy        uuid.UUID       `json:"posted_by"`
	JournalID       uuid.UUID       `json:"journal_id"`
	JournalCode     string          `json:"journal_code"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	TotalDebit      decimal.Decimal `json:"total_debit"`
	TotalCredit     decimal.Decimal `json:"total_credit"`
	LineCount       int             `json:"line_count"`
}

// NewReceipt builds a receipt from a posted transaction and its ledger entry.
// For journal transactions the ledger entry is the transaction itself.
func NewReceipt(h, journal *schema.TransactionHeader) PostedReceipt {
	if journal == nil {
		journal = h
	}
	r := PostedReceipt{
		TransactionID:   h.ID,
		OrganizationID:  h.OrganizationID,
		TransactionCode: h.TransactionCode,
		TransactionType: h.TransactionType,
		Status:          h.Status,
		JournalID:       journal.ID,
		JournalCode:     journal.TransactionCode,
		TotalAmount:     h.TotalAmount,
		TotalDebit:      decimal.Zero,
		TotalCredit:     decimal.Zero,
		LineCount:       len(journal.Lines),
	}
	if h.PostingDate != nil {
		r.PostingDate = *h.PostingDate
	}
	if h.PostedAt != nil {
		r.PostedAt = *h.PostedAt
	}
	if h.PostedBy != nil {
		r.PostedBy = *h.PostedBy
	}
	for _, l := range journal.Lines {
		switch l.Side {
		case schema.SideDebit:
			r.TotalDebit = r.TotalDebit.Add(l.LineAmount)
		case schema.SideCredit:
			r.TotalCredit = r.TotalCredit.Add(l.LineAmount)
		}
	}
	return r
}
