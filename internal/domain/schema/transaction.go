package schema

import (
	"strings"
	"time"

	"github.com/erp/platform/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionTypeJournalEntry is the transaction type of synthesized ledger entries
const TransactionTypeJournalEntry = "JOURNAL_ENTRY"

// TxStatus represents the lifecycle status of a transaction header
type TxStatus string

const (
	TxStatusDraft     TxStatus = "DRAFT"
	TxStatusPending   TxStatus = "PENDING"   // Queued for the batch poster
	TxStatusPosted    TxStatus = "POSTED"    // Immutable except for annotations
	TxStatusCancelled TxStatus = "CANCELLED" // Terminal
	TxStatusBlocked   TxStatus = "BLOCKED"   // Failed guardrails during batch posting; needs corrected lines
)

// IsValid checks if the status is a valid TxStatus
func (s TxStatus) IsValid() bool {
	switch s {
	case TxStatusDraft, TxStatusPending, TxStatusPosted, TxStatusCancelled, TxStatusBlocked:
		return true
	}
	return false
}

// String returns the string representation of TxStatus
func (s TxStatus) String() string {
	return string(s)
}

// PostableStatuses are the statuses a transaction may be posted from
var PostableStatuses = []TxStatus{TxStatusDraft, TxStatusPending}

// CancellableStatuses are the statuses a transaction may be cancelled from
var CancellableStatuses = []TxStatus{TxStatusDraft, TxStatusPending, TxStatusBlocked}

// AdjustableStatuses are the statuses whose lines may still be replaced
var AdjustableStatuses = []TxStatus{TxStatusDraft, TxStatusPending, TxStatusBlocked}

// In reports whether s is one of statuses
func (s TxStatus) In(statuses ...TxStatus) bool {
	for _, st := range statuses {
		if s == st {
			return true
		}
	}
	return false
}

// ProcessingMode selects immediate or batched posting
type ProcessingMode string

const (
	ProcessingImmediate ProcessingMode = "IMMEDIATE"
	ProcessingBatch     ProcessingMode = "BATCH"
)

// IsValid checks if the processing mode is known
func (m ProcessingMode) IsValid() bool {
	return m == ProcessingImmediate || m == ProcessingBatch
}

// LineSide is the ledger side of a transaction line
type LineSide string

const (
	SideDebit  LineSide = "DEBIT"
	SideCredit LineSide = "CREDIT"
)

// IsValid checks if the side is known
func (s LineSide) IsValid() bool {
	return s == SideDebit || s == SideCredit
}

// Opposite returns the other side
func (s LineSide) Opposite() LineSide {
	switch s {
	case SideDebit:
		return SideCredit
	case SideCredit:
		return SideDebit
	}
	return s
}

// ParseLineSide normalizes a side string; empty input yields ""
func ParseLineSide(s string) LineSide {
	return LineSide(strings.ToUpper(strings.TrimSpace(s)))
}

// TransactionLine is an itemized component of a transaction header
type TransactionLine struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID uuid.UUID       `json:"organization_id"`
	TransactionID  uuid.UUID       `json:"transaction_id"`
	LineNumber     int             `json:"line_number"`
	LineType       string          `json:"line_type"`
	Side           LineSide        `json:"side,omitempty"` // Explicit side; otherwise resolved from the smart code template
	Quantity       decimal.Decimal `json:"quantity"`
	UnitAmount     decimal.Decimal `json:"unit_amount"`
	LineAmount     decimal.Decimal `json:"line_amount"`
	SmartCode      string          `json:"smart_code"`
	EntityID       *uuid.UUID      `json:"entity_id,omitempty"`
	LineData       map[string]any  `json:"line_data,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// TransactionHeader is a business event: sale, journal entry, stock movement.
// Once posted it is immutable except for status annotations.
type TransactionHeader struct {
	shared.OrgAggregateRoot
	TransactionType string            `json:"transaction_type"`
	TransactionCode string            `json:"transaction_code"`
	TransactionDate time.Time         `json:"transaction_date"`
	TotalAmount     decimal.Decimal   `json:"total_amount"`
	Currency        string            `json:"currency"`
	Status          TxStatus          `json:"status"`
	SourceEntityID  *uuid.UUID        `json:"source_entity_id,omitempty"`
	TargetEntityID  *uuid.UUID        `json:"target_entity_id,omitempty"`
	SmartCode       string            `json:"smart_code"`
	Metadata        map[string]any    `json:"metadata,omitempty"`
	Lines           []TransactionLine `json:"lines"`

	ProcessingMode ProcessingMode `json:"processing_mode,omitempty"`
	PostingDate    *time.Time     `json:"posting_date,omitempty"`
	PostedAt       *time.Time     `json:"posted_at,omitempty"`
	PostedBy       *uuid.UUID     `json:"posted_by,omitempty"`
	JournalID      *uuid.UUID     `json:"journal_id,omitempty"`  // Synthesized ledger entry
	ReversalOf     *uuid.UUID     `json:"reversal_of,omitempty"` // Set on reversing transactions
	ReversedBy     *uuid.UUID     `json:"reversed_by,omitempty"` // Set on reversed originals

	// Batch bookkeeping
	Attempts      int        `json:"attempts"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

// NewTransactionHeader creates a DRAFT transaction with its lines
func NewTransactionHeader(
	orgID uuid.UUID,
	transactionType string,
	transactionCode string,
	transactionDate time.Time,
	totalAmount decimal.Decimal,
	smartCode string,
	lines []TransactionLine,
	actor shared.Actor,
	now time.Time,
) (*TransactionHeader, error) {
	transactionType = strings.ToUpper(strings.TrimSpace(transactionType))
	if transactionType == "" {
		return nil, shared.NewValidationError(shared.CodeInvalidInput, "Transaction type cannot be empty")
	}
	if transactionDate.IsZero() {
		transactionDate = now
	}
	h := &TransactionHeader{
		OrgAggregateRoot: shared.NewOrgAggregateRoot(orgID, actor, now),
		TransactionType:  transactionType,
		TransactionCode:  strings.TrimSpace(transactionCode),
		TransactionDate:  transactionDate,
		TotalAmount:      totalAmount,
		Status:           TxStatusDraft,
		SmartCode:        smartCode,
	}
	h.SetLines(lines, now)
	return h, nil
}

// SetLines attaches lines to the header, assigning ids and parent references
func (h *TransactionHeader) SetLines(lines []TransactionLine, now time.Time) {
	h.Lines = make([]TransactionLine, len(lines))
	for i, l := range lines {
		if l.ID == uuid.Nil {
			l.ID = uuid.New()
		}
		l.TransactionID = h.ID
		if l.CreatedAt.IsZero() {
			l.CreatedAt = now
		}
		if l.Quantity.IsZero() && !l.UnitAmount.IsZero() {
			l.Quantity = decimal.NewFromInt(1)
		}
		h.Lines[i] = l
	}
}

// IsPosted returns true once the ledger entry exists
func (h *TransactionHeader) IsPosted() bool {
	return h.Status == TxStatusPosted
}

// ReplaceLines swaps the lines of an unposted transaction. A BLOCKED transaction returns to DRAFT.
func (h *TransactionHeader) ReplaceLines(lines []TransactionLine, total *decimal.Decimal, actor shared.Actor, now time.Time) error {
	if !h.Status.In(AdjustableStatuses...) {
		return shared.NewStateError(shared.CodeInvalidState, "Lines can only be adjusted on DRAFT, PENDING or BLOCKED transactions")
	}
	h.SetLines(lines, now)
	if total != nil {
		h.TotalAmount = *total
	}
	if h.Status == TxStatusBlocked {
		h.Status = TxStatusDraft
		h.LastError = ""
	}
	h.Touch(actor, now)
	return nil
}

// MarkPending queues the transaction for batch posting at next
func (h *TransactionHeader) MarkPending(next time.Time) {
	h.Status = TxStatusPending
	h.ProcessingMode = ProcessingBatch
	h.NextAttemptAt = &next
}

// HoldForApproval returns a queued transaction to DRAFT until it is approved
func (h *TransactionHeader) HoldForApproval() {
	h.Status = TxStatusDraft
	h.ProcessingMode = ""
	h.NextAttemptAt = nil
}

// MarkPosted records the posting outcome
func (h *TransactionHeader) MarkPosted(postingDate time.Time, journalID uuid.UUID, actor shared.Actor, now time.Time) error {
	if !h.Status.In(PostableStatuses...) {
		return shared.NewStateError(shared.CodeInvalidState, "Only DRAFT or PENDING transactions can be posted")
	}
	h.Status = TxStatusPosted
	h.PostingDate = &postingDate
	h.PostedAt = &now
	h.PostedBy = &actor.ID
	h.JournalID = &journalID
	h.NextAttemptAt = nil
	h.LastError = ""
	h.Touch(actor, now)
	return nil
}

// Cancel cancels an unposted transaction. Posted transactions are reversed instead.
func (h *TransactionHeader) Cancel(actor shared.Actor, now time.Time) error {
	if !h.Status.In(CancellableStatuses...) {
		return shared.NewStateError(shared.CodeInvalidState, "Only DRAFT, PENDING or BLOCKED transactions can be cancelled; reverse posted transactions")
	}
	h.Status = TxStatusCancelled
	h.NextAttemptAt = nil
	h.Touch(actor, now)
	return nil
}

// Block marks the transaction as failing guardrails during batch posting
func (h *TransactionHeader) Block(reason string, actor shared.Actor, now time.Time) {
	h.Status = TxStatusBlocked
	h.LastError = reason
	h.NextAttemptAt = nil
	h.Touch(actor, now)
}

// SetMetadata sets one metadata key
func (h *TransactionHeader) SetMetadata(key string, value any) {
	if h.Metadata == nil {
		h.Metadata = make(map[string]any)
	}
	h.Metadata[key] = value
}

// ReferencedEntityIDs returns every entity id referenced by the header and its lines
func (h *TransactionHeader) ReferencedEntityIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	add := func(id *uuid.UUID) {
		if id == nil || *id == uuid.Nil {
			return
		}
		if _, ok := seen[*id]; ok {
			return
		}
		seen[*id] = struct{}{}
		ids = append(ids, *id)
	}
	add(h.SourceEntityID)
	add(h.TargetEntityID)
	for i := range h.Lines {
		add(h.Lines[i].EntityID)
	}
	return ids
}
