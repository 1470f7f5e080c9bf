package schema

import (
	"testing"

	"github.com/erp/platform/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHeader(t *testing.T) *TransactionHeader {
	t.Helper()
	orgID := uuid.New()
	entityID := uuid.New()
	h, err := NewTransactionHeader(orgID, "sale", "", testNow, decimal.NewFromInt(126), "SALES.POS.TXN.RETAIL.v1", []TransactionLine{
		{OrganizationID: orgID, LineNumber: 1, LineType: "service", LineAmount: decimal.NewFromInt(120), EntityID: &entityID},
		{OrganizationID: orgID, LineNumber: 2, LineType: "tax", LineAmount: decimal.NewFromInt(6)},
	}, testActor(), testNow)
	require.NoError(t, err)
	return h
}

func TestNewTransactionHeader(t *testing.T) {
	h := newTestHeader(t)
	assert.Equal(t, "SALE", h.TransactionType)
	assert.Equal(t, TxStatusDraft, h.Status)
	for _, l := range h.Lines {
		assert.Equal(t, h.ID, l.TransactionID)
		assert.NotEqual(t, uuid.Nil, l.ID)
	}

	_, err := NewTransactionHeader(uuid.New(), " ", "", testNow, decimal.Zero, "", nil, testActor(), testNow)
	assert.Error(t, err)
}

func TestTransactionHeader_Lifecycle(t *testing.T) {
	t.Run("post from draft", func(t *testing.T) {
		h := newTestHeader(t)
		journalID := uuid.New()
		require.NoError(t, h.MarkPosted(testNow, journalID, testActor(), testNow))
		assert.True(t, h.IsPosted())
		assert.Equal(t, journalID, *h.JournalID)

		err := h.MarkPosted(testNow, journalID, testActor(), testNow)
		assert.Equal(t, shared.KindState, shared.KindOf(err))
		assert.Error(t, h.Cancel(testActor(), testNow))
	})

	t.Run("blocked returns to draft on adjustment", func(t *testing.T) {
		h := newTestHeader(t)
		h.MarkPending(testNow)
		h.Block("imbalance", testActor(), testNow)
		assert.Equal(t, TxStatusBlocked, h.Status)

		total := decimal.NewFromInt(10)
		require.NoError(t, h.ReplaceLines([]TransactionLine{{LineNumber: 1, LineAmount: total}}, &total, testActor(), testNow))
		assert.Equal(t, TxStatusDraft, h.Status)
		assert.Empty(t, h.LastError)
		assert.Len(t, h.Lines, 1)
		assert.True(t, h.TotalAmount.Equal(total))
	})

	t.Run("cancel pending", func(t *testing.T) {
		h := newTestHeader(t)
		h.MarkPending(testNow)
		require.NoError(t, h.Cancel(testActor(), testNow))
		assert.Equal(t, TxStatusCancelled, h.Status)
		assert.Nil(t, h.NextAttemptAt)
		assert.Error(t, h.ReplaceLines(nil, nil, testActor(), testNow))
	})
}

func TestTransactionHeader_ReferencedEntityIDs(t *testing.T) {
	h := newTestHeader(t)
	src := *h.Lines[0].EntityID
	h.SourceEntityID = &src
	ids := h.ReferencedEntityIDs()
	assert.Equal(t, []uuid.UUID{src}, ids)
}

func TestLineSide(t *testing.T) {
	assert.Equal(t, SideCredit, SideDebit.Opposite())
	assert.Equal(t, SideDebit, ParseLineSide(" debit "))
	assert.False(t, ParseLineSide("left").IsValid())
}
