package smartcode

import (
	"sync"
	"testing"

	"github.com/erp/platform/internal/domain/schema"
	"github.com/erp/platform/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(
		Template{Prefix: "SALES.POS.TXN", Handler: HandlerFinancialPosting, JournalSmartCode: "FIN.GL.JOURNAL.AUTO.v1"},
		Template{Prefix: "SALES.POS.LINE.SERVICE", Handler: HandlerFinancialPosting, LineSide: schema.SideCredit, AccountCode: "4100"},
		Template{Prefix: "SALES.POS.TXN.REFUND", Handler: HandlerFinancialPosting, RequiresApproval: true, ApprovalFamily: "refund_approval", LatestVersion: 2},
		Template{Prefix: "CRM.CUSTOMER", Handler: HandlerEntity},
	)
	require.NoError(t, err)
	return r
}

func TestRegistry_Validate(t *testing.T) {
	r := newTestRegistry(t)

	t.Run("resolves registered namespace", func(t *testing.T) {
		v, err := r.Validate("SALES.POS.TXN.RETAIL.v1")
		require.NoError(t, err)
		assert.Equal(t, []string{"SALES", "POS", "TXN", "RETAIL"}, v.NamespaceParts)
		assert.Equal(t, 1, v.Version)
		assert.Equal(t, "SALES.POS.TXN", v.Prefix)
	})

	t.Run("longest prefix wins", func(t *testing.T) {
		v, err := r.Validate("SALES.POS.TXN.REFUND.v2")
		require.NoError(t, err)
		assert.Equal(t, "SALES.POS.TXN.REFUND", v.Prefix)
	})

	t.Run("unknown root is unregistered", func(t *testing.T) {
		_, err := r.Validate("HR.PAYROLL.RUN.MONTHLY.v1")
		require.Error(t, err)
		var de *shared.DomainError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, shared.CodeUnregisteredNS, de.Code)
	})

	t.Run("prefix must match on segment boundary", func(t *testing.T) {
		_, err := r.Validate("SALES.POS.TXNX.RETAIL.v1")
		assert.Error(t, err)
	})

	t.Run("version newer than latest is unregistered", func(t *testing.T) {
		_, err := r.Validate("SALES.POS.TXN.REFUND.v3")
		require.Error(t, err)
		var de *shared.DomainError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, shared.CodeUnregisteredNS, de.Code)
	})

	t.Run("malformed code is invalid format", func(t *testing.T) {
		_, err := r.Validate("SALES.POS.v1")
		var de *shared.DomainError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, shared.CodeInvalidFormat, de.Code)
	})
}

func TestRegistry_Classify(t *testing.T) {
	r := newTestRegistry(t)

	c, err := r.Classify("SALES.POS.TXN.REFUND.v1")
	require.NoError(t, err)
	assert.True(t, c.IsFinancialPosting)
	assert.False(t, c.IsJournal)
	assert.True(t, c.RequiresApproval)
	assert.Equal(t, "REFUND_APPROVAL", c.ApprovalFamily)

	c, err = r.Classify("SALES.POS.LINE.SERVICE.HAIRCUT.v1")
	require.NoError(t, err)
	assert.Equal(t, schema.SideCredit, c.LineSide)
	assert.Equal(t, "4100", c.AccountCode)

	c, err = r.Classify("CRM.CUSTOMER.ENTITY.RETAIL.v1")
	require.NoError(t, err)
	assert.False(t, c.IsFinancialPosting)

	_, err = r.Classify("UNKNOWN.NS.A.B.v1")
	assert.Error(t, err)
}

func TestRegistry_Register(t *testing.T) {
	r := newTestRegistry(t)

	t.Run("rejects invalid template", func(t *testing.T) {
		err := r.Register(Template{Prefix: "bad prefix", Handler: "nope"})
		require.Error(t, err)
		var de *shared.DomainError
		require.ErrorAs(t, err, &de)
		assert.Len(t, de.Violations, 2)
	})

	t.Run("approval requires family", func(t *testing.T) {
		assert.Error(t, r.Register(Template{Prefix: "X.Y", Handler: HandlerFinancialPosting, RequiresApproval: true}))
	})

	t.Run("handler registration publishes new snapshot", func(t *testing.T) {
		before := r.Len()
		require.NoError(t, r.RegisterHandler("hr.payroll", HandlerInformational))
		assert.Equal(t, before+1, r.Len())
		_, err := r.Validate("HR.PAYROLL.RUN.MONTHLY.v1")
		assert.NoError(t, err)
		tmpl, ok := r.Lookup("HR.PAYROLL")
		require.True(t, ok)
		assert.Equal(t, HandlerInformational, tmpl.Handler)
	})

	t.Run("templates are ordered by prefix", func(t *testing.T) {
		ts := r.Templates()
		for i := 1; i < len(ts); i++ {
			assert.Less(t, ts[i-1].Prefix, ts[i].Prefix)
		}
	})
}

func TestRegistry_ConcurrentReadsDuringWrites(t *testing.T) {
	r := newTestRegistry(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_, err := r.Validate("SALES.POS.TXN.RETAIL.v1")
				assert.NoError(t, err)
			}
		}()
	}
	for j := 0; j < 50; j++ {
		require.NoError(t, r.RegisterHandler("INV.STOCK", HandlerInformational))
	}
	wg.Wait()
}
