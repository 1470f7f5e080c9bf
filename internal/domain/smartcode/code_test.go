package smartcode

import (
	"testing"

	"github.com/erp/platform/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("valid codes round-trip", func(t *testing.T) {
		for _, s := range []string{
			"DOMAIN.MODULE.CATEGORY.SUBTYPE.v1",
			"SALES.POS.TXN.RETAIL.v12",
			"FIN.GL.JOURNAL.ENTRY_2.MANUAL.v3",
			"A1.B.C.D.v1",
		} {
			c, err := Parse(s)
			require.NoError(t, err, s)
			assert.Equal(t, s, c.String())
			again, err := Parse(c.String())
			require.NoError(t, err)
			assert.Equal(t, c.Key(), again.Key())
		}
	})

	invalid := []struct {
		name string
		code string
	}{
		{"empty", ""},
		{"too few segments", "FIN.GL.ACCOUNT.v1"},
		{"no version", "FIN.GL.ACCOUNT.CASH"},
		{"non numeric version", "FIN.GL.ACCOUNT.CASH.vX"},
		{"uppercase version marker", "FIN.GL.ACCOUNT.CASH.V1"},
		{"zero version", "FIN.GL.ACCOUNT.CASH.v0"},
		{"leading zero version", "FIN.GL.ACCOUNT.CASH.v01"},
		{"lowercase segment", "fin.GL.ACCOUNT.CASH.v1"},
		{"empty segment", "FIN..ACCOUNT.CASH.v1"},
		{"leading underscore", "FIN._GL.ACCOUNT.CASH.v1"},
		{"too many segments", "A.B.C.D.E.F.G.H.I.J.K.v1"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.code)
			require.Error(t, err)
			var de *shared.DomainError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, shared.CodeInvalidFormat, de.Code)
			assert.Equal(t, shared.KindValidation, de.Kind)
			require.Len(t, de.Violations, 1)
			assert.Equal(t, tt.code, de.Violations[0].Value)
		})
	}
}

func TestCode_HasPrefix(t *testing.T) {
	c := MustParse("SALES.POS.TXN.RETAIL.v1")
	assert.True(t, c.HasPrefix("SALES.POS"))
	assert.True(t, c.HasPrefix("SALES.POS.TXN.RETAIL"))
	assert.False(t, c.HasPrefix("SALES.PO"))
	assert.Equal(t, "SALES", c.Root())
}
