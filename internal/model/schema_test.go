package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditFieldCount(t *testing.T) {
	t.Parallel()
	assert.Len(t, FundamentalFields, 22)
	assert.Len(t, AuditFields(), 18)
}

func TestFieldByName(t *testing.T) {
	t.Parallel()

	def, ok := FieldByName("market_cap")
	require.True(t, ok)
	assert.Equal(t, KindCardinal, def.Kind)

	def, ok = FieldByName("roe")
	require.True(t, ok)
	assert.Equal(t, KindPercent, def.Kind)

	_, ok = FieldByName("nonexistent_metric")
	assert.False(t, ok)
}

func TestCashFlowColumnsAllCardinal(t *testing.T) {
	t.Parallel()
	assert.Len(t, CardinalFields(CashFlowFields), len(CashFlowFields))
}

func TestValidSymbol(t *testing.T) {
	t.Parallel()

	for _, sym := range []string{"A", "AAPL", "BRK.B", "RDS-A", "0700"} {
		assert.True(t, ValidSymbol(sym), sym)
	}
	for _, sym := range []string{"", "aapl", "TOO LONG SY", "ABCDEFGHIJK", "AA PL", "MS$FT"} {
		assert.False(t, ValidSymbol(sym), sym)
	}
}

func TestRecordGetSetAbsent(t *testing.T) {
	t.Parallel()

	var rec FundamentalRecord
	_, ok := rec.Get("pe_ratio")
	assert.False(t, ok)

	rec.Set("pe_ratio", 0)
	v, ok := rec.Get("pe_ratio")
	require.True(t, ok, "zero is a real value, not absent")
	assert.Zero(t, v)
	assert.True(t, rec.Has("pe_ratio"))
}
