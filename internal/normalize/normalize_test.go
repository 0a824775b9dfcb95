package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fundsync/internal/mapping"
	"github.com/sells-group/fundsync/internal/model"
)

var testNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func loadTable(t *testing.T, provider string) mapping.Table {
	t.Helper()
	set, err := mapping.Load()
	require.NoError(t, err)
	table, ok := set.Table(provider)
	require.True(t, ok)
	return table
}

func TestFundamentals_AlphaVantagePayload(t *testing.T) {
	table := loadTable(t, "alphavantage")

	payload := model.RawPayload{
		"Symbol":               "AAPL",
		"Sector":               "Technology",
		"PERatio":              "28.5",
		"ReturnOnEquityTTM":    "0.147", // already a fraction
		"OperatingMarginTTM":   "30.2",  // whole points
		"MarketCapitalization": "2750000000128.7",
		"Beta":                 "1.28",
		"SomeUnmappedKey":      "ignored",
	}

	rec := Fundamentals(table, "AAPL", payload, testNow)
	require.NotNil(t, rec)

	assert.Equal(t, "AAPL", rec.Symbol)
	assert.Equal(t, "Technology", rec.Sector)
	assert.Equal(t, model.PeriodKindSnapshot, rec.PeriodKind)
	assert.Equal(t, "2026-03-15", rec.FiscalPeriod)
	assert.Equal(t, "alphavantage", rec.Provenance)

	pe, ok := rec.Get("pe_ratio")
	require.True(t, ok)
	assert.InDelta(t, 28.5, pe, 1e-9)

	roe, ok := rec.Get("roe")
	require.True(t, ok)
	assert.InDelta(t, 0.147, roe, 1e-9)

	opm, ok := rec.Get("operating_margin")
	require.True(t, ok)
	assert.InDelta(t, 0.302, opm, 1e-9)

	// Cardinal fields are rounded to whole numbers at normalization.
	mcap, ok := rec.Get("market_cap")
	require.True(t, ok)
	assert.Equal(t, 2750000000129.0, mcap)

	assert.False(t, rec.Has("current_ratio"), "field not offered by this provider")
}

func TestFundamentals_SentinelsStayAbsent(t *testing.T) {
	table := loadTable(t, "alphavantage")

	payload := model.RawPayload{
		"Sector":  "Utilities",
		"PERatio": "None",
		"Beta":    "-",
	}
	rec := Fundamentals(table, "DUK", payload, testNow)
	require.NotNil(t, rec)
	assert.False(t, rec.Has("pe_ratio"))
	assert.False(t, rec.Has("beta"))
	assert.Equal(t, "Utilities", rec.Sector)
}

func TestFundamentals_EmptyPayload(t *testing.T) {
	table := loadTable(t, "yahoo")
	rec := Fundamentals(table, "XYZ", model.RawPayload{"irrelevant": 1}, testNow)
	assert.Nil(t, rec)
}

func TestCashFlow_YahooBreakdownRows(t *testing.T) {
	table := loadTable(t, "yahoo")

	stmt := model.StatementPayload{
		FiscalDate: "2025-12-31",
		Rows: model.RawPayload{
			"Operating Cash Flow": "110.5B",
			"Capital Expenditure": -10903000000.0,
			"Free Cash Flow":      99640999999.6,
			"An Unknown Row":      123.0,
		},
	}

	rec := CashFlow(table, "AAPL", model.FrequencyAnnual, stmt, testNow)
	require.NotNil(t, rec)
	assert.Equal(t, "2025-12-31", rec.FiscalDate)
	assert.Equal(t, model.FrequencyAnnual, rec.Frequency)
	assert.Equal(t, "yahoo", rec.Provenance)

	ocf, ok := rec.Get("operating_cash_flow")
	require.True(t, ok)
	assert.Equal(t, 110500000000.0, ocf)

	capex, ok := rec.Get("capital_expenditure")
	require.True(t, ok)
	assert.Equal(t, -10903000000.0, capex)

	fcf, ok := rec.Get("free_cash_flow")
	require.True(t, ok)
	assert.Equal(t, 99641000000.0, fcf, "cardinal rounding applies")

	assert.Len(t, rec.Values, 3)
}

func TestCashFlow_NoResolvableRows(t *testing.T) {
	table := loadTable(t, "fmp")
	stmt := model.StatementPayload{
		FiscalDate: "2025-09-30",
		Rows:       model.RawPayload{"nothing": "here"},
	}
	assert.Nil(t, CashFlow(table, "MSFT", model.FrequencyQuarterly, stmt, testNow))
}
