package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fundsync/internal/model"
)

func TestLoad_AllProvidersPresent(t *testing.T) {
	set, err := Load()
	require.NoError(t, err)

	for _, p := range []string{"alphavantage", "fmp", "finnhub", "yahoo"} {
		_, ok := set.Table(p)
		assert.True(t, ok, "missing table for %s", p)
	}
}

func TestLoad_AliasesReferenceKnownFields(t *testing.T) {
	set, err := Load()
	require.NoError(t, err)

	for _, name := range set.Providers() {
		table, _ := set.Table(name)
		for canonical := range table.Fields {
			_, ok := model.FieldByName(canonical)
			assert.True(t, ok, "%s maps unknown field %s", name, canonical)
		}
	}
}

func TestResolve_FirstAliasWins(t *testing.T) {
	set, err := Load()
	require.NoError(t, err)
	table, _ := set.Table("alphavantage")

	payload := model.RawPayload{
		"PERatio":    "12.4",
		"TrailingPE": "99.9", // later alias, must not win
	}
	v, ok := table.Resolve(payload, "pe_ratio")
	require.True(t, ok)
	assert.Equal(t, "12.4", v)
}

func TestResolve_SkipsNilAndFallsThrough(t *testing.T) {
	set, err := Load()
	require.NoError(t, err)
	table, _ := set.Table("alphavantage")

	payload := model.RawPayload{
		"PERatio":    nil,
		"TrailingPE": "18.2",
	}
	v, ok := table.Resolve(payload, "pe_ratio")
	require.True(t, ok)
	assert.Equal(t, "18.2", v)
}

func TestResolve_FalsyValueStillMatches(t *testing.T) {
	set, err := Load()
	require.NoError(t, err)
	table, _ := set.Table("yahoo")

	payload := model.RawPayload{"trailingPE": 0.0}
	v, ok := table.Resolve(payload, "pe_ratio")
	require.True(t, ok)
	assert.Equal(t, 0.0, v)
}

func TestResolve_AbsentField(t *testing.T) {
	set, err := Load()
	require.NoError(t, err)
	table, _ := set.Table("finnhub")

	_, ok := table.Resolve(model.RawPayload{}, "enterprise_value")
	assert.False(t, ok)
}

func TestSector_ProviderSpecificKeys(t *testing.T) {
	set, err := Load()
	require.NoError(t, err)

	av, _ := set.Table("alphavantage")
	assert.Equal(t, "Technology", av.Sector(model.RawPayload{"Sector": "Technology"}))

	yh, _ := set.Table("yahoo")
	assert.Equal(t, "Energy", yh.Sector(model.RawPayload{"sector": "Energy"}))
	assert.Equal(t, "", yh.Sector(model.RawPayload{"Sector": "Energy"}))
}

func TestColumn_BreakdownLabels(t *testing.T) {
	set, err := Load()
	require.NoError(t, err)
	yh, _ := set.Table("yahoo")

	col, ok := yh.Column("Operating Cash Flow")
	require.True(t, ok)
	assert.Equal(t, "operating_cash_flow", col)

	_, ok = yh.Column("Unknown Row")
	assert.False(t, ok)
}
