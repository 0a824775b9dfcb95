package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fundsync/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_UpsertFundamentals_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := validFundamental()

	stats, err := st.UpsertFundamentals(ctx, []model.FundamentalRecord{rec})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Saved)
	assert.Equal(t, 0, stats.Duplicates)

	// second write with the same natural key overwrites, never duplicates
	rec.Values["pe_ratio"] = 29.0
	stats, err = st.UpsertFundamentals(ctx, []model.FundamentalRecord{rec})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Saved)
	assert.Equal(t, 1, stats.Duplicates)

	symbols, err := st.RecentFundamentalSymbols(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, symbols)
}

func TestSQLite_UpsertFundamentals_DifferentProvenanceIsNewRow(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := validFundamental()
	b := validFundamental()
	b.Provenance = "alphavantage,fmp"

	stats, err := st.UpsertFundamentals(ctx, []model.FundamentalRecord{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Saved)
	assert.Equal(t, 0, stats.Duplicates)
}

func TestSQLite_UpsertFundamentals_RejectionsRecorded(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	good := validFundamental()
	bad := validFundamental()
	bad.Symbol = "toolongsymbol"

	stats, err := st.UpsertFundamentals(ctx, []model.FundamentalRecord{good, bad})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Saved)
	require.Len(t, stats.Rejected, 1)
	assert.Contains(t, stats.Rejected[0], "invalid symbol")
}

func TestSQLite_UpsertCashFlows_AndStoredPeriods(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	recs := []model.CashFlowRecord{
		{
			Symbol: "AAPL", Frequency: model.FrequencyQuarterly, FiscalDate: "2026-06-30",
			Provenance: "fmp", Values: map[string]float64{"operating_cash_flow": 26000000000.4},
		},
		{
			Symbol: "AAPL", Frequency: model.FrequencyQuarterly, FiscalDate: "2026-03-31",
			Provenance: "fmp", Values: map[string]float64{"operating_cash_flow": 23000000000},
		},
		{
			Symbol: "AAPL", Frequency: model.FrequencyAnnual, FiscalDate: "2025-09-30",
			Provenance: "fmp", Values: map[string]float64{"operating_cash_flow": 110000000000},
		},
	}
	stats, err := st.UpsertCashFlows(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Saved)

	dates, err := st.StoredCashFlowPeriods(ctx, "AAPL", model.FrequencyQuarterly, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"2026-06-30", "2026-03-31"}, dates)

	// annual periods are invisible to the quarterly guard
	dates, err = st.StoredCashFlowPeriods(ctx, "AAPL", model.FrequencyAnnual, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-09-30"}, dates)
}

func TestSQLite_Universe_SeedAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	added, err := st.SeedUniverse(ctx, []string{"MSFT", "AAPL", "not valid!", "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, 2, added) // invalid skipped, duplicate ignored

	symbols, err := st.ListUniverse(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, symbols)

	page, err := st.ListUniverse(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"MSFT"}, page)
}

func TestSQLite_SaveRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run := model.IngestRun{
		ID:         "run-42",
		Kind:       model.RunKindCashFlow,
		Success:    true,
		Report:     []byte(`{"processed":1}`),
		StartedAt:  time.Now().Add(-time.Minute).UTC(),
		FinishedAt: time.Now().UTC(),
	}
	require.NoError(t, st.SaveRun(ctx, run))

	// same id twice violates the primary key
	assert.Error(t, st.SaveRun(ctx, run))
}

func TestSQLite_FreshnessCutoff(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := validFundamental()
	_, err := st.UpsertFundamentals(ctx, []model.FundamentalRecord{rec})
	require.NoError(t, err)

	// a cutoff in the future sees nothing
	symbols, err := st.RecentFundamentalSymbols(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, symbols)
}
