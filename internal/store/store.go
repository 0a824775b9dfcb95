// Package store is the persistence gateway: idempotent upserts keyed on
// each record family's composite natural key, plus the read-only guard
// queries the scheduler uses for freshness and duplicate decisions.
package store

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fundsync/internal/model"
)

// ChunkSize bounds how many records one write pass groups together.
const ChunkSize = 5

// maxFutureDays bounds how far in the future a fiscal date may lie
// before the record is rejected as implausible.
const maxFutureDays = 366

const dateLayout = "2006-01-02"

// UpsertStats summarizes one upsert pass. Rejected records are data, not
// errors: a rejection never fails the batch.
type UpsertStats struct {
	Saved      int      `json:"saved"`
	Duplicates int      `json:"duplicates"`
	Rejected   []string `json:"rejected,omitempty"` // "KEY: reason"
}

// Store defines the persistence contract for the ingestion pipeline.
// Both backends implement identical semantics; only SQL dialect differs.
type Store interface {
	// Upserts. Existing rows matching the composite natural key are
	// overwritten in place, never duplicated.
	UpsertFundamentals(ctx context.Context, records []model.FundamentalRecord) (UpsertStats, error)
	UpsertCashFlows(ctx context.Context, records []model.CashFlowRecord) (UpsertStats, error)

	// Guard queries (read-only).
	RecentFundamentalSymbols(ctx context.Context, since time.Time) ([]string, error)
	RecentCashFlowSymbols(ctx context.Context, freq model.Frequency, since time.Time) ([]string, error)
	StoredCashFlowPeriods(ctx context.Context, symbol string, freq model.Frequency, since time.Time) ([]string, error)

	// Universe.
	ListUniverse(ctx context.Context, limit, offset int) ([]string, error)
	SeedUniverse(ctx context.Context, symbols []string) (int, error)

	// Run audit.
	SaveRun(ctx context.Context, run model.IngestRun) error

	// Lifecycle.
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// validateFundamental enforces the write-side record rules: a valid
// symbol, a strict fiscal date no more than maxFutureDays out, a
// provenance tag, and at least one metric value.
func validateFundamental(rec *model.FundamentalRecord, now time.Time) error {
	if !model.ValidSymbol(rec.Symbol) {
		return eris.Errorf("invalid symbol %q", rec.Symbol)
	}
	if rec.PeriodKind == "" {
		return eris.New("missing period kind")
	}
	if err := validateDate(rec.FiscalPeriod, now); err != nil {
		return err
	}
	if rec.Provenance == "" {
		return eris.New("missing provenance")
	}
	if len(rec.Values) == 0 {
		return eris.New("no metric values")
	}
	return nil
}

func validateCashFlow(rec *model.CashFlowRecord, now time.Time) error {
	if !model.ValidSymbol(rec.Symbol) {
		return eris.Errorf("invalid symbol %q", rec.Symbol)
	}
	if rec.Frequency != model.FrequencyAnnual && rec.Frequency != model.FrequencyQuarterly {
		return eris.Errorf("invalid frequency %q", rec.Frequency)
	}
	if err := validateDate(rec.FiscalDate, now); err != nil {
		return err
	}
	if rec.Provenance == "" {
		return eris.New("missing provenance")
	}
	if len(rec.Values) == 0 {
		return eris.New("no metric values")
	}
	return nil
}

// validateDate requires the strict YYYY-MM-DD layout and rejects dates
// implausibly far in the future. Historical dates are always accepted.
func validateDate(s string, now time.Time) error {
	d, err := time.Parse(dateLayout, s)
	if err != nil || d.Format(dateLayout) != s {
		return eris.Errorf("invalid date %q", s)
	}
	if d.After(now.AddDate(0, 0, maxFutureDays)) {
		return eris.Errorf("date %q too far in the future", s)
	}
	return nil
}

// roundCardinals re-rounds cardinal fields before write. Upstream stages
// already round; this keeps whole-number invariants independent of them.
func roundCardinals(values map[string]float64, defs []model.FieldDef) {
	for _, name := range model.CardinalFields(defs) {
		if v, ok := values[name]; ok {
			values[name] = math.Round(v)
		}
	}
}

// chunk splits items into ChunkSize groups for the write passes.
func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for len(items) > size {
		out = append(out, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
