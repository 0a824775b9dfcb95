// Package normalize turns one provider's raw payload into a canonical
// partial record. This is the only boundary where untyped provider data
// is interpreted; nothing past it sees a RawPayload.
package normalize

import (
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/fundsync/internal/mapping"
	"github.com/sells-group/fundsync/internal/model"
	"github.com/sells-group/fundsync/internal/parse"
)

// Fundamentals resolves each canonical field against the provider's alias
// table and routes the raw value through the parser matching the field's
// declared kind. Unmapped raw keys are ignored. Returns nil when no field
// at all could be resolved.
func Fundamentals(table mapping.Table, symbol string, payload model.RawPayload, now time.Time) *model.FundamentalRecord {
	rec := &model.FundamentalRecord{
		Symbol:       symbol,
		Sector:       table.Sector(payload),
		PeriodKind:   model.PeriodKindSnapshot,
		FiscalPeriod: now.UTC().Format("2006-01-02"),
		Provenance:   table.Provider,
		UpdatedAt:    now.UTC(),
	}

	for _, def := range model.FundamentalFields {
		raw, ok := table.Resolve(payload, def.Name)
		if !ok {
			continue
		}
		if v, ok := parseByKind(def.Kind, raw); ok {
			rec.Set(def.Name, v)
		}
	}

	if len(rec.Values) == 0 && rec.Sector == "" {
		zap.L().Debug("normalize: payload yielded no canonical fields",
			zap.String("provider", table.Provider),
			zap.String("symbol", symbol),
		)
		return nil
	}
	return rec
}

// CashFlow resolves a raw statement period's breakdown rows through the
// provider's label dictionary. Rows with unknown labels are ignored.
// Returns nil when no row could be resolved.
func CashFlow(table mapping.Table, symbol string, freq model.Frequency, stmt model.StatementPayload, now time.Time) *model.CashFlowRecord {
	rec := &model.CashFlowRecord{
		Symbol:     symbol,
		Frequency:  freq,
		FiscalDate: stmt.FiscalDate,
		Provenance: table.Provider,
		UpdatedAt:  now.UTC(),
	}

	for label, raw := range stmt.Rows {
		column, ok := table.Column(label)
		if !ok || raw == nil {
			continue
		}
		if _, exists := rec.Values[column]; exists {
			// First-match per column; duplicate labels (e.g. two aliases
			// of net_change_in_cash) do not overwrite.
			continue
		}
		if v, ok := parse.Cardinal(raw); ok {
			rec.Set(column, v)
		}
	}

	if len(rec.Values) == 0 {
		return nil
	}
	return rec
}

func parseByKind(kind model.FieldKind, raw any) (float64, bool) {
	switch kind {
	case model.KindPercent:
		return parse.Percent(raw)
	case model.KindCardinal:
		return parse.Cardinal(raw)
	default:
		return parse.Number(raw)
	}
}
